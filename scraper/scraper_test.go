package scraper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/stealthfetch/engine"
	"github.com/use-agent/stealthfetch/fingerprint"
	"github.com/use-agent/stealthfetch/mock"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/pacing"
	"github.com/use-agent/stealthfetch/scraper"
)

const (
	targetURL     = "https://example.com/page"
	plainHTML     = `<html><head><title>Example</title></head><body><h1>content</h1></body></html>`
	challengeHTML = `<html><head><title>Just a moment...</title></head><body><div id="cf-wrapper"></div></body></html>`
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func noSleep(context.Context, time.Duration) error { return nil }

// counters tracks how a mock engine was used.
type counters struct {
	opened  atomic.Int32
	closed  atomic.Int32
	scrolls atomic.Int32
}

// newHarness wires a scraper around sess. The session's Close and ScrollTo
// are wrapped to count calls; other functions are left as given.
func newHarness(t *testing.T, sess *mock.Session, opts ...scraper.Option) (*scraper.Scraper, *counters) {
	t.Helper()

	c := &counters{}
	closeFn := sess.CloseFn
	sess.CloseFn = func() error {
		c.closed.Add(1)
		if closeFn != nil {
			return closeFn()
		}
		return nil
	}
	scrollFn := sess.ScrollToFn
	sess.ScrollToFn = func(ctx context.Context, y int) error {
		c.scrolls.Add(1)
		if scrollFn != nil {
			return scrollFn(ctx, y)
		}
		return nil
	}
	eng := &mock.Engine{
		KindValue: models.EngineRod,
		OpenFn: func(context.Context, models.FetchConfig, models.FingerprintProfile) (engine.Session, error) {
			c.opened.Add(1)
			return sess, nil
		},
	}
	picker := fingerprint.NewProvider(nil, fingerprint.WithRand(func(int) int { return 0 }))
	base := []scraper.Option{
		scraper.WithPacer(pacing.New(pacing.WithSleep(noSleep))),
		scraper.WithLogger(discard),
	}
	return scraper.New(engine.NewRegistry(eng), picker, append(base, opts...)...), c
}

func htmlOf(s string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return s, nil }
}

func TestFetch_NoChallengeNoBehavior(t *testing.T) {
	t.Parallel()

	s, c := newHarness(t, &mock.Session{HTMLFn: htmlOf(plainHTML)})

	res, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL: targetURL,
		FetchConfig: models.FetchConfig{
			BypassCloudflare: models.Bool(true),
			HumanBehavior:    models.Bool(false),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, plainHTML, res.HTML)
	assert.Equal(t, models.ChallengeNotPresent, res.Challenge)
	assert.Empty(t, res.SoftFailures)
	assert.Equal(t, scraper.StageClosed, res.Stage)
	assert.Zero(t, c.scrolls.Load())
	assert.EqualValues(t, 1, c.opened.Load())
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestFetch_ChallengeTimeoutIsSoft(t *testing.T) {
	t.Parallel()

	s, c := newHarness(t, &mock.Session{HTMLFn: htmlOf(challengeHTML)})

	res, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL: targetURL,
		FetchConfig: models.FetchConfig{
			Timeout:       2000,
			HumanBehavior: models.Bool(false),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, challengeHTML, res.HTML)
	assert.Equal(t, models.ChallengeTimedOut, res.Challenge)
	require.Len(t, res.SoftFailures, 1)
	assert.Contains(t, res.SoftFailures[0], "after 1 checks")
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestFetch_FastModeSkipsBehaviorAndUsesFastPolicy(t *testing.T) {
	t.Parallel()

	var navCfg models.FetchConfig
	var openCfg models.FetchConfig
	sess := &mock.Session{
		HTMLFn: htmlOf(plainHTML),
		NavigateFn: func(_ context.Context, _ string, cfg models.FetchConfig) error {
			navCfg = cfg
			return nil
		},
	}
	c := &counters{}
	eng := &mock.Engine{
		KindValue: models.EngineRod,
		OpenFn: func(_ context.Context, cfg models.FetchConfig, _ models.FingerprintProfile) (engine.Session, error) {
			c.opened.Add(1)
			openCfg = cfg
			return sess, nil
		},
	}
	sess.ScrollToFn = func(context.Context, int) error {
		c.scrolls.Add(1)
		return nil
	}
	s := scraper.New(engine.NewRegistry(eng), fingerprint.NewProvider(nil),
		scraper.WithPacer(pacing.New(pacing.WithSleep(noSleep))),
		scraper.WithLogger(discard),
	)

	_, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL:         targetURL,
		FetchConfig: models.FetchConfig{FastMode: true},
	})

	require.NoError(t, err)
	assert.Zero(t, c.scrolls.Load())
	assert.Equal(t, models.WaitDOMContentLoaded, navCfg.WaitUntil)
	assert.True(t, openCfg.Blocks(models.ResourceMedia))
	assert.True(t, openCfg.Blocks(models.ResourceImage))
}

func TestFetch_BehaviorRunsByDefault(t *testing.T) {
	t.Parallel()

	s, c := newHarness(t, &mock.Session{HTMLFn: htmlOf(plainHTML)})

	res, err := s.Fetch(context.Background(), &models.FetchRequest{URL: targetURL})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.scrolls.Load(), int32(2))
	assert.Empty(t, res.SoftFailures)
}

func TestFetch_ProfileIsStableAcrossStages(t *testing.T) {
	t.Parallel()

	var openFP, applyFP models.FingerprintProfile
	var navCfg models.FetchConfig
	sess := &mock.Session{
		HTMLFn: htmlOf(plainHTML),
		ApplyFn: func(_ context.Context, fp models.FingerprintProfile, _ models.FetchConfig) error {
			applyFP = fp
			return nil
		},
		NavigateFn: func(_ context.Context, _ string, cfg models.FetchConfig) error {
			navCfg = cfg
			return nil
		},
	}
	eng := &mock.Engine{
		KindValue: models.EngineRod,
		OpenFn: func(_ context.Context, _ models.FetchConfig, fp models.FingerprintProfile) (engine.Session, error) {
			openFP = fp
			return sess, nil
		},
	}
	s := scraper.New(engine.NewRegistry(eng), fingerprint.NewProvider(nil),
		scraper.WithPacer(pacing.New(pacing.WithSleep(noSleep))),
		scraper.WithLogger(discard),
	)

	res, err := s.Fetch(context.Background(), &models.FetchRequest{URL: targetURL})

	require.NoError(t, err)
	assert.Equal(t, openFP, applyFP)
	assert.Equal(t, openFP, res.Profile)
	assert.Equal(t, openFP, navCfg.Profile())
	assert.NotEmpty(t, openFP.UserAgent)
}

func TestFetch_NavigationFailureClosesOnce(t *testing.T) {
	t.Parallel()

	htmlCalls := 0
	s, c := newHarness(t, &mock.Session{
		NavigateFn: func(context.Context, string, models.FetchConfig) error {
			return errors.New("net::ERR_NAME_NOT_RESOLVED")
		},
		HTMLFn: func(context.Context) (string, error) {
			htmlCalls++
			return "", nil
		},
	})

	res, err := s.Fetch(context.Background(), &models.FetchRequest{URL: targetURL})

	require.Error(t, err)
	fe := models.AsFetchError(err)
	assert.Equal(t, models.ErrCodeNavigation, fe.Code)
	assert.Equal(t, string(scraper.StageNavigating), fe.Stage)
	assert.Equal(t, scraper.StageClosed, res.Stage)
	assert.Zero(t, htmlCalls)
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestFetch_NavigationTimeoutIsFatal(t *testing.T) {
	t.Parallel()

	s, c := newHarness(t, &mock.Session{
		NavigateFn: func(ctx context.Context, _ string, _ models.FetchConfig) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	_, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL:         targetURL,
		FetchConfig: models.FetchConfig{Timeout: 20},
	})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.AsFetchError(err).Code)
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestFetch_ApplyFailureClosesOnce(t *testing.T) {
	t.Parallel()

	s, c := newHarness(t, &mock.Session{
		ApplyFn: func(context.Context, models.FingerprintProfile, models.FetchConfig) error {
			return errors.New("target crashed")
		},
	})

	_, err := s.Fetch(context.Background(), &models.FetchRequest{URL: targetURL})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeSessionOpen, models.AsFetchError(err).Code)
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestFetch_ExtractionFailureWritesErrorScreenshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, c := newHarness(t, &mock.Session{
		HTMLFn: func(ctx context.Context) (string, error) {
			return "", errors.New("page crashed")
		},
		ScreenshotFn: func(context.Context) ([]byte, error) {
			return []byte("png"), nil
		},
	})

	_, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL: targetURL,
		FetchConfig: models.FetchConfig{
			BypassCloudflare: models.Bool(false),
			HumanBehavior:    models.Bool(false),
			DebugScreenshots: true,
			ScreenshotPath:   dir,
		},
	})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeExtraction, models.AsFetchError(err).Code)
	assert.EqualValues(t, 1, c.closed.Load())
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "error-rod-"))
}

func TestFetch_CloseErrorIsOnlyLogged(t *testing.T) {
	t.Parallel()

	s, c := newHarness(t, &mock.Session{
		HTMLFn:  htmlOf(plainHTML),
		CloseFn: func() error { return errors.New("browser already gone") },
	})

	res, err := s.Fetch(context.Background(), &models.FetchRequest{URL: targetURL})

	require.NoError(t, err)
	assert.Equal(t, plainHTML, res.HTML)
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestFetch_SoftFailuresStillSucceed(t *testing.T) {
	t.Parallel()

	var selectorTimeout time.Duration
	s, c := newHarness(t, &mock.Session{
		HTMLFn: htmlOf(plainHTML),
		ScrollToFn: func(context.Context, int) error {
			return errors.New("execution context destroyed")
		},
		WaitVisibleFn: func(_ context.Context, _ string, timeout time.Duration) error {
			selectorTimeout = timeout
			return context.DeadlineExceeded
		},
	})

	res, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL:         targetURL,
		FetchConfig: models.FetchConfig{WaitForSelector: "#app"},
	})

	require.NoError(t, err)
	assert.Equal(t, plainHTML, res.HTML)
	require.Len(t, res.SoftFailures, 2)
	assert.True(t, strings.HasPrefix(res.SoftFailures[0], "behavior:"))
	assert.True(t, strings.HasPrefix(res.SoftFailures[1], "selector:"))
	assert.Equal(t, 10*time.Second, selectorTimeout)
	assert.EqualValues(t, 1, c.closed.Load())
}

func TestFetch_OpenFailureDoesNotClose(t *testing.T) {
	t.Parallel()

	eng := &mock.Engine{
		KindValue: models.EngineRod,
		OpenFn: func(context.Context, models.FetchConfig, models.FingerprintProfile) (engine.Session, error) {
			return nil, errors.New("chrome not found")
		},
	}
	s := scraper.New(engine.NewRegistry(eng), fingerprint.NewProvider(nil), scraper.WithLogger(discard))

	res, err := s.Fetch(context.Background(), &models.FetchRequest{URL: targetURL})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeSessionOpen, models.AsFetchError(err).Code)
	assert.False(t, res.SessionOpened)
	assert.Zero(t, s.Stats().ActiveSessions)
}

func TestFetch_ConfigurationErrorsOpenNoSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  *models.FetchRequest
		code string
	}{
		{"missing url", &models.FetchRequest{}, models.ErrCodeInvalidConfig},
		{"bad resource type", &models.FetchRequest{URL: targetURL, FetchConfig: models.FetchConfig{BlockedResourceTypes: []string{"Video"}}}, models.ErrCodeInvalidConfig},
		{"unregistered engine", &models.FetchRequest{URL: targetURL, FetchConfig: models.FetchConfig{Engine: models.EngineChromedpStealth}}, models.ErrCodeEngineUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, c := newHarness(t, &mock.Session{})

			res, err := s.Fetch(context.Background(), tt.req)

			require.Error(t, err)
			fe := models.AsFetchError(err)
			assert.Equal(t, tt.code, fe.Code)
			assert.True(t, fe.IsConfig())
			assert.Equal(t, string(scraper.StageConfiguring), fe.Stage)
			assert.False(t, res.SessionOpened)
			assert.Zero(t, c.opened.Load())
			assert.Zero(t, c.closed.Load())
		})
	}
}

func TestFetch_CookieDefaultsFromTarget(t *testing.T) {
	t.Parallel()

	var cookies []models.CookieRecord
	s, _ := newHarness(t, &mock.Session{
		HTMLFn: htmlOf(plainHTML),
		ApplyFn: func(_ context.Context, _ models.FingerprintProfile, cfg models.FetchConfig) error {
			cookies = cfg.Cookies
			return nil
		},
	})

	_, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL: "https://shop.example.com:8443/cart",
		FetchConfig: models.FetchConfig{
			Cookies: []models.CookieRecord{{Name: "session", Value: "abc"}},
		},
	})

	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "shop.example.com", cookies[0].Domain)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Equal(t, "Lax", cookies[0].SameSite)
}

func TestFetch_MaxTimeoutClamps(t *testing.T) {
	t.Parallel()

	var timeout int
	s, _ := newHarness(t, &mock.Session{
		HTMLFn: htmlOf(plainHTML),
		NavigateFn: func(_ context.Context, _ string, cfg models.FetchConfig) error {
			timeout = cfg.Timeout
			return nil
		},
	}, scraper.WithMaxTimeout(30*time.Second))

	_, err := s.Fetch(context.Background(), &models.FetchRequest{
		URL:         targetURL,
		FetchConfig: models.FetchConfig{Timeout: 120000},
	})

	require.NoError(t, err)
	assert.Equal(t, 30000, timeout)
}

func TestFetch_Stats(t *testing.T) {
	t.Parallel()

	s, _ := newHarness(t, &mock.Session{HTMLFn: htmlOf(plainHTML)}, scraper.WithMaxConcurrent(2))

	for range 3 {
		_, err := s.FetchHTML(context.Background(), targetURL, models.FetchConfig{HumanBehavior: models.Bool(false)})
		require.NoError(t, err)
	}

	stats := s.Stats()
	assert.Equal(t, 2, stats.MaxSessions)
	assert.Zero(t, stats.ActiveSessions)
	assert.EqualValues(t, 3, stats.TotalFetches)
	assert.Equal(t, []models.EngineKind{models.EngineRod}, s.Engines())
}

func TestResult_Response(t *testing.T) {
	t.Parallel()

	res := &scraper.Result{
		URL:          targetURL,
		HTML:         plainHTML,
		Engine:       models.EngineChromedp,
		Challenge:    models.ChallengeCleared,
		SoftFailures: []string{"selector: x"},
	}

	resp := res.Response()
	assert.True(t, resp.Success)
	assert.Equal(t, plainHTML, resp.HTML)
	assert.Equal(t, models.ChallengeCleared, resp.Challenge)

	failed := scraper.ErrorResponse(targetURL, res, models.NewFetchError(models.ErrCodeNavigation, "boom", nil))
	assert.False(t, failed.Success)
	assert.Equal(t, models.ErrCodeNavigation, failed.Error.Code)
	assert.Empty(t, failed.HTML)
}
