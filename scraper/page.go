package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/use-agent/stealthfetch/behavior"
	"github.com/use-agent/stealthfetch/challenge"
	"github.com/use-agent/stealthfetch/engine"
	"github.com/use-agent/stealthfetch/models"
)

// Selector wait budgets.
const (
	selectorTimeout     = 10 * time.Second
	fastSelectorTimeout = 5 * time.Second
)

// Fetch runs the full pipeline for one request.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Configure        – validate, resolve defaults and fingerprint, pick engine
//  2. Acquire slot     – respect the concurrent session limit
//  3. Open + apply     – launch the browser, install fingerprint and cookies
//  4. DEFER: close     – exactly once, on every path after a successful open
//  5. Navigate         – bounded by the request timeout
//  6. Challenge wait   – soft: a timeout is recorded, not returned
//  7. Behavior         – soft: failures are recorded, not returned
//  8. Selector wait    – soft
//  9. Settle + extract – one pacing delay, then the serialized document
//
// Configuration errors (step 1) never open a session. Open, apply,
// navigation and extraction failures are fatal; everything else degrades.
func (s *Scraper) Fetch(ctx context.Context, req *models.FetchRequest) (*Result, error) {
	start := s.now()
	res := &Result{URL: req.URL, Stage: StageInit}
	s.totalFetches.Add(1)
	defer func() {
		res.Timing.TotalMs = s.now().Sub(start).Milliseconds()
	}()

	fail := func(fe *models.FetchError) (*Result, error) {
		if fe.Stage == "" {
			fe.Stage = string(res.Stage)
		}
		return res, fe
	}

	// ── 1. Configure ─────────────────────────────────────────────────
	res.Stage = StageConfiguring
	if err := req.Validate(); err != nil {
		return fail(models.AsFetchError(err))
	}
	cfg, err := req.FetchConfig.Resolve(s.picker)
	if err != nil {
		return fail(models.AsFetchError(err))
	}
	if s.maxTimeout > 0 && cfg.TimeoutDuration() > s.maxTimeout {
		cfg.Timeout = int(s.maxTimeout.Milliseconds())
	}
	if u, err := url.Parse(req.URL); err == nil {
		for i := range cfg.Cookies {
			cfg.Cookies[i] = cfg.Cookies[i].WithDefaults(u.Hostname())
		}
	}
	fp := cfg.Profile()
	res.Engine = cfg.Engine
	res.Profile = fp

	eng, err := s.registry.Lookup(cfg.Engine)
	if err != nil {
		return fail(models.AsFetchError(err))
	}

	logger := s.logger.With("url", req.URL, "engine", cfg.Engine)
	logger.Debug("fetch configured",
		"userAgent", fp.UserAgent,
		"viewport", fmt.Sprintf("%dx%d", fp.Viewport.Width, fp.Viewport.Height),
		"timezone", fp.TimezoneID,
		"fast", cfg.FastMode,
		"waitUntil", cfg.WaitUntil,
	)

	// ── 2. Acquire session slot ──────────────────────────────────────
	if err := s.acquire(ctx); err != nil {
		return fail(categorizeError(err, models.ErrCodeSessionOpen, "waiting for a free browser session"))
	}
	defer s.release()

	// ── 3. Open session ──────────────────────────────────────────────
	sess, err := eng.Open(ctx, cfg, fp)
	if err != nil {
		return fail(categorizeError(err, models.ErrCodeSessionOpen, "failed to open browser session"))
	}
	res.SessionOpened = true

	// ── 4. DEFER: close exactly once, errors logged only ────────────
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("session close failed", "error", err)
		}
		res.Stage = StageClosed
	}()

	if err := sess.Apply(ctx, fp, cfg); err != nil {
		return fail(categorizeError(err, models.ErrCodeSessionOpen, "failed to apply fingerprint"))
	}

	// ── 5. Navigate ──────────────────────────────────────────────────
	res.Stage = StageNavigating
	navStart := s.now()
	navCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	err = sess.Navigate(navCtx, req.URL, cfg)
	cancel()
	res.Timing.NavigationMs = s.now().Sub(navStart).Milliseconds()
	if err != nil {
		s.errorScreenshot(ctx, sess, cfg)
		return fail(categorizeError(err, models.ErrCodeNavigation, "navigation to target URL failed"))
	}
	logger.Debug("navigation complete", "ms", res.Timing.NavigationMs)

	// ── 6. Challenge wait ────────────────────────────────────────────
	if cfg.ChallengeWaitEnabled() {
		res.Stage = StageChallengeCheck
		chStart := s.now()
		rep, err := s.waiter.Await(ctx, sess, challenge.Options{
			Timeout:  cfg.TimeoutDuration(),
			Fast:     cfg.FastMode,
			Snapshot: s.snapshotter(sess, cfg),
		})
		res.Timing.ChallengeMs = s.now().Sub(chStart).Milliseconds()
		res.Challenge = rep.State
		if err != nil {
			return fail(categorizeError(err, models.ErrCodeTimeout, "challenge wait interrupted"))
		}
		if rep.State == models.ChallengeTimedOut {
			res.SoftFailures = append(res.SoftFailures,
				fmt.Sprintf("challenge: still present after %d checks", rep.Checks))
		}
	}

	// ── 7. Behavior simulation ───────────────────────────────────────
	if behavior.ShouldRun(cfg) {
		res.Stage = StageBehaviorSim
		bStart := s.now()
		_, err := s.simulator.Simulate(ctx, sess, cfg)
		res.Timing.BehaviorMs = s.now().Sub(bStart).Milliseconds()
		if err != nil {
			if ctx.Err() != nil {
				return fail(categorizeError(ctx.Err(), models.ErrCodeTimeout, "behavior simulation interrupted"))
			}
			logger.Warn("behavior simulation failed, continuing", "error", err)
			res.SoftFailures = append(res.SoftFailures, "behavior: "+err.Error())
		}
	}

	// ── 8. Selector wait ─────────────────────────────────────────────
	if cfg.WaitForSelector != "" {
		res.Stage = StageSelectorWait
		timeout := selectorTimeout
		if cfg.FastMode {
			timeout = fastSelectorTimeout
		}
		if err := sess.WaitVisible(ctx, cfg.WaitForSelector, timeout); err != nil {
			if ctx.Err() != nil {
				return fail(categorizeError(ctx.Err(), models.ErrCodeTimeout, "selector wait interrupted"))
			}
			logger.Warn("selector not visible, continuing", "selector", cfg.WaitForSelector, "error", err)
			res.SoftFailures = append(res.SoftFailures,
				fmt.Sprintf("selector: %q not visible within %s", cfg.WaitForSelector, timeout))
		}
	}

	// ── 9. Settle and extract ────────────────────────────────────────
	res.Stage = StageExtracting
	if _, err := s.pacer.Delay(ctx, 1000, 3000, cfg.FastMode); err != nil {
		return fail(categorizeError(err, models.ErrCodeTimeout, "interrupted before extraction"))
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		s.errorScreenshot(ctx, sess, cfg)
		return fail(categorizeError(err, models.ErrCodeExtraction, "failed to extract page HTML"))
	}
	res.HTML = html

	return res, nil
}

// snapshotter returns the debug screenshot hook, or nil when debug
// screenshots are off.
func (s *Scraper) snapshotter(sess engine.Session, cfg models.FetchConfig) func(context.Context, string) {
	if !cfg.DebugScreenshots {
		return nil
	}
	return func(ctx context.Context, phase string) {
		s.screenshot(ctx, sess, cfg, phase)
	}
}

func (s *Scraper) screenshot(ctx context.Context, sess engine.Session, cfg models.FetchConfig, phase string) {
	png, err := sess.Screenshot(ctx)
	if err != nil {
		s.logger.Warn("debug screenshot failed", "phase", phase, "error", err)
		return
	}
	path, err := engine.SaveScreenshot(cfg.ScreenshotPath, engine.ScreenshotName(phase, cfg.Engine, s.now()), png)
	if err != nil {
		s.logger.Warn("debug screenshot not saved", "phase", phase, "error", err)
		return
	}
	s.logger.Info("debug screenshot saved", "phase", phase, "path", path)
}

// errorScreenshot captures the page after a fatal error. The request
// context may already be done, so it gets a short budget of its own.
func (s *Scraper) errorScreenshot(ctx context.Context, sess engine.Session, cfg models.FetchConfig) {
	if !cfg.DebugScreenshots {
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.screenshot(shotCtx, sess, cfg, "error")
}

// categorizeError wraps raw errors into typed FetchErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, code, msg string) *models.FetchError {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewFetchError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewFetchError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewFetchError(code, msg, err)
	}
}
