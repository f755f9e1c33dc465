// Package scraper runs the end-to-end fetch pipeline: resolve a
// configuration, drive one browser session through navigation, challenge
// wait and behavior simulation, and return the rendered HTML.
package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/stealthfetch/behavior"
	"github.com/use-agent/stealthfetch/challenge"
	"github.com/use-agent/stealthfetch/engine"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/pacing"
)

// Fetcher fetches one page.
type Fetcher interface {
	Fetch(ctx context.Context, req *models.FetchRequest) (*Result, error)
}

// Scraper composes the engine registry, fingerprint picker, pacer,
// challenge waiter and behavior simulator. It holds no per-fetch state and
// is safe for concurrent use; every fetch launches its own browser.
type Scraper struct {
	registry   *engine.Registry
	picker     models.FingerprintPicker
	pacer      *pacing.Pacer
	waiter     *challenge.Waiter
	simulator  *behavior.Simulator
	logger     *slog.Logger
	now        func() time.Time
	maxTimeout time.Duration

	sem           chan struct{}
	maxSessions   int
	activeSession atomic.Int32
	totalFetches  atomic.Int64
	startTime     time.Time
}

var _ Fetcher = (*Scraper)(nil)

// Option configures a Scraper.
type Option func(*Scraper)

// WithPacer replaces the pacing controller. Tests use it to skip sleeps.
func WithPacer(p *pacing.Pacer) Option {
	return func(s *Scraper) {
		s.pacer = p
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		s.logger = l
	}
}

// WithMaxConcurrent bounds the number of browser sessions open at once.
// Zero means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(s *Scraper) {
		s.maxSessions = n
	}
}

// WithMaxTimeout caps the per-request navigation timeout.
func WithMaxTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.maxTimeout = d
	}
}

// WithClock replaces time.Now, used for screenshot names and timing.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		s.now = now
	}
}

// New creates a Scraper.
func New(registry *engine.Registry, picker models.FingerprintPicker, opts ...Option) *Scraper {
	s := &Scraper{
		registry: registry,
		picker:   picker,
		pacer:    pacing.New(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxSessions > 0 {
		s.sem = make(chan struct{}, s.maxSessions)
	}
	s.waiter = challenge.NewWaiter(s.pacer, s.logger)
	s.simulator = behavior.New(s.pacer, s.logger)
	s.startTime = s.now()
	return s
}

// FetchHTML fetches url with cfg and returns only the HTML.
func (s *Scraper) FetchHTML(ctx context.Context, url string, cfg models.FetchConfig) (string, error) {
	res, err := s.Fetch(ctx, &models.FetchRequest{URL: url, FetchConfig: cfg})
	if err != nil {
		return "", err
	}
	return res.HTML, nil
}

// Stats returns a snapshot of session usage.
func (s *Scraper) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    s.maxSessions,
		ActiveSessions: int(s.activeSession.Load()),
		TotalFetches:   s.totalFetches.Load(),
	}
}

// Engines lists the registered engines.
func (s *Scraper) Engines() []models.EngineKind {
	return s.registry.Kinds()
}

// Uptime returns how long the scraper has existed.
func (s *Scraper) Uptime() time.Duration {
	return s.now().Sub(s.startTime)
}

func (s *Scraper) acquire(ctx context.Context) error {
	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.activeSession.Add(1)
	return nil
}

func (s *Scraper) release() {
	s.activeSession.Add(-1)
	if s.sem != nil {
		<-s.sem
	}
}
