// Package engine adapts browser automation libraries to a single session
// contract used by the fetch orchestrator.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/stealth"
	"github.com/use-agent/stealthfetch/models"
)

// Engine opens isolated browser sessions. Each session owns its own browser
// process; nothing is shared between fetches.
type Engine interface {
	// Kind returns the engine identifier.
	Kind() models.EngineKind

	// Open launches a browser configured for cfg and fp and returns a
	// session on a blank page. cfg must already be resolved.
	Open(ctx context.Context, cfg models.FetchConfig, fp models.FingerprintProfile) (Session, error)
}

// Session is one launched browser with one page.
//
// Apply must be called before Navigate. Close is idempotent and must be
// called on every path once Open has succeeded.
type Session interface {
	// Apply installs the fingerprint, evasion scripts, extra headers and
	// cookies. Steps that only refine the fingerprint (timezone, locale,
	// geolocation) are best-effort; failures are logged, not returned.
	Apply(ctx context.Context, fp models.FingerprintProfile, cfg models.FetchConfig) error

	// Navigate loads url and waits for the lifecycle point in cfg.WaitUntil.
	Navigate(ctx context.Context, url string, cfg models.FetchConfig) error

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	ScrollTo(ctx context.Context, y int) error
	MoveMouse(ctx context.Context, x, y int) error

	// WaitVisible blocks until selector is visible or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	Close() error
}

type options struct {
	browserBin    string
	noSandbox     bool
	stealthScript string
	logger        *slog.Logger
}

// Option configures an engine.
type Option func(*options)

// WithBrowserBin points the engine at a specific Chrome/Chromium binary.
func WithBrowserBin(path string) Option {
	return func(o *options) {
		o.browserBin = path
	}
}

// WithNoSandbox disables the Chrome sandbox. Required in most containers.
func WithNoSandbox(v bool) Option {
	return func(o *options) {
		o.noSandbox = v
	}
}

// WithStealthScript replaces the evasion bundle injected by engines that use
// one. An empty script marks the bundle as unavailable.
func WithStealthScript(js string) Option {
	return func(o *options) {
		o.stealthScript = js
	}
}

// WithLogger sets the logger for session diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{
		noSandbox:     true,
		stealthScript: stealth.JS,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
