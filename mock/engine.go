// Package mock provides hand-written test doubles for the engine contracts.
package mock

import (
	"context"
	"time"

	"github.com/use-agent/stealthfetch/engine"
	"github.com/use-agent/stealthfetch/models"
)

var _ engine.Engine = (*Engine)(nil)

// Engine is a mock implementation of engine.Engine.
type Engine struct {
	KindValue models.EngineKind
	OpenFn    func(ctx context.Context, cfg models.FetchConfig, fp models.FingerprintProfile) (engine.Session, error)
}

func (e *Engine) Kind() models.EngineKind {
	return e.KindValue
}

func (e *Engine) Open(ctx context.Context, cfg models.FetchConfig, fp models.FingerprintProfile) (engine.Session, error) {
	return e.OpenFn(ctx, cfg, fp)
}

var _ engine.Session = (*Session)(nil)

// Session is a mock implementation of engine.Session. Nil functions are
// no-ops returning zero values, so tests only stub what they assert on.
type Session struct {
	ApplyFn       func(ctx context.Context, fp models.FingerprintProfile, cfg models.FetchConfig) error
	NavigateFn    func(ctx context.Context, url string, cfg models.FetchConfig) error
	HTMLFn        func(ctx context.Context) (string, error)
	ScreenshotFn  func(ctx context.Context) ([]byte, error)
	ScrollToFn    func(ctx context.Context, y int) error
	MoveMouseFn   func(ctx context.Context, x, y int) error
	WaitVisibleFn func(ctx context.Context, selector string, timeout time.Duration) error
	CloseFn       func() error
}

func (s *Session) Apply(ctx context.Context, fp models.FingerprintProfile, cfg models.FetchConfig) error {
	if s.ApplyFn == nil {
		return nil
	}
	return s.ApplyFn(ctx, fp, cfg)
}

func (s *Session) Navigate(ctx context.Context, url string, cfg models.FetchConfig) error {
	if s.NavigateFn == nil {
		return nil
	}
	return s.NavigateFn(ctx, url, cfg)
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	if s.HTMLFn == nil {
		return "", nil
	}
	return s.HTMLFn(ctx)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if s.ScreenshotFn == nil {
		return nil, nil
	}
	return s.ScreenshotFn(ctx)
}

func (s *Session) ScrollTo(ctx context.Context, y int) error {
	if s.ScrollToFn == nil {
		return nil
	}
	return s.ScrollToFn(ctx, y)
}

func (s *Session) MoveMouse(ctx context.Context, x, y int) error {
	if s.MoveMouseFn == nil {
		return nil
	}
	return s.MoveMouseFn(ctx, x, y)
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if s.WaitVisibleFn == nil {
		return nil
	}
	return s.WaitVisibleFn(ctx, selector, timeout)
}

func (s *Session) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
