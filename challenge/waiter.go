package challenge

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/pacing"
)

// Page is the part of a browser session the waiter reads from.
type Page interface {
	HTML(ctx context.Context) (string, error)
}

// Screenshot phases.
const (
	PhaseInitial = "cloudflare-initial"
	PhasePassed  = "cloudflare-passed"
)

// Poll intervals in milliseconds.
const (
	intervalMs     = 2000
	fastIntervalMs = 1000
)

// Options controls one wait.
type Options struct {
	// Timeout is the navigation timeout. Outside fast mode the wait budget
	// is one and a half times this value.
	Timeout time.Duration
	Fast    bool

	// Snapshot, when set, is called with PhaseInitial before the first
	// check and PhasePassed on clearance.
	Snapshot func(ctx context.Context, phase string)
}

// Report is the outcome of a wait.
type Report struct {
	State models.ChallengeState
	// Checks counts re-checks after the initial detection.
	Checks int
}

// Passed reports whether the page is usable: no challenge or a cleared one.
func (r Report) Passed() bool {
	return r.State == models.ChallengeNotPresent || r.State == models.ChallengeCleared
}

// MaxChecks is the number of re-checks a wait may perform.
func MaxChecks(timeout time.Duration, fast bool) int {
	budget := timeout.Milliseconds()
	interval := int64(intervalMs)
	if fast {
		interval = fastIntervalMs
	} else {
		budget = budget * 3 / 2
	}
	return int(budget / interval)
}

// Waiter polls a page until its challenge clears or the budget runs out.
type Waiter struct {
	pacer  *pacing.Pacer
	logger *slog.Logger
}

// NewWaiter creates a Waiter.
func NewWaiter(pacer *pacing.Pacer, logger *slog.Logger) *Waiter {
	if pacer == nil {
		pacer = pacing.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{pacer: pacer, logger: logger}
}

// Await checks the page and, if a challenge is present, polls with jittered
// intervals until it clears. A timed-out challenge is not an error; the
// only errors returned come from ctx.
func (w *Waiter) Await(ctx context.Context, p Page, opts Options) (Report, error) {
	w.snapshot(ctx, opts, PhaseInitial)
	if !w.present(ctx, p) {
		return Report{State: models.ChallengeNotPresent}, nil
	}

	interval, jitter := intervalMs, 1000
	if opts.Fast {
		interval, jitter = fastIntervalMs, 500
	}
	maxChecks := MaxChecks(opts.Timeout, opts.Fast)

	w.logger.Info("challenge detected, waiting for it to clear",
		"maxChecks", maxChecks,
		"fast", opts.Fast,
	)

	rep := Report{State: models.ChallengePresent}
	for rep.Checks < maxChecks {
		if _, err := w.pacer.Delay(ctx, interval, interval+jitter, opts.Fast); err != nil {
			return rep, err
		}
		rep.Checks++
		if w.present(ctx, p) {
			w.logger.Debug("challenge still present", "check", rep.Checks, "maxChecks", maxChecks)
			continue
		}

		w.logger.Info("challenge cleared", "checks", rep.Checks)
		w.snapshot(ctx, opts, PhasePassed)
		rep.State = models.ChallengeCleared
		// Settle for the full 2-4s even in fast mode.
		if _, err := w.pacer.Delay(ctx, 2000, 4000, false); err != nil {
			return rep, err
		}
		return rep, nil
	}

	w.logger.Warn("challenge did not clear in time", "checks", rep.Checks)
	rep.State = models.ChallengeTimedOut
	return rep, nil
}

// present treats probe failures as "still present".
func (w *Waiter) present(ctx context.Context, p Page) bool {
	html, err := p.HTML(ctx)
	if err != nil {
		w.logger.Debug("challenge probe failed", "error", err)
		return true
	}
	found, err := Detect(html)
	if err != nil {
		w.logger.Debug("challenge probe failed", "error", err)
		return true
	}
	return found
}

func (w *Waiter) snapshot(ctx context.Context, opts Options, phase string) {
	if opts.Snapshot != nil {
		opts.Snapshot(ctx, phase)
	}
}
