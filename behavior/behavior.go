// Package behavior plays back a short, randomized sequence of scrolls and
// pointer moves so a session does not read a page without ever touching it.
package behavior

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/pacing"
)

// Page is the part of a browser session the simulator drives.
type Page interface {
	ScrollTo(ctx context.Context, y int) error
	MoveMouse(ctx context.Context, x, y int) error
}

// Report describes what a simulation did.
type Report struct {
	Ran     bool
	Steps   int
	Scrolls []int
}

// Simulator issues scroll and pointer actions spaced by pacing delays.
type Simulator struct {
	pacer  *pacing.Pacer
	logger *slog.Logger
}

// New creates a Simulator.
func New(pacer *pacing.Pacer, logger *slog.Logger) *Simulator {
	if pacer == nil {
		pacer = pacing.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{pacer: pacer, logger: logger}
}

// ShouldRun reports whether cfg asks for simulation. Fast mode skips it
// unless humanBehavior was set to true explicitly.
func ShouldRun(cfg models.FetchConfig) bool {
	if !cfg.BehaviorEnabled() {
		return false
	}
	return !cfg.FastMode || cfg.BehaviorRequested()
}

// Simulate runs the sequence against p. The first failing action ends the
// run and is returned; callers treat it as non-fatal.
func (s *Simulator) Simulate(ctx context.Context, p Page, cfg models.FetchConfig) (Report, error) {
	var rep Report
	if !ShouldRun(cfg) {
		return rep, nil
	}
	rep.Ran = true
	fast := cfg.FastMode

	if _, err := s.pacer.Delay(ctx, 1000, 3000, fast); err != nil {
		return rep, err
	}

	steps := 1
	if !fast {
		steps = 2 + s.pacer.Intn(5)
	}
	width := 1280
	if cfg.Viewport != nil && cfg.Viewport.Width > 0 {
		width = cfg.Viewport.Width
	}

	prev := 0
	for i := range steps {
		amount := 200 + s.pacer.Intn(500)
		if fast {
			amount = 100 + s.pacer.Intn(300)
		}
		// Scroll targets are absolute and never move back up.
		y := amount * (i + 1)
		if y <= prev {
			y = prev + amount
		}
		if err := p.ScrollTo(ctx, y); err != nil {
			return rep, fmt.Errorf("scroll step %d: %w", i+1, err)
		}
		rep.Scrolls = append(rep.Scrolls, y)
		prev = y

		if !fast {
			x := s.pacer.Intn(int(float64(width)*0.8)) + 50
			my := s.pacer.Intn(int(float64(amount)*(float64(i)+0.5))) + 100
			if err := p.MoveMouse(ctx, x, my); err != nil {
				return rep, fmt.Errorf("pointer step %d: %w", i+1, err)
			}
		}
		rep.Steps++

		if _, err := s.pacer.Delay(ctx, 500, 2000, fast); err != nil {
			return rep, err
		}
	}

	s.logger.Debug("behavior simulation done", "steps", rep.Steps, "scrolls", rep.Scrolls)
	return rep, nil
}
