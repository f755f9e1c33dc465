// Package pacing produces randomized, human-looking pauses.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"
)

// FastDivisor scales every bound down in fast mode.
const FastDivisor = 4

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer samples delays uniformly from an integer millisecond range.
// It is safe for concurrent use when its random source is.
type Pacer struct {
	intn  func(n int) int
	sleep SleepFunc
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(p *Pacer) {
		p.intn = intn
	}
}

// WithSleep replaces the suspend function. Tests use it to avoid waiting.
func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) {
		p.sleep = fn
	}
}

// New creates a Pacer backed by math/rand/v2 and a context-aware timer.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		intn:  rand.IntN,
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bounds returns the effective range for a request. Fast mode floors both
// ends at a quarter of their value.
func Bounds(minMs, maxMs int, fast bool) (int, int) {
	if fast {
		minMs /= FastDivisor
		maxMs /= FastDivisor
	}
	if maxMs < minMs {
		maxMs = minMs
	}
	return minMs, maxMs
}

// Sample picks a duration in milliseconds without sleeping.
func (p *Pacer) Sample(minMs, maxMs int, fast bool) int {
	lo, hi := Bounds(minMs, maxMs, fast)
	return lo + p.intn(hi-lo+1)
}

// Delay samples a duration, suspends for it and returns the sampled
// milliseconds. It returns early with the context error if ctx ends first.
func (p *Pacer) Delay(ctx context.Context, minMs, maxMs int, fast bool) (int, error) {
	ms := p.Sample(minMs, maxMs, fast)
	if err := p.sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
		return ms, err
	}
	return ms, nil
}

// Intn exposes the pacer's random source to components that need
// randomness beyond delays.
func (p *Pacer) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return p.intn(n)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
