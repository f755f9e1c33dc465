package behavior_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/stealthfetch/behavior"
	"github.com/use-agent/stealthfetch/mock"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/pacing"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func noSleep(context.Context, time.Duration) error { return nil }

type recorder struct {
	scrolls []int
	moves   [][2]int
}

func (r *recorder) session() *mock.Session {
	return &mock.Session{
		ScrollToFn: func(_ context.Context, y int) error {
			r.scrolls = append(r.scrolls, y)
			return nil
		},
		MoveMouseFn: func(_ context.Context, x, y int) error {
			r.moves = append(r.moves, [2]int{x, y})
			return nil
		},
	}
}

func TestShouldRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  models.FetchConfig
		want bool
	}{
		{"default", models.FetchConfig{}, true},
		{"explicit false", models.FetchConfig{HumanBehavior: models.Bool(false)}, false},
		{"fast unset", models.FetchConfig{FastMode: true}, false},
		{"fast explicit true", models.FetchConfig{FastMode: true, HumanBehavior: models.Bool(true)}, true},
		{"fast explicit false", models.FetchConfig{FastMode: true, HumanBehavior: models.Bool(false)}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, behavior.ShouldRun(tt.cfg), tt.name)
	}
}

func TestSimulate_SkippedInFastModeWithoutRequest(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	slept := 0
	sim := behavior.New(pacing.New(pacing.WithSleep(func(context.Context, time.Duration) error {
		slept++
		return nil
	})), discard)

	rep, err := sim.Simulate(context.Background(), rec.session(), models.FetchConfig{FastMode: true})

	require.NoError(t, err)
	assert.False(t, rep.Ran)
	assert.Empty(t, rec.scrolls)
	assert.Empty(t, rec.moves)
	assert.Zero(t, slept)
}

func TestSimulate_NormalModeBounds(t *testing.T) {
	t.Parallel()

	for seed := uint64(0); seed < 50; seed++ {
		rec := &recorder{}
		sim := behavior.New(pacing.New(
			pacing.WithRand(rand.New(rand.NewPCG(seed, seed+1)).IntN),
			pacing.WithSleep(noSleep),
		), discard)
		cfg := models.FetchConfig{Viewport: &models.Viewport{Width: 1000, Height: 800}}

		rep, err := sim.Simulate(context.Background(), rec.session(), cfg)

		require.NoError(t, err)
		assert.True(t, rep.Ran)
		require.GreaterOrEqual(t, rep.Steps, 2)
		require.LessOrEqual(t, rep.Steps, 6)
		assert.Len(t, rec.scrolls, rep.Steps)
		assert.Len(t, rec.moves, rep.Steps)

		prev := 0
		for _, y := range rec.scrolls {
			assert.Greater(t, y, prev, "scrolls must grow")
			prev = y
		}
		for _, m := range rec.moves {
			assert.GreaterOrEqual(t, m[0], 50)
			assert.Less(t, m[0], 850)
			assert.GreaterOrEqual(t, m[1], 100)
		}
	}
}

func TestSimulate_FastModeExplicitRequestIsSingleScroll(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	var delays []time.Duration
	sim := behavior.New(pacing.New(
		pacing.WithRand(func(int) int { return 0 }),
		pacing.WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	), discard)

	rep, err := sim.Simulate(context.Background(), rec.session(), models.FetchConfig{
		FastMode:      true,
		HumanBehavior: models.Bool(true),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, rep.Steps)
	assert.Equal(t, []int{100}, rec.scrolls)
	assert.Empty(t, rec.moves)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 125 * time.Millisecond}, delays)
}

func TestSimulate_ActionFailureEndsRun(t *testing.T) {
	t.Parallel()

	sess := &mock.Session{
		ScrollToFn: func(context.Context, int) error { return errors.New("execution context destroyed") },
	}
	sim := behavior.New(pacing.New(pacing.WithSleep(noSleep)), discard)

	rep, err := sim.Simulate(context.Background(), sess, models.FetchConfig{})

	require.Error(t, err)
	assert.True(t, rep.Ran)
	assert.Zero(t, rep.Steps)
}
