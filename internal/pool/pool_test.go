package pool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/pullsim/internal/gacha"
)

var testCats = []gacha.Category{
	{Name: "featured", Weight: 1, Target: 1},
	{Name: "off", Weight: 1, Target: 0},
}

func TestRunCompletesAllTrials(t *testing.T) {
	s := New(Config{Workers: 4})
	defer s.Shutdown()

	const n = 5000
	acc, err := s.Run(context.Background(), Request{
		Trials:     n,
		Categories: testCats,
		Seed:       42,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(n), acc.Trials())
	assert.Equal(t, uint64(n), acc.Report().Bucket.Total())
}

func TestRunProgressReaches100(t *testing.T) {
	s := New(Config{Workers: 2})
	defer s.Shutdown()

	var mu sync.Mutex
	var seen []float64
	_, err := s.Run(context.Background(), Request{
		Trials:     200,
		Categories: testCats,
		Seed:       1,
		OnProgress: func(pct float64) {
			mu.Lock()
			seen = append(seen, pct)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.Len(t, seen, 200)
	prev := 0.0
	for _, p := range seen {
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
	assert.Equal(t, 100.0, seen[len(seen)-1])
}

func TestExecutorFailureFailsRun(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	var mu sync.Mutex
	s := New(Config{
		Workers: 4,
		Trial: func(cats []gacha.Category, basePity int, curve gacha.Curve, rng gacha.RandomSource) (gacha.TrialResult, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 50 {
				return gacha.TrialResult{}, boom
			}
			return gacha.RunTrial(cats, basePity, curve, rng)
		},
	})
	defer s.Shutdown()

	acc, err := s.Run(context.Background(), Request{
		Trials:     10000,
		Categories: testCats,
		Seed:       3,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutor)
	// no partial aggregate escapes a failed run
	assert.Nil(t, acc)
}

func TestRunAfterShutdownRejected(t *testing.T) {
	s := New(Config{Workers: 1})
	s.Shutdown()
	_, err := s.Run(context.Background(), Request{Trials: 1, Categories: testCats})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestRunZeroTrials(t *testing.T) {
	s := New(Config{Workers: 1})
	defer s.Shutdown()
	acc, err := s.Run(context.Background(), Request{Trials: 0, Categories: testCats})
	require.NoError(t, err)
	assert.Zero(t, acc.Trials())
}

func TestRunCanceledContext(t *testing.T) {
	s := New(Config{Workers: 2})
	defer s.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Run(ctx, Request{Trials: 100000, Categories: testCats, Seed: 5})
	assert.Error(t, err)
}

// With a single executor the task order is sequential, so a pinned
// seed reproduces the run exactly.
func TestSeededRunsReproduce(t *testing.T) {
	s := New(Config{Workers: 1})
	defer s.Shutdown()

	run := func() map[int]uint64 {
		acc, err := s.Run(context.Background(), Request{
			Trials:     2000,
			Categories: testCats,
			Seed:       99,
		})
		require.NoError(t, err)
		return map[int]uint64(acc.Report().Bucket)
	}
	assert.Equal(t, run(), run())
}
