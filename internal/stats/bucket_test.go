package stats

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/pullsim/internal/gacha"
)

func TestBucketInvariant(t *testing.T) {
	acc := NewAccumulator()
	r := rand.New(rand.NewPCG(42, 0))
	const n = 10000
	for i := 0; i < n; i++ {
		acc.Fold(gacha.TrialResult{
			TotalDraws: r.IntN(100) + 1,
			Hits:       map[string]int{"a": 1},
		})
	}
	assert.Equal(t, uint64(n), acc.Trials())
	assert.Equal(t, uint64(n), acc.bucket.Total())

	rep := acc.Report()
	assert.Equal(t, uint64(n), rep.TotalTrials)
	assert.Equal(t, uint64(n), rep.Bucket.Total())
	assert.Equal(t, uint64(n), rep.Categories["a"].Count)
}

// Folding the same multiset in any order, in any chunking, yields
// bit-identical central statistics.
func TestFoldOrderIndependence(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 0))
	outcomes := make([]gacha.TrialResult, 5000)
	for i := range outcomes {
		outcomes[i] = gacha.TrialResult{
			TotalDraws: r.IntN(90) + 1,
			Hits:       map[string]int{"a": 1, "b": r.IntN(3)},
		}
	}

	forward := NewAccumulator()
	for _, o := range outcomes {
		forward.Fold(o)
	}

	backward := NewAccumulator()
	for i := len(outcomes) - 1; i >= 0; i-- {
		backward.Fold(outcomes[i])
	}

	shuffled := NewAccumulator()
	left, right := NewAccumulator(), NewAccumulator()
	perm := r.Perm(len(outcomes))
	for i, idx := range perm {
		if i%2 == 0 {
			left.Fold(outcomes[idx])
		} else {
			right.Fold(outcomes[idx])
		}
	}
	shuffled.Merge(left)
	shuffled.Merge(right)

	want := forward.Report()
	for name, rep := range map[string]*Report{
		"backward": backward.Report(),
		"chunked":  shuffled.Report(),
	} {
		assert.Equal(t, want.Central.Mean, rep.Central.Mean, name)
		assert.Equal(t, want.Central.Median, rep.Central.Median, name)
		assert.Equal(t, want.Central.Sigma, rep.Central.Sigma, name)
		assert.Equal(t, want.Bucket, rep.Bucket, name)
		assert.Equal(t, want.Categories, rep.Categories, name)
	}
}

func TestReportIsRepeatable(t *testing.T) {
	acc := NewAccumulator()
	for i := 1; i <= 10; i++ {
		acc.Fold(gacha.TrialResult{TotalDraws: i * 7, Hits: map[string]int{"a": 1}})
	}
	first := acc.Report()
	second := acc.Report()
	require.Equal(t, first, second)

	// mutating a returned bucket must not leak back into the accumulator
	first.Bucket[7] += 100
	assert.Equal(t, second.Bucket, acc.Report().Bucket)
}

func TestEmptyAccumulator(t *testing.T) {
	rep := NewAccumulator().Report()
	assert.Zero(t, rep.TotalTrials)
	assert.Empty(t, rep.Curve)
	assert.Empty(t, rep.Bins)
	assert.Empty(t, rep.Categories)
}
