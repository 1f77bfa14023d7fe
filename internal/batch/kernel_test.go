package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/pullsim/internal/gacha"
	"github.com/xtding233/pullsim/internal/stats"
)

func TestDecodeLane(t *testing.T) {
	// first non-negative pity entry at index 2 -> 3 draws
	draws, cat, ok := decodeLane([]float64{-0.5, -0.1, 0.0, 0.4}, []float64{-0.2, 0.1})
	require.True(t, ok)
	assert.Equal(t, 3, draws)
	assert.Equal(t, 1, cat)

	// all pity entries negative -> invalid lane
	_, _, ok = decodeLane([]float64{-0.5, -0.1}, []float64{0.1})
	assert.False(t, ok)

	// no non-negative category entry falls back to the last category
	_, cat, ok = decodeLane([]float64{0.5}, []float64{-0.3, -0.1})
	require.True(t, ok)
	assert.Equal(t, 1, cat)
}

func TestLaneBudget(t *testing.T) {
	dev := &HostDevice{BufferBytes: 16000}
	// per lane: (100 + 2) * 8 = 816 bytes; 90% of 16000 = 14400 -> 17 lanes
	assert.Equal(t, 17, laneBudget(dev, 100, 2))

	// never below one lane
	tiny := &HostDevice{BufferBytes: 8}
	assert.Equal(t, 1, laneBudget(tiny, 100, 2))
}

func TestHostDeviceDispatch(t *testing.T) {
	cats := []gacha.Category{
		{Name: "a", Weight: 1, Target: 1},
		{Name: "b", Weight: 3, Target: 0},
	}
	table, err := gacha.BuildTable(gacha.DefaultCurve(), cats, 0)
	require.NoError(t, err)

	pity := table.PityTail()
	cdf := table.CategoryCDF
	job := &Job{
		PityCDF:     pity,
		CategoryCDF: cdf,
		R1:          []float64{0.01, 0.5, 0.999},
		R2:          []float64{0.1, 0.3, 0.9},
		PityDiff:    make([]float64, 3*len(pity)),
		CatDiff:     make([]float64, 3*len(cdf)),
	}
	require.NoError(t, (&HostDevice{}).Dispatch(context.Background(), job))

	for l := 0; l < 3; l++ {
		for k, v := range pity {
			assert.Equal(t, v-job.R1[l], job.PityDiff[l*len(pity)+k])
		}
		for j, v := range cdf {
			assert.Equal(t, v-job.R2[l], job.CatDiff[l*len(cdf)+j])
		}
	}
}

func TestHostDeviceRejectsMalformedJob(t *testing.T) {
	dev := &HostDevice{}
	err := dev.Dispatch(context.Background(), &Job{})
	assert.ErrorIs(t, err, ErrJobShape)

	err = dev.Dispatch(context.Background(), &Job{
		PityCDF:     []float64{1},
		CategoryCDF: []float64{1},
		R1:          []float64{0.5},
		R2:          []float64{0.5},
		PityDiff:    []float64{0, 0}, // wrong size
		CatDiff:     []float64{0},
	})
	assert.ErrorIs(t, err, ErrJobShape)
}

func TestHostDeviceRejectsOversizedDispatch(t *testing.T) {
	dev := &HostDevice{BufferBytes: 64}
	pity := make([]float64, 100)
	pity[99] = 1
	job := &Job{
		PityCDF:     pity,
		CategoryCDF: []float64{1},
		R1:          []float64{0.5},
		R2:          []float64{0.5},
		PityDiff:    make([]float64, 100),
		CatDiff:     make([]float64, 1),
	}
	assert.ErrorIs(t, dev.Dispatch(context.Background(), job), ErrDispatch)
}

func TestRunChunkCompletesTrials(t *testing.T) {
	cats := []gacha.Category{
		{Name: "a", Weight: 1, Target: 2},
		{Name: "b", Weight: 1, Target: 0},
	}
	table, err := gacha.BuildTable(gacha.DefaultCurve(), cats, 0)
	require.NoError(t, err)

	acc := stats.NewAccumulator()
	folded := 0
	err = runChunk(context.Background(), &HostDevice{}, table, table, cats,
		gacha.NewSeededRNG(42), 500, acc, func() { folded++ })
	require.NoError(t, err)
	assert.Equal(t, uint64(500), acc.Trials())
	assert.Equal(t, 500, folded)

	rep := acc.Report()
	assert.Equal(t, uint64(500), rep.Bucket.Total())
	// every trial needs at least two reward events to meet a's quota
	assert.Equal(t, uint64(1000), rep.Categories["a"].Count)
}
