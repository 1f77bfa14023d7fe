package gacha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRNG always returns the same value.
type fixedRNG struct{ v float64 }

func (f fixedRNG) Float64() float64 { return f.v }

func TestCurveProbAt(t *testing.T) {
	c := DefaultCurve()

	assert.InDelta(t, 0.02, c.ProbAt(0), 1e-12)
	assert.InDelta(t, 0.02, c.ProbAt(49), 1e-12)
	assert.InDelta(t, 0.04, c.ProbAt(50), 1e-12)
	assert.InDelta(t, 0.06, c.ProbAt(51), 1e-12)
	assert.InDelta(t, 1.0, c.ProbAt(98), 1e-12)
	assert.Equal(t, 1.0, c.ProbAt(99))
}

func TestCurveValidate(t *testing.T) {
	require.NoError(t, DefaultCurve().Validate())

	bad := []Curve{
		{Base: 0.02, SoftStart: 50, Increment: 0.02, HardPity: 1},
		{Base: 0, SoftStart: 50, Increment: 0.02, HardPity: 100},
		{Base: 0.02, SoftStart: 100, Increment: 0.02, HardPity: 100},
		{Base: 0.02, SoftStart: 50, Increment: 0, HardPity: 100},
	}
	for _, c := range bad {
		assert.ErrorIs(t, c.Validate(), ErrCurveConfig)
	}
}

// For all basePity in [0,99], Hit returns a value in [1, 100-basePity].
func TestHitBounds(t *testing.T) {
	c := DefaultCurve()
	rng := NewSeededRNG(42)
	for base := 0; base < c.HardPity; base++ {
		for i := 0; i < 200; i++ {
			got, err := c.Hit(base, rng)
			require.NoError(t, err)
			if got < 1 || got > c.HardPity-base {
				t.Fatalf("Hit(%d) = %d, want in [1,%d]", base, got, c.HardPity-base)
			}
		}
	}
}

func TestHitGuaranteeUnderMisses(t *testing.T) {
	c := DefaultCurve()
	// an RNG that always rolls 100 only hits once the ramp reaches 100%
	got, err := c.Hit(0, fixedRNG{v: 0.999999})
	require.NoError(t, err)
	assert.Equal(t, 99, got) // position 98 is the first with probability 1

	// starting past the guarantee point hits immediately
	got, err = c.Hit(99, fixedRNG{v: 0.999999})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestHitLuckyFirstDraw(t *testing.T) {
	c := DefaultCurve()
	// an RNG that always rolls 1 hits on the first draw
	got, err := c.Hit(0, fixedRNG{v: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestHitRejectsBadPity(t *testing.T) {
	c := DefaultCurve()
	_, err := c.Hit(-1, nil)
	assert.ErrorIs(t, err, ErrPityRange)
	_, err = c.Hit(100, nil)
	assert.ErrorIs(t, err, ErrPityRange)
}

func TestHitMeanMatchesClosedForm(t *testing.T) {
	if testing.Short() {
		t.Skip("sampling test")
	}
	c := DefaultCurve()

	// closed-form expectation of the curve
	var want, surv float64
	surv = 1
	for n := 0; surv > 1e-15; n++ {
		want += surv
		surv *= 1 - c.ProbAt(n)
	}

	rng := NewSeededRNG(7)
	const n = 50000
	var sum int
	for i := 0; i < n; i++ {
		d, err := c.Hit(0, rng)
		require.NoError(t, err)
		sum += d
	}
	got := float64(sum) / n
	assert.InDelta(t, want, got, 0.6, "sampled mean %f vs expectation %f", got, want)
}
