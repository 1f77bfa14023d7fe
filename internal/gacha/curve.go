package gacha

import "errors"

var (
	ErrCurveConfig = errors.New("invalid pity curve config")
	ErrPityRange   = errors.New("base pity out of range")
)

// Curve defines the per-draw hit probability as a function of the pity
// position (consecutive misses since the last reward).
// - positions < SoftStart use Base
// - positions >= SoftStart ramp by Increment per position
// - position HardPity-1 is a guaranteed hit
type Curve struct {
	Base      float64 // base hit probability, e.g. 0.02
	SoftStart int     // first ramped position, e.g. 50
	Increment float64 // per-position increment inside the ramp, e.g. 0.02
	HardPity  int     // guarantee threshold, e.g. 100
}

// DefaultCurve is the 2% / soft-50 / hard-100 curve used when a caller
// does not supply one.
func DefaultCurve() Curve {
	return Curve{Base: 0.02, SoftStart: 50, Increment: 0.02, HardPity: 100}
}

func (c Curve) Validate() error {
	if c.HardPity <= 1 {
		return ErrCurveConfig
	}
	if !(c.Base > 0 && c.Base < 1) {
		return ErrCurveConfig
	}
	if c.SoftStart < 0 || c.SoftStart >= c.HardPity {
		return ErrCurveConfig
	}
	if c.Increment <= 0 {
		return ErrCurveConfig
	}
	return nil
}

// ProbAt returns the hit probability at absolute pity position p.
func (c Curve) ProbAt(p int) float64 {
	if p >= c.HardPity-1 {
		return 1
	}
	if p < c.SoftStart {
		return c.Base
	}
	pr := c.Base + c.Increment*float64(p-(c.SoftStart-1))
	if pr > 1 {
		pr = 1
	}
	return pr
}

// Hit draws until a reward occurs and returns the number of draws
// consumed in this call, independent of how much pity was banked:
// (final pity) - basePity. Result is in [1, HardPity-basePity].
// Each attempt rolls a fresh uniform integer in [1,100] against the
// percent probability for the current position.
func (c Curve) Hit(basePity int, rng RandomSource) (int, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if basePity < 0 || basePity >= c.HardPity {
		return 0, ErrPityRange
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	for p := basePity; ; p++ {
		if p >= c.HardPity-1 {
			// hard pity forces the hit
			return p - basePity + 1, nil
		}
		roll := int(rng.Float64()*100) + 1 // uniform in [1,100]
		if float64(roll) <= c.ProbAt(p)*100 {
			return p - basePity + 1, nil
		}
	}
}
