package gacha

import (
	"fmt"
	"strconv"
	"strings"
)

// Table holds the precomputed cumulative probability tables used by the
// batched kernel path. Tables are immutable once built; configuration
// changes rebuild a fresh Table instead of mutating one in place.
type Table struct {
	BasePity int

	// PityCDF[i] is the probability of hitting a reward at or before
	// absolute pity position i. Entries below BasePity are 0; when
	// BasePity > 0 the tail is conditioned on having survived that far
	// (rescaled by 1/(1-CDF(BasePity-1))). The final entry is exactly 1.
	PityCDF []float64

	// CategoryCDF[j] is the cumulative weight fraction of category j in
	// declared order; the last entry is forced to exactly 1 so a uniform
	// [0,1) random always lands somewhere.
	CategoryCDF []float64
}

// BuildTable derives both tables for one (curve, categories, basePity)
// configuration.
func BuildTable(curve Curve, cats []Category, basePity int) (*Table, error) {
	if err := curve.Validate(); err != nil {
		return nil, err
	}
	if basePity < 0 || basePity >= curve.HardPity {
		return nil, ErrPityRange
	}
	if len(cats) == 0 {
		return nil, ErrInvalidConfig
	}

	// unconditional CDF over all positions
	pity := make([]float64, curve.HardPity)
	miss := 1.0
	for p := 0; p < curve.HardPity; p++ {
		miss *= 1 - curve.ProbAt(p)
		pity[p] = 1 - miss
	}
	// ProbAt(HardPity-1) == 1 so the last entry is 1 up to rounding;
	// pin it so lane decoding always finds a hit
	pity[curve.HardPity-1] = 1

	if basePity > 0 {
		// condition on having banked basePity misses already
		prior := pity[basePity-1]
		survived := 1 - prior
		for p := 0; p < basePity; p++ {
			pity[p] = 0
		}
		if survived <= 0 {
			// the curve saturates inside the banked prefix; conditioned on
			// reaching basePity at all, the next draw is a guaranteed hit
			for p := basePity; p < curve.HardPity; p++ {
				pity[p] = 1
			}
		} else {
			for p := basePity; p < curve.HardPity; p++ {
				pity[p] = (pity[p] - prior) / survived
			}
			pity[curve.HardPity-1] = 1
		}
	}

	var sum float64
	for _, c := range cats {
		sum += c.Weight
	}
	if sum <= 0 {
		return nil, ErrInvalidConfig
	}
	cdf := make([]float64, len(cats))
	var cum float64
	for i, c := range cats {
		cum += c.Weight
		cdf[i] = cum / sum
	}
	cdf[len(cdf)-1] = 1

	return &Table{BasePity: basePity, PityCDF: pity, CategoryCDF: cdf}, nil
}

// PityTail returns the CDF slice the kernel iterates: positions
// BasePity..HardPity-1.
func (t *Table) PityTail() []float64 {
	return t.PityCDF[t.BasePity:]
}

// TableKey fingerprints a configuration for table caching. Same key ==
// same tables.
func TableKey(curve Curve, cats []Category, basePity int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%g/%d/%g/%d|%d", curve.Base, curve.SoftStart, curve.Increment, curve.HardPity, basePity)
	for _, c := range cats {
		b.WriteByte('|')
		b.WriteString(c.Name)
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(c.Weight, 'g', -1, 64))
	}
	return b.String()
}
