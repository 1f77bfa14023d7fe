package gacha

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid category config")

// Category is one configured prize category. Target==0 means the
// category is tracked but does not gate trial completion.
type Category struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
	Target int     `yaml:"target" json:"target"`
}

// ValidateCategories checks semantic constraints of a category set:
// non-empty, unique names, positive finite weights, and at least one
// nonzero target (otherwise a trial would never complete).
func ValidateCategories(cats []Category) error {
	var errs []string

	if len(cats) == 0 {
		errs = append(errs, "at least one category is required")
	}
	seen := make(map[string]struct{}, len(cats))
	anyTarget := false
	for i, c := range cats {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Sprintf("categories[%d].name must be non-empty", i))
		}
		if _, dup := seen[c.Name]; dup {
			errs = append(errs, fmt.Sprintf("categories[%d].name %q is duplicated", i, c.Name))
		}
		seen[c.Name] = struct{}{}
		// weights are relative shares, not probabilities; any positive
		// finite number is fine
		if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight <= 0 {
			errs = append(errs, fmt.Sprintf("categories[%d].weight must be > 0", i))
		}
		if c.Target < 0 {
			errs = append(errs, fmt.Sprintf("categories[%d].target must be >= 0", i))
		}
		if c.Target > 0 {
			anyTarget = true
		}
	}
	if len(cats) > 0 && !anyTarget {
		errs = append(errs, "at least one category needs target > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// SelectCategory picks which category received a reward, proportional
// to weight. It walks categories in declared order subtracting weight
// from a uniform pick in [0, sum); if floating point drift leaves a
// remainder, the last category is the fallback. Ordering and
// normalization match the CategoryCDF table so the batched path is
// statistically equivalent.
func SelectCategory(cats []Category, rng RandomSource) (int, error) {
	if len(cats) == 0 {
		return 0, ErrInvalidConfig
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	var sum float64
	for _, c := range cats {
		sum += c.Weight
	}
	rem := rng.Float64() * sum
	for i, c := range cats {
		rem -= c.Weight
		if rem <= 0 {
			return i, nil
		}
	}
	return len(cats) - 1, nil
}
