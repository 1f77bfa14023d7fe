package gacha

// TrialResult is the outcome of one full trial: draws until every
// category with a nonzero target met its quota.
type TrialResult struct {
	TotalDraws int
	Hits       map[string]int
}

// RunTrial executes one trial. Pity starts at basePity and resets to 0
// after every reward. Callers must have validated the category set
// already; with no nonzero target the loop still runs exactly one
// reward cycle before returning.
func RunTrial(cats []Category, basePity int, curve Curve, rng RandomSource) (TrialResult, error) {
	if rng == nil {
		rng = DefaultRNG()
	}

	hits := make([]int, len(cats))
	unmet := 0
	for _, c := range cats {
		if c.Target > 0 {
			unmet++
		}
	}

	total := 0
	pity := basePity
	for {
		draws, err := curve.Hit(pity, rng)
		if err != nil {
			return TrialResult{}, err
		}
		total += draws
		pity = 0

		idx, err := SelectCategory(cats, rng)
		if err != nil {
			return TrialResult{}, err
		}
		hits[idx]++
		if cats[idx].Target > 0 && hits[idx] == cats[idx].Target {
			unmet--
		}
		if unmet <= 0 {
			break
		}
	}

	out := TrialResult{TotalDraws: total, Hits: make(map[string]int, len(cats))}
	for i, c := range cats {
		if hits[i] > 0 {
			out.Hits[c.Name] = hits[i]
		}
	}
	return out, nil
}
