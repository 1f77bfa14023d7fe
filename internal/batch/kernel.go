package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtding233/pullsim/internal/gacha"
	"github.com/xtding233/pullsim/internal/stats"
)

// Fraction of the device buffer limit a single dispatch may occupy.
const bufferFraction = 0.9

// laneBudget returns how many lanes fit one dispatch given the table
// sizes and the device's buffer limit.
func laneBudget(dev Device, pityLen, catLen int) int {
	perLane := (pityLen + catLen) * 8
	budget := int(float64(dev.MaxBufferBytes()) * bufferFraction)
	lanes := budget / perLane
	if lanes < 1 {
		lanes = 1
	}
	return lanes
}

// decodeLane scans a lane's difference vectors for the first
// non-negative entry. The pity scan yields draws-to-hit (index+1
// relative to the lane's starting position); the category scan yields
// the selected category. A lane with no non-negative pity entry is
// invalid and reported via ok=false; table construction pins the last
// entry to 1, so a well-formed table never produces one.
func decodeLane(pityDiff, catDiff []float64) (draws, cat int, ok bool) {
	draws = -1
	for k, d := range pityDiff {
		if d >= 0 {
			draws = k + 1
			break
		}
	}
	if draws < 0 {
		return 0, 0, false
	}
	cat = len(catDiff) - 1
	for j, d := range catDiff {
		if d >= 0 {
			cat = j
			break
		}
	}
	return draws, cat, true
}

// trialState tracks one in-flight trial inside a chunk.
type trialState struct {
	draws  int
	hits   []int
	events int
	unmet  int
}

// runChunk drives `count` trials to completion through repeated
// dispatches. The first reward event of a trial evaluates against the
// base-pity table; every later event (and pity resets) against the
// zero-pity table. Invalid lanes are dropped without folding anything
// and their trials simply re-enter the next dispatch, so the number of
// accepted outcomes always equals `count`.
func runChunk(
	ctx context.Context,
	dev Device,
	baseTable, zeroTable *gacha.Table,
	cats []gacha.Category,
	rng gacha.RandomSource,
	count int,
	acc *stats.Accumulator,
	onTrial func(),
) error {
	states := make([]trialState, count)
	unmet := 0
	for _, c := range cats {
		if c.Target > 0 {
			unmet++
		}
	}
	pending := make([]int, count)
	for i := range states {
		states[i].hits = make([]int, len(cats))
		states[i].unmet = unmet
		pending[i] = i
	}

	for len(pending) > 0 {
		// lanes in one dispatch must share a table: split pending into
		// first-event trials (base pity) and continuing trials (zero pity)
		var first, rest []int
		for _, idx := range pending {
			if states[idx].events == 0 {
				first = append(first, idx)
			} else {
				rest = append(rest, idx)
			}
		}

		pending = pending[:0]
		for _, group := range [][]int{first, rest} {
			if len(group) == 0 {
				continue
			}
			table := zeroTable
			if states[group[0]].events == 0 {
				table = baseTable
			}
			kept, err := dispatchGroup(ctx, dev, table, cats, rng, group, states, acc, onTrial)
			if err != nil {
				return err
			}
			pending = append(pending, kept...)
		}
	}
	return nil
}

// dispatchGroup runs one kernel dispatch for the given trial indexes
// and applies the decoded reward events. It returns the indexes that
// still need more reward events (including invalid lanes to retry).
func dispatchGroup(
	ctx context.Context,
	dev Device,
	table *gacha.Table,
	cats []gacha.Category,
	rng gacha.RandomSource,
	group []int,
	states []trialState,
	acc *stats.Accumulator,
	onTrial func(),
) ([]int, error) {
	pityCDF := table.PityTail()
	catCDF := table.CategoryCDF
	lanes := len(group)

	job := &Job{
		PityCDF:     pityCDF,
		CategoryCDF: catCDF,
		R1:          make([]float64, lanes),
		R2:          make([]float64, lanes),
		PityDiff:    make([]float64, lanes*len(pityCDF)),
		CatDiff:     make([]float64, lanes*len(catCDF)),
	}
	for l := range job.R1 {
		job.R1[l] = rng.Float64()
		job.R2[l] = rng.Float64()
	}

	if err := dev.Dispatch(ctx, job); err != nil {
		if errors.Is(err, ErrDispatch) || errors.Is(err, ErrJobShape) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	var keep []int
	for l, idx := range group {
		pd := job.PityDiff[l*len(pityCDF) : (l+1)*len(pityCDF)]
		cd := job.CatDiff[l*len(catCDF) : (l+1)*len(catCDF)]
		draws, catIdx, ok := decodeLane(pd, cd)
		if !ok {
			// invalid lane: nothing folds, the trial re-enters the next dispatch
			keep = append(keep, idx)
			continue
		}
		st := &states[idx]
		st.draws += draws
		st.events++
		st.hits[catIdx]++
		if cats[catIdx].Target > 0 && st.hits[catIdx] == cats[catIdx].Target {
			st.unmet--
		}
		if st.unmet <= 0 {
			res := gacha.TrialResult{TotalDraws: st.draws, Hits: make(map[string]int, len(cats))}
			for i, c := range cats {
				if st.hits[i] > 0 {
					res.Hits[c.Name] = st.hits[i]
				}
			}
			acc.Fold(res)
			if onTrial != nil {
				onTrial()
			}
		} else {
			keep = append(keep, idx)
		}
	}
	return keep, nil
}
