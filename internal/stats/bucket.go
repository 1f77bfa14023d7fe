package stats

import (
	"sort"

	"github.com/xtding233/pullsim/internal/gacha"
)

// DrawsBucket is a sparse histogram mapping a trial's total draw count
// to its occurrence frequency. It is the only durable record of trial
// results: memory grows with distinct observed values, never with trial
// count.
type DrawsBucket map[int]uint64

func (b DrawsBucket) Add(draws int) { b[draws]++ }

// Total returns the number of folded trials; invariant:
// sum(values) == completed trials.
func (b DrawsBucket) Total() uint64 {
	var n uint64
	for _, c := range b {
		n += c
	}
	return n
}

// Keys returns the distinct observed draw values in ascending order.
func (b DrawsBucket) Keys() []int {
	ks := make([]int, 0, len(b))
	for k := range b {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}

// Clone returns an independent copy so derived reports can hold the
// bucket without aliasing accumulator state.
func (b DrawsBucket) Clone() DrawsBucket {
	out := make(DrawsBucket, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Accumulator folds completed trial outcomes into bounded-size state.
// The fold is commutative and associative, so any completion order
// (and any chunk merge order) yields identical final statistics.
// Not safe for concurrent use; the owning scheduler serializes folds.
type Accumulator struct {
	bucket DrawsBucket
	hits   map[string]uint64
	trials uint64
	draws  uint64 // sum of TotalDraws over all folded trials
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		bucket: make(DrawsBucket),
		hits:   make(map[string]uint64),
	}
}

func (a *Accumulator) Fold(res gacha.TrialResult) {
	a.bucket.Add(res.TotalDraws)
	a.trials++
	a.draws += uint64(res.TotalDraws)
	for name, n := range res.Hits {
		a.hits[name] += uint64(n)
	}
}

// Merge absorbs another accumulator, e.g. one produced by a batched
// chunk.
func (a *Accumulator) Merge(o *Accumulator) {
	for k, v := range o.bucket {
		a.bucket[k] += v
	}
	for name, n := range o.hits {
		a.hits[name] += n
	}
	a.trials += o.trials
	a.draws += o.draws
}

func (a *Accumulator) Trials() uint64 { return a.trials }
