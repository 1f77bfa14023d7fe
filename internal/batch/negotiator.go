package batch

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xtding233/pullsim/internal/gacha"
	"github.com/xtding233/pullsim/internal/stats"
)

// Status is the backend capability surface consumed by callers.
type Status struct {
	Available bool `json:"available"`
	Enabled   bool `json:"enabled"`
}

// Request describes one batched run. Field meanings match the
// worker-pool scheduler's request so the two paths are interchangeable.
type Request struct {
	Trials     uint64
	Categories []gacha.Category
	BasePity   int
	Seed       uint64
	OnProgress func(percent float64)
}

// Negotiator probes the batched backend, caches probability tables per
// configuration, and runs full trials through chunked dispatches. A Run
// error means the backend could not complete the work; callers recover
// by re-running on the worker-pool path.
type Negotiator struct {
	dev   Device
	curve gacha.Curve

	mu        sync.Mutex
	available bool
	enabled   bool
	subs      map[int]func(Status)
	nextSub   int
	tables    map[string]*gacha.Table
}

func NewNegotiator(dev Device, curve gacha.Curve) *Negotiator {
	if curve == (gacha.Curve{}) {
		curve = gacha.DefaultCurve()
	}
	n := &Negotiator{
		dev:     dev,
		curve:   curve,
		enabled: true,
		subs:    make(map[int]func(Status)),
		tables:  make(map[string]*gacha.Table),
	}
	n.available = n.probe()
	if !n.available {
		log.Warn("batched backend unavailable, worker pool is the only path")
	}
	return n
}

// probe runs a one-lane dispatch against a trivial table to confirm
// the device honors the kernel contract.
func (n *Negotiator) probe() bool {
	if n.dev == nil {
		return false
	}
	table, err := gacha.BuildTable(n.curve, []gacha.Category{{Name: "probe", Weight: 1, Target: 1}}, 0)
	if err != nil {
		return false
	}
	job := &Job{
		PityCDF:     table.PityTail(),
		CategoryCDF: table.CategoryCDF,
		R1:          []float64{0.5},
		R2:          []float64{0.5},
		PityDiff:    make([]float64, len(table.PityTail())),
		CatDiff:     make([]float64, len(table.CategoryCDF)),
	}
	if err := n.dev.Dispatch(context.Background(), job); err != nil {
		log.WithError(err).WithField("device", n.dev.Name()).Debug("backend probe failed")
		return false
	}
	_, _, ok := decodeLane(job.PityDiff, job.CatDiff)
	return ok
}

func (n *Negotiator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Status{Available: n.available, Enabled: n.enabled}
}

// SetEnabled toggles the batched path without touching availability.
func (n *Negotiator) SetEnabled(enabled bool) {
	n.mu.Lock()
	if n.enabled == enabled {
		n.mu.Unlock()
		return
	}
	n.enabled = enabled
	st := Status{Available: n.available, Enabled: n.enabled}
	subs := make([]func(Status), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// OnStatusChange registers a callback invoked on status transitions
// and returns its unsubscribe function.
func (n *Negotiator) OnStatusChange(fn func(Status)) func() {
	n.mu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Usable reports whether the batched path should be attempted.
func (n *Negotiator) Usable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.available && n.enabled
}

// tableFor returns the cached table for a configuration, rebuilding
// when the configuration changes. Tables are immutable; a rebuild never
// touches one an in-flight dispatch may still read.
func (n *Negotiator) tableFor(cats []gacha.Category, basePity int) (*gacha.Table, error) {
	key := gacha.TableKey(n.curve, cats, basePity)
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.tables[key]; ok {
		return t, nil
	}
	t, err := gacha.BuildTable(n.curve, cats, basePity)
	if err != nil {
		return nil, err
	}
	n.tables[key] = t
	return t, nil
}

// Run executes req.Trials full trials on the batched path. Outcomes
// are folded into a private accumulator that is returned only on full
// success, so a mid-run dispatch failure leaks no partial results.
func (n *Negotiator) Run(ctx context.Context, req Request) (*stats.Accumulator, error) {
	if !n.Usable() {
		return nil, ErrUnavailable
	}
	baseTable, err := n.tableFor(req.Categories, req.BasePity)
	if err != nil {
		return nil, err
	}
	zeroTable := baseTable
	if req.BasePity != 0 {
		zeroTable, err = n.tableFor(req.Categories, 0)
		if err != nil {
			return nil, err
		}
	}

	seed := req.Seed
	if seed == 0 {
		seed = gacha.RandomSeed()
	}
	rng := gacha.NewSeededRNG(seed)

	acc := stats.NewAccumulator()
	// the zero-pity tail is the longest any dispatch group evaluates
	// (the banked-pity tail is shorter), so one budget bounds both the
	// first-event and continuing groups
	budget := laneBudget(n.dev, len(zeroTable.PityTail()), len(zeroTable.CategoryCDF))
	logger := log.WithFields(log.Fields{
		"device": n.dev.Name(),
		"trials": req.Trials,
		"lanes":  budget,
	})
	logger.Debug("batched run starting")

	var completed uint64
	onTrial := func() {
		completed++
		if req.OnProgress != nil {
			req.OnProgress(float64(completed) / float64(req.Trials) * 100)
		}
	}

	remaining := req.Trials
	for remaining > 0 {
		chunk := remaining
		if uint64(budget) < chunk {
			chunk = uint64(budget)
		}
		if err := runChunk(ctx, n.dev, baseTable, zeroTable, req.Categories, rng, int(chunk), acc, onTrial); err != nil {
			logger.WithError(err).Warn("batched run abandoned")
			return nil, err
		}
		remaining -= chunk
	}

	logger.Debug("batched run completed")
	return acc, nil
}
