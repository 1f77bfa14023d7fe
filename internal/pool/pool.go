package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xtding233/pullsim/internal/gacha"
	"github.com/xtding233/pullsim/internal/stats"
)

var (
	ErrExecutor = errors.New("executor failure")
	ErrShutdown = errors.New("scheduler is shut down")
)

// TrialFunc computes one trial. The default is gacha.RunTrial; tests
// inject failing variants.
type TrialFunc func(cats []gacha.Category, basePity int, curve gacha.Curve, rng gacha.RandomSource) (gacha.TrialResult, error)

// Config for a scheduler instance.
type Config struct {
	Workers int         // executor count; <=0 means runtime.NumCPU()
	Curve   gacha.Curve // zero value means gacha.DefaultCurve()
	Trial   TrialFunc   // nil means gacha.RunTrial
}

// Scheduler owns a fixed-size set of executors and drives one trial
// per executor at a time. It is an explicit, caller-owned object with
// a create/run/shutdown lifecycle; executors are spun up per run and
// torn down when the run ends.
type Scheduler struct {
	workers int
	curve   gacha.Curve
	trial   TrialFunc

	mu     sync.Mutex
	closed bool
}

// Request describes one run.
type Request struct {
	Trials     uint64
	Categories []gacha.Category
	BasePity   int
	Seed       uint64 // 0 derives a fresh crypto seed
	OnProgress func(percent float64)
}

func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Curve == (gacha.Curve{}) {
		cfg.Curve = gacha.DefaultCurve()
	}
	if cfg.Trial == nil {
		cfg.Trial = func(cats []gacha.Category, basePity int, curve gacha.Curve, rng gacha.RandomSource) (gacha.TrialResult, error) {
			return gacha.RunTrial(cats, basePity, curve, rng)
		}
	}
	return &Scheduler{workers: cfg.Workers, curve: cfg.Curve, trial: cfg.Trial}
}

func (s *Scheduler) Workers() int { return s.workers }

// Shutdown marks the scheduler unusable. In-flight runs finish; new
// runs are rejected.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type trialReply struct {
	res gacha.TrialResult
	err error
}

// Run executes req.Trials trials across the executor set and folds
// outcomes into a fresh accumulator. Completion order is unspecified;
// the fold is commutative so the final statistics do not depend on it.
// The first executor error fails the whole run: pending trials are
// discarded and no partial aggregate is returned.
func (s *Scheduler) Run(ctx context.Context, req Request) (*stats.Accumulator, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	s.mu.Unlock()

	acc := stats.NewAccumulator()
	if req.Trials == 0 {
		return acc, nil
	}

	seed := req.Seed
	if seed == 0 {
		seed = gacha.RandomSeed()
	}

	logger := log.WithFields(log.Fields{"trials": req.Trials, "workers": s.workers})
	logger.Debug("run dispatching")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan uint64)
	replies := make(chan trialReply, s.workers)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			// per-executor PCG stream; spacing by a large odd constant
			// keeps streams disjoint in practice
			rng := gacha.NewSeededRNG(seed + uint64(id)*0x9e3779b97f4a7c15)
			for range tasks {
				res, err := s.trial(req.Categories, req.BasePity, s.curve, rng)
				select {
				case replies <- trialReply{res: res, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}

	// feeder: hands out one pending trial id at a time; an executor
	// receives the next id the moment it reports back, which keeps the
	// whole set saturated regardless of per-trial duration variance
	go func() {
		defer close(tasks)
		for id := uint64(0); id < req.Trials; id++ {
			select {
			case tasks <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	var completed uint64
	for completed < req.Trials {
		select {
		case r := <-replies:
			if r.err != nil {
				cancel()
				wg.Wait()
				logger.WithError(r.err).Error("run failed")
				return nil, fmt.Errorf("%w: %v", ErrExecutor, r.err)
			}
			acc.Fold(r.res)
			completed++
			if req.OnProgress != nil {
				req.OnProgress(float64(completed) / float64(req.Trials) * 100)
			}
		case <-ctx.Done():
			wg.Wait()
			logger.WithError(ctx.Err()).Error("run canceled")
			return nil, ctx.Err()
		}
	}

	// draining: all outcomes folded, release the executors
	wg.Wait()
	logger.Debug("run completed")
	return acc, nil
}
