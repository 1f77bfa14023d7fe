package sim

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/xtding233/pullsim/internal/batch"
	"github.com/xtding233/pullsim/internal/gacha"
	"github.com/xtding233/pullsim/internal/pool"
	"github.com/xtding233/pullsim/internal/stats"
)

// Config assembles a Simulator.
type Config struct {
	Workers int          // executor pool size; <=0 means NumCPU
	Curve   gacha.Curve  // zero value means gacha.DefaultCurve()
	Device  batch.Device // nil means the host reference device
}

// Request is one simulation run.
type Request struct {
	Trials     uint64
	Categories []gacha.Category
	BasePity   int
	Seed       uint64 // 0 derives a fresh crypto seed; nonzero pins the run
	OnProgress func(percent float64)
}

// Simulator is the core entry point: it validates configuration, lets
// the capability negotiator pick the batched path or the worker pool,
// and folds outcomes into the streaming aggregator. One Simulator can
// serve many runs; state is per run.
type Simulator struct {
	curve gacha.Curve
	sched *pool.Scheduler
	neg   *batch.Negotiator
}

func New(cfg Config) *Simulator {
	if cfg.Curve == (gacha.Curve{}) {
		cfg.Curve = gacha.DefaultCurve()
	}
	if cfg.Device == nil {
		cfg.Device = &batch.HostDevice{}
	}
	return &Simulator{
		curve: cfg.Curve,
		sched: pool.New(pool.Config{Workers: cfg.Workers, Curve: cfg.Curve}),
		neg:   batch.NewNegotiator(cfg.Device, cfg.Curve),
	}
}

// Backend exposes the batched-backend capability surface
// (availability, enable toggle, status subscription).
func (s *Simulator) Backend() *batch.Negotiator { return s.neg }

func (s *Simulator) Workers() int { return s.sched.Workers() }

func (s *Simulator) Close() { s.sched.Shutdown() }

// Run executes req.Trials trials and returns the derived statistics.
// Backend dispatch failures are recovered by transparently re-running
// on the worker pool; configuration and executor errors are fatal.
func (s *Simulator) Run(ctx context.Context, req Request) (*stats.Report, error) {
	if req.Trials == 0 {
		return nil, fmt.Errorf("%w: trials must be > 0", gacha.ErrInvalidConfig)
	}
	if err := gacha.ValidateCategories(req.Categories); err != nil {
		return nil, err
	}
	if req.BasePity < 0 || req.BasePity >= s.curve.HardPity {
		return nil, gacha.ErrPityRange
	}

	// a fallback re-runs every trial from zero; filtering regressing
	// percentages keeps consumers from seeing the bar jump backward
	progress := req.OnProgress
	if progress != nil {
		inner := progress
		var last float64
		progress = func(pct float64) {
			if pct < last {
				return
			}
			last = pct
			inner(pct)
		}
	}

	if s.neg.Usable() {
		acc, err := s.neg.Run(ctx, batch.Request{
			Trials:     req.Trials,
			Categories: req.Categories,
			BasePity:   req.BasePity,
			Seed:       req.Seed,
			OnProgress: progress,
		})
		if err == nil {
			return acc.Report(), nil
		}
		if ctx.Err() != nil {
			// cancellation is not a backend failure; do not fall back
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("batched path failed, falling back to worker pool")
	}

	acc, err := s.sched.Run(ctx, pool.Request{
		Trials:     req.Trials,
		Categories: req.Categories,
		BasePity:   req.BasePity,
		Seed:       req.Seed,
		OnProgress: progress,
	})
	if err != nil {
		return nil, err
	}
	return acc.Report(), nil
}
