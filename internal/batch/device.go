package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var (
	ErrUnavailable = errors.New("batched backend unavailable")
	ErrDispatch    = errors.New("batched dispatch failure")
	ErrJobShape    = errors.New("malformed dispatch job")
)

// Job is one kernel dispatch over a set of lanes. The host supplies
// two uniform randoms per lane; the kernel stores every difference
// against the cumulative tables instead of branching, trading memory
// bandwidth for lane throughput. Decoding happens host-side.
type Job struct {
	PityCDF     []float64 // pity table tail; index 0 is the lane's starting pity position
	CategoryCDF []float64
	R1, R2      []float64 // one pair per lane, in [0,1)

	// Outputs, lane-major: PityDiff[l*len(PityCDF)+k] = PityCDF[k]-R1[l],
	// CatDiff[l*len(CategoryCDF)+j] = CategoryCDF[j]-R2[l].
	PityDiff []float64
	CatDiff  []float64
}

func (j *Job) Lanes() int { return len(j.R1) }

func (j *Job) check() error {
	lanes := j.Lanes()
	if lanes == 0 || len(j.R2) != lanes {
		return fmt.Errorf("%w: lane randoms mismatch", ErrJobShape)
	}
	if len(j.PityCDF) == 0 || len(j.CategoryCDF) == 0 {
		return fmt.Errorf("%w: empty tables", ErrJobShape)
	}
	if len(j.PityDiff) != lanes*len(j.PityCDF) || len(j.CatDiff) != lanes*len(j.CategoryCDF) {
		return fmt.Errorf("%w: output buffers mis-sized", ErrJobShape)
	}
	return nil
}

// Device is a batched compute backend. Implementations fill the job's
// difference buffers without per-lane branching. MaxBufferBytes bounds
// the total output buffer size a single dispatch may use; callers chunk
// requests to stay under it.
type Device interface {
	Name() string
	MaxBufferBytes() int
	Dispatch(ctx context.Context, job *Job) error
}

const defaultBufferBytes = 256 << 20

// HostDevice evaluates the kernel on the host, one goroutine per lane
// stripe. It is the reference implementation of the kernel contract
// and the default backend.
type HostDevice struct {
	BufferBytes int // 0 means defaultBufferBytes
}

func (d *HostDevice) Name() string { return "host" }

func (d *HostDevice) MaxBufferBytes() int {
	if d.BufferBytes > 0 {
		return d.BufferBytes
	}
	return defaultBufferBytes
}

func (d *HostDevice) Dispatch(ctx context.Context, job *Job) error {
	if err := job.check(); err != nil {
		return err
	}
	if (len(job.PityDiff)+len(job.CatDiff))*8 > d.MaxBufferBytes() {
		return fmt.Errorf("%w: dispatch exceeds buffer limit", ErrDispatch)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	lanes := job.Lanes()
	pityLen := len(job.PityCDF)
	catLen := len(job.CategoryCDF)

	stripes := runtime.NumCPU()
	if stripes > lanes {
		stripes = lanes
	}
	per := (lanes + stripes - 1) / stripes

	var wg sync.WaitGroup
	for s := 0; s < stripes; s++ {
		lo := s * per
		hi := lo + per
		if hi > lanes {
			hi = lanes
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for l := lo; l < hi; l++ {
				r1, r2 := job.R1[l], job.R2[l]
				pOff := l * pityLen
				for k, v := range job.PityCDF {
					job.PityDiff[pOff+k] = v - r1
				}
				cOff := l * catLen
				for j, v := range job.CategoryCDF {
					job.CatDiff[cOff+j] = v - r2
				}
			}
		}(lo, hi)
	}
	wg.Wait()
	return nil
}
