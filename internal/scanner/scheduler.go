package scanner

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/stumpdev/stump-go/internal/models"
)

var (
	errNoSuchPath           = errors.New("scanner: library path does not resolve on disk")
	errScanCancelled        = errors.New("scanner: scan cancelled")
	errUnsupportedContainer = errors.New("scanner: unsupported container kind")
	errProbeTimeout         = errors.New("scanner: probe exceeded soft timeout")
)

// defaultConcurrentWorkers is W in spec.md §4.G's min(num_cpus, W)
// bound.
const defaultConcurrentWorkers = 4

// Strategy dispatches Phase 3's per-series work. Run returns true if
// the scan was cancelled before every series was processed.
type Strategy interface {
	Run(ctx context.Context, series []*models.Series, work func(*models.Series) error) (cancelled bool)
}

// SerialStrategy runs one series at a time, the default per spec.md
// §4.G: "no inter-series contention on the store."
type SerialStrategy struct{}

func (SerialStrategy) Run(ctx context.Context, series []*models.Series, work func(*models.Series) error) bool {
	for _, sr := range series {
		select {
		case <-ctx.Done():
			return true
		default:
		}
		work(sr)
	}
	return false
}

// ConcurrentStrategy runs series tasks on a bounded worker pool via
// golang.org/x/sync/errgroup's SetLimit, the same semaphore-backed
// bound the teacher's worker-pool shape (a fixed goroutine count
// draining a shared channel) approximates by hand. Workers is the
// concurrency limit; NewConcurrentStrategy clamps it to
// min(runtime.NumCPU(), W).
type ConcurrentStrategy struct {
	Workers int
}

// NewConcurrentStrategy builds a strategy bounded to
// min(runtime.NumCPU(), w); w <= 0 uses defaultConcurrentWorkers.
func NewConcurrentStrategy(w int) ConcurrentStrategy {
	if w <= 0 {
		w = defaultConcurrentWorkers
	}
	if n := runtime.NumCPU(); n < w {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return ConcurrentStrategy{Workers: w}
}

func (c ConcurrentStrategy) Run(ctx context.Context, series []*models.Series, work func(*models.Series) error) bool {
	var g errgroup.Group
	g.SetLimit(c.Workers)

	var cancelledFlag int32
	for _, sr := range series {
		sr := sr
		g.Go(func() error {
			select {
			case <-ctx.Done():
				atomic.StoreInt32(&cancelledFlag, 1)
				return nil
			default:
			}
			work(sr)
			return nil
		})
	}
	g.Wait()
	return atomic.LoadInt32(&cancelledFlag) != 0
}
