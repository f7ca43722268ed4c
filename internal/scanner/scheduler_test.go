package scanner

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stumpdev/stump-go/internal/models"
)

func makeSeries(n int) []*models.Series {
	out := make([]*models.Series, n)
	for i := range out {
		out[i] = &models.Series{ID: string(rune('a' + i))}
	}
	return out
}

func TestSerialStrategyRunsEveryItem(t *testing.T) {
	series := makeSeries(5)
	var calls int32
	cancelled := SerialStrategy{}.Run(context.Background(), series, func(*models.Series) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if cancelled {
		t.Fatal("expected no cancellation")
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
}

func TestSerialStrategyStopsOnCancellation(t *testing.T) {
	series := makeSeries(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	cancelledResult := SerialStrategy{}.Run(ctx, series, func(*models.Series) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if !cancelledResult {
		t.Fatal("expected Run to report cancellation")
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (cancelled before the first item)", calls)
	}
}

func TestConcurrentStrategyRunsEveryItem(t *testing.T) {
	series := makeSeries(20)
	strategy := NewConcurrentStrategy(4)
	var calls int32
	cancelled := strategy.Run(context.Background(), series, func(*models.Series) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if cancelled {
		t.Fatal("expected no cancellation")
	}
	if calls != 20 {
		t.Fatalf("calls = %d, want 20", calls)
	}
}

func TestConcurrentStrategyStopsOnCancellation(t *testing.T) {
	series := makeSeries(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strategy := NewConcurrentStrategy(4)
	cancelledResult := strategy.Run(ctx, series, func(*models.Series) error {
		t.Fatal("work should not run once the context is already cancelled")
		return nil
	})
	if !cancelledResult {
		t.Fatal("expected Run to report cancellation")
	}
}

func TestNewConcurrentStrategyClampsToNumCPU(t *testing.T) {
	s := NewConcurrentStrategy(1_000_000)
	if s.Workers < 1 {
		t.Fatalf("Workers = %d, want >= 1", s.Workers)
	}
	if want := runtime.NumCPU(); s.Workers != want {
		t.Fatalf("Workers = %d, want min(runtime.NumCPU(), 1000000) = %d", s.Workers, want)
	}
}

func TestNewConcurrentStrategyDefaultsNonPositive(t *testing.T) {
	s := NewConcurrentStrategy(0)
	if s.Workers < 1 {
		t.Fatalf("Workers = %d, want >= 1", s.Workers)
	}
}
