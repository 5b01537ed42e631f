package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_SweepsImmediatelyThenTicks(t *testing.T) {
	var sweeps atomic.Int32
	sweep := func(ctx context.Context) error {
		sweeps.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(sweep, nil, Config{Interval: 20 * time.Millisecond}, nil)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// First sweep fires without waiting for a tick.
	deadline := time.After(2 * time.Second)
	for sweeps.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("no immediate sweep")
		case <-time.After(time.Millisecond):
		}
	}

	// At least one more from the ticker.
	for sweeps.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("no ticked sweep")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	var sweeps atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(func(ctx context.Context) error {
		sweeps.Add(1)
		return nil
	}, nil, Config{Interval: time.Hour}, nil)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if sweeps.Load() != 0 {
		t.Fatalf("sweeps = %d, want 0", sweeps.Load())
	}
}

func TestRun_PruneTick(t *testing.T) {
	var prunes atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { prunes.Add(1); return nil },
		Config{Interval: time.Hour, PruneInterval: 15 * time.Millisecond},
		nil,
	)
	go s.Run(ctx)

	deadline := time.After(2 * time.Second)
	for prunes.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("prune never ran")
		case <-time.After(time.Millisecond):
		}
	}
}
