package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSchedulerFiresImmediatelyAndOnTicks(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(20 * time.Millisecond)

	var fired atomic.Int32
	ctx := context.Background()
	if err := s.Start(ctx, func(time.Time) { fired.Add(1) }); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(ctx)

	deadline := time.After(500 * time.Millisecond)
	for fired.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 firings, got %d", fired.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestIntervalSchedulerDoesNotBlockTicksOnSlowJobs(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(10 * time.Millisecond)

	var started atomic.Int32
	ctx := context.Background()
	err := s.Start(ctx, func(time.Time) {
		started.Add(1)
		time.Sleep(time.Second)
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(ctx)

	time.Sleep(100 * time.Millisecond)
	if started.Load() < 3 {
		t.Fatalf("slow job delayed the timer: only %d starts", started.Load())
	}
}

func TestIntervalSchedulerStopHaltsFiring(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(10 * time.Millisecond)

	var fired atomic.Int32
	ctx := context.Background()
	if err := s.Start(ctx, func(time.Time) { fired.Add(1) }); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	time.Sleep(35 * time.Millisecond)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	// Let any in-flight job launched right at Stop land first.
	time.Sleep(10 * time.Millisecond)
	settled := fired.Load()
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != settled {
		t.Fatalf("scheduler kept firing after Stop: %d -> %d", settled, fired.Load())
	}
}

func TestIntervalSchedulerStopConcurrentWithTicksAndRepeated(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(time.Millisecond)

	ctx := context.Background()
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// Stop from several goroutines while the ticker is live; the
	// channel must close exactly once and stay set.
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			_ = s.Stop(ctx)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("repeated Stop error: %v", err)
	}
}
