package scheduler

import (
	"context"
	"sync"
	"time"

	"ContentCurator/internal/ports"
)

// IntervalScheduler fires jobs on a fixed interval. Each job runs on
// its own goroutine so a long run never delays the next tick; the
// pipeline's overlap guard absorbs the concurrency instead.
type IntervalScheduler struct {
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler with the given tick interval.
func NewIntervalScheduler(interval time.Duration) *IntervalScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &IntervalScheduler{interval: interval}
}

// Start begins ticking. The job fires once immediately, then on every
// interval until Stop or ctx cancellation.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		go job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				go job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine. Safe to call more than once; the
// channel stays set so a concurrent Start cannot respawn the loop.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil || s.stopped {
		return nil
	}
	close(s.stop)
	s.stopped = true
	return nil
}
