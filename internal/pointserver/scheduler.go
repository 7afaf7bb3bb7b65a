package pointserver

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scheduler runs periodic tasks. Each task has its own goroutine, so an
// invocation never overlaps the previous one of the same task; ticks that
// fire while a task is still running are dropped.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewScheduler returns a scheduler whose tasks stop when ctx is cancelled
// or Close is called.
func NewScheduler(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// RegisterPeriodicTask runs fn every interval, first after one interval.
// fn receives the scheduler's context.
func (s *Scheduler) RegisterPeriodicTask(interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return ErrSchedulerClosed
	}

	s.wg.Add(1)
	go s.run(interval, fn)
	return nil
}

func (s *Scheduler) run(interval time.Duration, fn func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			fn(s.ctx)
		}
	}
}

// Close stops every task and waits for running invocations to return.
// Safe to call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
