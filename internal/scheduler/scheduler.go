package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler drives a tick function at a fixed interval for the lifetime of
// the process. Stop cancels the tick context and waits for an in-flight tick
// to return, so no tick starts after Stop.
type Scheduler struct {
	interval time.Duration
	tick     func(context.Context)

	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(interval time.Duration, tick func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tick == nil {
		return nil, errors.New("tick must not be nil")
	}
	return &Scheduler{interval: interval, tick: tick}, nil
}

// Start launches the tick loop, firing once immediately. Returns false when
// already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.running.Store(true)

	go s.run(ctx)
	return true
}

// Stop cancels the loop and blocks until it has exited. Returns false when
// not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.stopped
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", s.interval.String())

	s.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeTick(ctx)
		}
	}
}

// safeTick keeps a panicking tick from killing the loop.
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	s.tick(ctx)
	slog.Debug("tick completed", "duration_ms", time.Since(start).Milliseconds())
}
