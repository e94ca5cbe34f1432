// ============================================================================
// docqueue Supervisor - worker lifecycle
// ============================================================================
//
// Package: internal/worker
// File: supervisor.go
// Purpose: own the single worker goroutine and keep it alive
//
// Lifecycle:
//   1. NewSupervisor()   - nothing runs yet
//   2. EnsureRunning()   - called by every upload; starts the loop if it is
//                          not running (first upload, or after a crash)
//   3. Stop(ctx)         - enqueue the stop sentinel; the worker drains the
//                          tasks queued before it and exits. If ctx ends first
//                          the worker context is cancelled, which also cancels
//                          the extraction in progress
//
// Concurrency Control:
//   - mu guards running/stopped/done so EnsureRunning is atomic: two
//     concurrent uploads never start two workers
//   - done is closed when the loop goroutine exits
//
// Error Handling:
//   - ErrSupervisorStopped: EnsureRunning after Stop
//   - A panic escaping the loop is recovered and logged; the next
//     EnsureRunning restarts the worker
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/ChuLiYu/docqueue/internal/metrics"
)

var (
	// ErrSupervisorStopped is returned by EnsureRunning after Stop.
	ErrSupervisorStopped = errors.New("worker supervisor is stopped")
)

// Supervisor runs one Worker at a time.
type Supervisor struct {
	worker  *Worker
	logger  *slog.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	stopped bool
	starts  int
	done    chan struct{}
}

// NewSupervisor creates a Supervisor for w. A nil logger means slog.Default().
func NewSupervisor(w *Worker, logger *slog.Logger, m *metrics.Collector) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		worker:  w,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// EnsureRunning starts the worker loop unless it is already running.
func (s *Supervisor) EnsureRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSupervisorStopped
	}
	if s.running {
		return nil
	}

	s.running = true
	s.starts++
	done := make(chan struct{})
	s.done = done
	s.metrics.RecordWorkerStart()

	if s.starts > 1 {
		s.logger.Warn("restarting worker", "starts", s.starts)
	}

	go s.loop(done)
	return nil
}

func (s *Supervisor) loop(done chan struct{}) {
	defer close(done)
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("worker loop crashed", "panic", p, "stack", string(debug.Stack()))
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.worker.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("worker loop exited", "error", err)
	}
}

// Stop signals the worker to finish the queued tasks and waits for it to
// exit or for ctx to end. Stop is idempotent.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	first := !s.stopped
	s.stopped = true
	running := s.running
	done := s.done
	s.mu.Unlock()

	if first {
		s.worker.queue.SignalStop()
	}
	if !running || done == nil {
		s.cancel()
		return nil
	}

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// IsRunning reports whether the worker loop is alive.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Starts returns how many times the worker loop was started.
func (s *Supervisor) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Worker returns the supervised worker.
func (s *Supervisor) Worker() *Worker {
	return s.worker
}
