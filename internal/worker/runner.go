// ============================================================================
// docqueue Runner - bounded extraction
// ============================================================================
//
// Package: internal/worker
// File: runner.go
// Purpose: run the extraction collaborator raced against MAX_PROCESSING_TIME
//
// Execution Model:
//   ┌──────────────────────────────────────────────┐
//   │  Worker goroutine                            │
//   │   ├─ context.WithTimeout(maxProcessingTime)  │
//   │   ├─ go extractor.Extract(runCtx, job) ──┐   │
//   │   └─ select                              │   │
//   │        ├─ done  ←────────────────────────┘   │
//   │        └─ runCtx.Done()  → timeout           │
//   └──────────────────────────────────────────────┘
//
// Timeout Control:
//   - The extraction context is cancelled when the deadline passes
//   - An extractor that ignores cancellation keeps running in the background;
//     its result writes stay generation-bound, see results.Store
//   - done is buffered so an abandoned goroutine never blocks on send
//
// Error Handling:
//   - Extractor error            → OutcomeError
//   - Extractor panic            → OutcomeError (recovered in the goroutine)
//   - Deadline exceeded          → OutcomeTimeout
//   - Parent context cancelled   → OutcomeError (shutdown)
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxProcessingTime bounds one extraction when none is configured.
const DefaultMaxProcessingTime = 15 * time.Minute

// Runner executes one extraction with a deadline.
type Runner struct {
	extractor Extractor
	timeout   time.Duration
}

// NewRunner creates a Runner. A non-positive timeout means
// DefaultMaxProcessingTime.
func NewRunner(extractor Extractor, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultMaxProcessingTime
	}
	return &Runner{extractor: extractor, timeout: timeout}
}

// Timeout returns the extraction deadline.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run launches the extractor and waits until it returns or the deadline passes.
func (r *Runner) Run(ctx context.Context, job ExtractJob) Outcome {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("extractor panic: %v", p)
			}
		}()
		done <- r.extractor.Extract(runCtx, job)
	}()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		switch {
		case err == nil:
			return Outcome{Kind: OutcomeSuccess, Duration: elapsed}
		case errors.Is(err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return Outcome{Kind: OutcomeTimeout, Err: err, Duration: elapsed}
		default:
			return Outcome{Kind: OutcomeError, Err: err, Duration: elapsed}
		}

	case <-runCtx.Done():
		elapsed := time.Since(start)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Outcome{Kind: OutcomeTimeout, Err: runCtx.Err(), Duration: elapsed}
		}
		return Outcome{Kind: OutcomeError, Err: runCtx.Err(), Duration: elapsed}
	}
}
