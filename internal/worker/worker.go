// ============================================================================
// docqueue Worker - single task processing loop
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Purpose: dequeue tasks one at a time and drive them through the state machine
//
// How it works:
//   The Worker is a single goroutine (owned by the Supervisor) looping:
//   1. Dequeue the next entry (blocking); the stop sentinel ends the loop
//   2. queued → Classification, notify
//   3. Gate: fast reject / classify → Classification → failed, or
//   4. Classification → processing, MarkStarted, notify
//   5. Runner: bounded extraction → Outcome
//   6. finish: MarkCompleted, processing → completed | failed, notify
//
// Guarantees:
//   - finish is deferred once processing starts, so every task that reaches
//     processing gets exactly one terminal status and notification
//   - TaskDone is deferred for every dequeued task entry
//   - A panic while handling a task is recovered (QueueLoopError), the task
//     is failed if it is not terminal yet, and the loop continues
//   - The processing mutex serialises gate evaluation and extraction
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ChuLiYu/docqueue/internal/gate"
	"github.com/ChuLiYu/docqueue/internal/metrics"
	"github.com/ChuLiYu/docqueue/internal/notify"
	"github.com/ChuLiYu/docqueue/internal/queue"
	"github.com/ChuLiYu/docqueue/internal/results"
	"github.com/ChuLiYu/docqueue/internal/statusstore"
	"github.com/ChuLiYu/docqueue/internal/timetracker"
	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Deps are the collaborators a Worker needs.
type Deps struct {
	Store     *statusstore.Store
	Tracker   *timetracker.Tracker
	Queue     *queue.Queue
	Gate      *gate.Gate
	Extractor Extractor
	Results   *results.Store
}

// Worker processes queued tasks sequentially.
type Worker struct {
	store    *statusstore.Store
	tracker  *timetracker.Tracker
	queue    *queue.Queue
	gate     *gate.Gate
	runner   *Runner
	results  *results.Store
	notifier notify.Notifier
	metrics  *metrics.Collector
	logger   *slog.Logger

	uploadDir         string
	maxProcessingTime time.Duration

	processing sync.Mutex
}

// Option configures a Worker.
type Option func(*Worker)

// WithNotifier sets the transition notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(w *Worker) {
		if n != nil {
			w.notifier = n
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Worker) { w.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithUploadDir sets where uploads/{id}.pdf lives.
func WithUploadDir(dir string) Option {
	return func(w *Worker) {
		if dir != "" {
			w.uploadDir = dir
		}
	}
}

// WithMaxProcessingTime sets the extraction deadline.
func WithMaxProcessingTime(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.maxProcessingTime = d
		}
	}
}

// New creates a Worker.
func New(deps Deps, opts ...Option) *Worker {
	w := &Worker{
		store:             deps.Store,
		tracker:           deps.Tracker,
		queue:             deps.Queue,
		gate:              deps.Gate,
		results:           deps.Results,
		notifier:          notify.Nop{},
		logger:            slog.Default(),
		uploadDir:         "uploads",
		maxProcessingTime: DefaultMaxProcessingTime,
	}
	for _, o := range opts {
		o(w)
	}
	w.runner = NewRunner(deps.Extractor, w.maxProcessingTime)
	return w
}

// SourcePath returns the stored PDF of id.
func (w *Worker) SourcePath(id types.TaskID) string {
	return filepath.Join(w.uploadDir, string(id)+".pdf")
}

// Run loops until the stop sentinel is dequeued or ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "max_processing_time", w.runner.Timeout())
	defer w.logger.Info("worker stopped")

	for {
		entry, err := w.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if entry.Stop {
			return nil
		}
		w.metrics.SetQueueDepth(w.queue.Len())
		w.process(ctx, entry.ID)
	}
}

// process handles one dequeued task entry.
func (w *Worker) process(ctx context.Context, id types.TaskID) {
	start := time.Now()
	defer w.queue.TaskDone()
	defer func() {
		if p := recover(); p != nil {
			w.recoverTask(ctx, &QueueLoopError{TaskID: id, Value: p})
		}
		w.logger.Info("total time", "task_id", id, "duration", time.Since(start))
	}()

	w.processing.Lock()
	defer w.processing.Unlock()

	w.metrics.SetBusy(true)
	defer w.metrics.SetBusy(false)

	w.handle(ctx, id)
}

func (w *Worker) handle(ctx context.Context, id types.TaskID) {
	rec, err := w.store.Transition(id, types.StatusClassification, func(r *types.TaskRecord) {
		r.Message = MsgClassifying
	})
	if err != nil {
		w.logger.Warn("skipping queue entry", "task_id", id, "error", err)
		return
	}
	w.notify(ctx, rec, MsgClassifying)

	decision, err := w.gate.Evaluate(ctx, id, rec.DocType, w.SourcePath(id))
	if err != nil {
		w.reject(ctx, id, metrics.KindClassifierError, msgErrorPrefix+err.Error(), nil)
		return
	}
	if !decision.Accept {
		w.reject(ctx, id, metrics.KindRejected, decision.Reason, decision.Apply)
		return
	}

	rec, err = w.store.Transition(id, types.StatusProcessing, func(r *types.TaskRecord) {
		decision.Apply(r)
		r.Message = MsgProcessing
	})
	if err != nil {
		panic(fmt.Sprintf("transition to processing: %v", err))
	}
	w.tracker.MarkStarted(id)
	w.notify(ctx, rec, MsgProcessing)

	w.extract(ctx, rec)
}

// reject ends a task in Classification with failed.
func (w *Worker) reject(ctx context.Context, id types.TaskID, kind, message string, apply func(*types.TaskRecord)) {
	rec, err := w.store.Transition(id, types.StatusFailed, func(r *types.TaskRecord) {
		if apply != nil {
			apply(r)
		}
		r.Message = message
	})
	if err != nil {
		panic(fmt.Sprintf("transition to failed: %v", err))
	}
	w.metrics.RecordFailed(kind)
	w.logger.Info("task rejected", "task_id", id, "reason", message)
	w.notify(ctx, rec, message)
}

// extract runs the bounded extraction. finish is deferred so it runs on
// every path out of this function.
func (w *Worker) extract(ctx context.Context, rec types.TaskRecord) {
	id := rec.ID
	outcome := Outcome{Kind: OutcomeError, Err: fmt.Errorf("extraction did not return an outcome")}
	defer func() { w.finish(ctx, id, outcome) }()

	job := ExtractJob{
		ID:         id,
		SourcePath: w.SourcePath(id),
		Record:     rec,
		Results:    w.results.Writer(id, rec.Generation),
		Scratch:    w.scratch(id, rec.Generation),
	}
	outcome = w.runner.Run(ctx, job)
}

func (w *Worker) finish(ctx context.Context, id types.TaskID, outcome Outcome) {
	w.tracker.MarkCompleted(id)

	status := types.StatusFailed
	var message string
	switch outcome.Kind {
	case OutcomeSuccess:
		status = types.StatusCompleted
		message = MsgCompleted
		w.metrics.RecordCompleted(outcome.Duration.Seconds())
	case OutcomeTimeout:
		message = MsgTimeout
		w.metrics.RecordFailed(metrics.KindTimeout)
	default:
		message = msgErrorPrefix + errorText(outcome.Err)
		w.metrics.RecordFailed(metrics.KindError)
	}

	rec, err := w.store.Transition(id, status, func(r *types.TaskRecord) {
		r.Message = message
	})
	if err != nil {
		w.logger.Error("failed to record outcome", "task_id", id, "outcome", outcome.Kind, "error", err)
		return
	}

	w.logger.Info("extraction finished",
		"task_id", id,
		"outcome", outcome.Kind,
		"duration", outcome.Duration,
		"error", outcome.Err,
	)
	w.notify(ctx, rec, message)
}

// recoverTask fails a task whose handling panicked, unless it already
// reached a terminal status.
func (w *Worker) recoverTask(ctx context.Context, loopErr *QueueLoopError) {
	id := loopErr.TaskID
	w.logger.Error("error in queue processing",
		"task_id", id,
		"error", loopErr,
		"stack", string(debug.Stack()),
	)
	w.metrics.RecordFailed(metrics.KindQueueLoop)

	rec, ok := w.store.Get(id)
	if !ok || rec.Status.IsTerminal() {
		return
	}

	message := msgLoopPrefix + fmt.Sprint(loopErr.Value)
	if rec.Status == types.StatusQueued {
		classifying, err := w.store.Transition(id, types.StatusClassification, func(r *types.TaskRecord) {
			r.Message = MsgClassifying
		})
		if err != nil {
			w.logger.Error("failed to fail task after panic", "task_id", id, "error", err)
			return
		}
		w.notify(ctx, classifying, MsgClassifying)
	}
	if rec.Status == types.StatusProcessing {
		w.tracker.MarkCompleted(id)
	}
	failed, err := w.store.Transition(id, types.StatusFailed, func(r *types.TaskRecord) {
		r.Message = message
	})
	if err != nil {
		w.logger.Error("failed to fail task after panic", "task_id", id, "error", err)
		return
	}
	w.notify(ctx, failed, message)
}

// scratch returns the OCR setter handed to the extractor.
func (w *Worker) scratch(id types.TaskID, generation int64) func(string) error {
	return func(ocr string) error {
		_, err := w.store.UpdateGeneration(id, generation, func(r *types.TaskRecord) {
			r.OCR = ocr
		})
		return err
	}
}

// notify delivers a notification. Delivery failures are logged, never
// propagated; shutdown cancellation does not suppress the last notifications.
func (w *Worker) notify(ctx context.Context, rec types.TaskRecord, message string) {
	if err := w.notifier.Notify(context.WithoutCancel(ctx), rec.ID, rec, message); err != nil {
		w.logger.Warn("notification failed", "task_id", rec.ID, "status", rec.Status, "error", err)
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
