// Package notify delivers status notifications for task transitions.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ChuLiYu/docqueue/internal/storage/journal"
	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Notifier is called on every status transition of a task.
type Notifier interface {
	Notify(ctx context.Context, id types.TaskID, rec types.TaskRecord, message string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, id types.TaskID, rec types.TaskRecord, message string) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, id types.TaskID, rec types.TaskRecord, message string) error {
	return f(ctx, id, rec, message)
}

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, types.TaskID, types.TaskRecord, string) error { return nil }

// Log writes each notification to a slog logger.
type Log struct {
	logger *slog.Logger
}

var _ Notifier = (*Log)(nil)

// NewLog creates a Log notifier. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify logs the transition. Terminal failures are logged at warn level.
func (l *Log) Notify(ctx context.Context, id types.TaskID, rec types.TaskRecord, message string) error {
	level := slog.LevelInfo
	if rec.Status == types.StatusFailed {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "task status update",
		"task_id", id,
		"status", rec.Status,
		"message", message,
		"facesheet", rec.Facesheet,
		"f2f", rec.F2F,
		"poc", rec.POC,
	)
	return nil
}

// Journal appends each notification to the transition journal.
type Journal struct {
	journal *journal.Journal
}

var _ Notifier = (*Journal)(nil)

// NewJournal wraps an open journal.
func NewJournal(j *journal.Journal) *Journal {
	return &Journal{journal: j}
}

// Notify appends one entry.
func (j *Journal) Notify(_ context.Context, id types.TaskID, rec types.TaskRecord, message string) error {
	_, err := j.journal.Append(id, rec.Status, rec.Generation, message)
	return err
}

// Multi fans out to several notifiers. Every notifier is called even if an
// earlier one fails; the errors are joined.
type Multi []Notifier

// Notify calls each notifier in order.
func (m Multi) Notify(ctx context.Context, id types.TaskID, rec types.TaskRecord, message string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, id, rec, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
