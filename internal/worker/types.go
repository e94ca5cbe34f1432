package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Notification messages sent on worker transitions.
const (
	MsgClassifying = "Classifying document"
	MsgProcessing  = "Processing document"
	MsgCompleted   = "Processing completed"
	MsgTimeout     = "Timeout"
	msgErrorPrefix = "Error: "
	msgLoopPrefix  = "Error in queue processing: "
)

// ResultSink persists the result of one task generation.
type ResultSink interface {
	Save(data []byte) error
	SaveJSON(v any) error
}

// ExtractJob is everything the extraction collaborator gets for one task.
type ExtractJob struct {
	ID         types.TaskID
	SourcePath string
	// Record is a snapshot taken when processing started.
	Record types.TaskRecord
	// Results writes results/{id}.json. Writes from an abandoned extraction
	// are rejected once the id has been uploaded again.
	Results ResultSink
	// Scratch sets the OCR scratch field of the task record.
	Scratch func(ocr string) error
}

// Extractor is the long-running extraction collaborator. It must honour ctx;
// an extractor that ignores cancellation is abandoned after the deadline.
type Extractor interface {
	Extract(ctx context.Context, job ExtractJob) error
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, job ExtractJob) error

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, job ExtractJob) error {
	return f(ctx, job)
}

// OutcomeKind tags the result of a bounded extraction.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTimeout
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one bounded extraction.
type Outcome struct {
	Kind     OutcomeKind
	Err      error         // set for OutcomeError
	Duration time.Duration // time spent waiting for the extractor
}

// QueueLoopError wraps an unexpected panic in the worker loop.
type QueueLoopError struct {
	TaskID types.TaskID
	Value  any
}

func (e *QueueLoopError) Error() string {
	return fmt.Sprintf("task %s: %v", e.TaskID, e.Value)
}
