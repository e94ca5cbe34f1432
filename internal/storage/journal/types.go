package journal

import "github.com/ChuLiYu/docqueue/pkg/types"

// ============================================================================
// Journal Type Definitions
// Responsibility: Define the records of the transition journal
// ============================================================================

// Entry is one journal record: a status notification for a task.
type Entry struct {
	Seq        uint64           `json:"seq"`        // Sequence number (monotonically increasing)
	Status     types.TaskStatus `json:"status"`     // Status after the transition
	TaskID     types.TaskID     `json:"task_id"`    // Task the notification belongs to
	Generation int64            `json:"generation"` // Upload generation of the task
	Message    string           `json:"message"`    // Human-readable notification
	Timestamp  int64            `json:"timestamp"`  // Unix millisecond timestamp
	Checksum   uint32           `json:"checksum"`   // CRC32 checksum
}

// Handler processes one entry during Replay. Returning an error stops the replay.
type Handler func(entry Entry) error
