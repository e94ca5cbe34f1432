// Package types defines the core domain model shared by the docqueue packages.
package types

import (
	"errors"
	"strings"
	"time"
)

// TaskID uniquely identifies one uploaded document task.
type TaskID string

// TaskStatus is the state of a task in the processing state machine.
type TaskStatus string

// Status values. The literal spellings are part of the HTTP contract.
const (
	StatusQueued         TaskStatus = "queued"         // seeded by ingestion, waiting in the queue
	StatusClassification TaskStatus = "Classification" // dequeued, gate under evaluation
	StatusProcessing     TaskStatus = "processing"     // bounded extraction running
	StatusCompleted      TaskStatus = "completed"      // extraction returned in time without error
	StatusFailed         TaskStatus = "failed"         // rejected, timed out or errored
	StatusNotFound       TaskStatus = "not_found"      // query sentinel, never stored
)

// ErrTaskNotFound is returned when a task identifier has never been seeded.
var ErrTaskNotFound = errors.New("task not found")

// IsTerminal reports whether no further transitions can happen from s.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsCompleted mirrors the query rule: a status counts as completed when it
// contains "completed", case-insensitively.
func (s TaskStatus) IsCompleted() bool {
	return strings.Contains(strings.ToLower(string(s)), string(StatusCompleted))
}

// DocumentMeta describes one document segment detected by classification.
type DocumentMeta struct {
	Index      int     `json:"index"`
	Type       string  `json:"type"`
	StartPage  int     `json:"start_page"`
	EndPage    int     `json:"end_page"`
	Confidence float64 `json:"confidence,omitempty"`
}

// TaskRecord is the status record kept for each task.
type TaskRecord struct {
	ID         TaskID         `json:"id"`
	Status     TaskStatus     `json:"status"`
	DocType    string         `json:"doc_type,omitempty"`
	DocURL     string         `json:"doc_url,omitempty"`
	Documents  []DocumentMeta `json:"documents,omitempty"`
	Facesheet  bool           `json:"facesheet"`
	F2F        bool           `json:"f2f"`
	POC        bool           `json:"poc"`
	OCR        string         `json:"ocr"`
	Message    string         `json:"message,omitempty"`
	Generation int64          `json:"generation"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (r TaskRecord) Clone() TaskRecord {
	if r.Documents != nil {
		docs := make([]DocumentMeta, len(r.Documents))
		copy(docs, r.Documents)
		r.Documents = docs
	}
	return r
}

// TimeRecord holds the processing timestamps of a task.
type TimeRecord struct {
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TimingInfo is the query view of a TimeRecord.
type TimingInfo struct {
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	ElapsedSeconds *float64   `json:"elapsed_seconds"`
}

// Document is one entry of an upload request.
type Document struct {
	DocURL  string `json:"doc_url"`
	DocType string `json:"doc_type,omitempty"`
}

// UploadRequest is the body of POST /upload.
type UploadRequest struct {
	ID        string     `json:"id,omitempty"`
	Documents []Document `json:"documents"`
}
