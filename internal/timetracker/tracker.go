// Package timetracker records when each task started and finished processing.
package timetracker

import (
	"sync"
	"time"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Tracker keeps one TimeRecord per task.
//
// started_at is written at most once per generation of a task and
// completed_at at most once, only after started_at.
type Tracker struct {
	mu      sync.RWMutex
	records map[types.TaskID]*types.TimeRecord
	now     func() time.Time
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		records: make(map[types.TaskID]*types.TimeRecord),
		now:     time.Now,
	}
}

// Reset forgets the times of id. Ingestion calls it when an identifier is
// uploaded again so the new attempt gets fresh timestamps.
func (t *Tracker) Reset(id types.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

// MarkStarted records the start time. It reports false if id already started.
func (t *Tracker) MarkStarted(id types.TaskID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[id]
	if !exists {
		rec = &types.TimeRecord{}
		t.records[id] = rec
	}
	if rec.StartedAt != nil {
		return false
	}
	now := t.now()
	rec.StartedAt = &now
	return true
}

// MarkCompleted records the completion time. It reports false if id never
// started or already completed.
func (t *Tracker) MarkCompleted(id types.TaskID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[id]
	if !exists || rec.StartedAt == nil || rec.CompletedAt != nil {
		return false
	}
	now := t.now()
	if !now.After(*rec.StartedAt) {
		now = rec.StartedAt.Add(time.Nanosecond)
	}
	rec.CompletedAt = &now
	return true
}

// Times returns a copy of the TimeRecord for id.
func (t *Tracker) Times(id types.TaskID) (types.TimeRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.records[id]
	if !exists {
		return types.TimeRecord{}, false
	}
	return copyRecord(rec), true
}

// Info returns the query view of id's times. Elapsed is measured up to now
// while the task is still running.
func (t *Tracker) Info(id types.TaskID) types.TimingInfo {
	rec, ok := t.Times(id)
	if !ok || rec.StartedAt == nil {
		return types.TimingInfo{}
	}

	end := t.now()
	if rec.CompletedAt != nil {
		end = *rec.CompletedAt
	}
	elapsed := end.Sub(*rec.StartedAt).Seconds()

	return types.TimingInfo{
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
		ElapsedSeconds: &elapsed,
	}
}

// Elapsed returns how long id has been (or was) processing.
func (t *Tracker) Elapsed(id types.TaskID) (time.Duration, bool) {
	info := t.Info(id)
	if info.ElapsedSeconds == nil {
		return 0, false
	}
	return time.Duration(*info.ElapsedSeconds * float64(time.Second)), true
}

func copyRecord(rec *types.TimeRecord) types.TimeRecord {
	var out types.TimeRecord
	if rec.StartedAt != nil {
		s := *rec.StartedAt
		out.StartedAt = &s
	}
	if rec.CompletedAt != nil {
		c := *rec.CompletedAt
		out.CompletedAt = &c
	}
	return out
}
