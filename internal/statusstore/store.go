// ============================================================================
// docqueue Status Store - task state machine
// ============================================================================
//
// Package: internal/statusstore
// File: store.go
// Purpose: single source of truth for task progress, timing-independent
//          metadata and classification flags
//
// State machine:
//   queued
//      ↓ Transition(Classification)   (worker, on dequeue)
//   Classification ──→ failed          (gate rejected / classifier error)
//      ↓ Transition(processing)        (gate accepted)
//   processing ──→ completed | failed  (bounded extraction outcome)
//
// Ownership:
//   - Seed is called only by ingestion; it writes the initial queued record.
//   - Transition/Update are called by the worker while it owns a task; the
//     extractor reaches Update only through the scratch setter.
//   - Get/Stats/Snapshot are safe for any number of concurrent readers.
//
// Concurrency:
//   sync.RWMutex protects the map. Readers receive deep copies, so a record
//   observed by an HTTP handler is never torn even while the worker updates it.
//
// ============================================================================

package statusstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

var (
	// ErrConflict is returned by Seed when the identifier belongs to a task
	// that has not reached a terminal status yet.
	ErrConflict = errors.New("task is still in progress")
	// ErrInvalidTransition is returned when a transition is not an edge of
	// the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleGeneration is returned by UpdateGeneration when the record was
	// re-seeded by a newer upload.
	ErrStaleGeneration = errors.New("task record belongs to a newer upload")
)

// transitions lists the legal edges of the state machine.
var transitions = map[types.TaskStatus][]types.TaskStatus{
	types.StatusQueued:         {types.StatusClassification},
	types.StatusClassification: {types.StatusProcessing, types.StatusFailed},
	types.StatusProcessing:     {types.StatusCompleted, types.StatusFailed},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to types.TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Store is the process-wide status store.
type Store struct {
	mu    sync.RWMutex
	tasks map[types.TaskID]*types.TaskRecord
	now   func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tasks: make(map[types.TaskID]*types.TaskRecord),
		now:   time.Now,
	}
}

// Seed writes the initial queued record for id. An existing record is replaced
// only when it is terminal; the generation counter carries over so result
// writes from an older upload can be told apart.
func (s *Store) Seed(id types.TaskID, docType, docURL string) (types.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var generation int64 = 1
	if prev, exists := s.tasks[id]; exists {
		if !prev.Status.IsTerminal() {
			return prev.Clone(), fmt.Errorf("%w: task %s is still %s", ErrConflict, id, prev.Status)
		}
		generation = prev.Generation + 1
	}

	now := s.now()
	rec := &types.TaskRecord{
		ID:         id,
		Status:     types.StatusQueued,
		DocType:    docType,
		DocURL:     docURL,
		Generation: generation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.tasks[id] = rec
	return rec.Clone(), nil
}

// CheckAvailable returns ErrConflict if id is held by a non-terminal task.
func (s *Store) CheckAvailable(id types.TaskID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, exists := s.tasks[id]; exists && !rec.Status.IsTerminal() {
		return fmt.Errorf("%w: task %s is still %s", ErrConflict, id, rec.Status)
	}
	return nil
}

// Transition moves id to status `to`, applying mutate (may be nil) to the
// record in the same critical section. The updated record is returned.
func (s *Store) Transition(id types.TaskID, to types.TaskStatus, mutate func(*types.TaskRecord)) (types.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.tasks[id]
	if !exists {
		return types.TaskRecord{}, types.ErrTaskNotFound
	}
	if !CanTransition(rec.Status, to) {
		return rec.Clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, to)
	}

	next := rec.Clone()
	if mutate != nil {
		mutate(&next)
	}
	next.ID = id
	next.Status = to
	next.UpdatedAt = s.now()
	s.tasks[id] = &next

	return next.Clone(), nil
}

// Update applies mutate to the record without changing its status.
func (s *Store) Update(id types.TaskID, mutate func(*types.TaskRecord)) (types.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.tasks[id]
	if !exists {
		return types.TaskRecord{}, types.ErrTaskNotFound
	}

	next := rec.Clone()
	status := next.Status
	mutate(&next)
	next.ID = id
	next.Status = status
	next.UpdatedAt = s.now()
	s.tasks[id] = &next

	return next.Clone(), nil
}

// UpdateGeneration is Update restricted to one upload generation of id.
func (s *Store) UpdateGeneration(id types.TaskID, generation int64, mutate func(*types.TaskRecord)) (types.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.tasks[id]
	if !exists {
		return types.TaskRecord{}, types.ErrTaskNotFound
	}
	if rec.Generation != generation {
		return rec.Clone(), fmt.Errorf("%w: task %s generation %d, current %d", ErrStaleGeneration, id, generation, rec.Generation)
	}

	next := rec.Clone()
	status := next.Status
	mutate(&next)
	next.ID = id
	next.Status = status
	next.Generation = generation
	next.UpdatedAt = s.now()
	s.tasks[id] = &next

	return next.Clone(), nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id types.TaskID) (types.TaskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.tasks[id]
	if !exists {
		return types.TaskRecord{}, false
	}
	return rec.Clone(), true
}

// NextGeneration returns the generation the next Seed of id will get.
func (s *Store) NextGeneration(id types.TaskID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, exists := s.tasks[id]; exists {
		return rec.Generation + 1
	}
	return 1
}

// Stats counts tasks per status.
func (s *Store) Stats() map[types.TaskStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[types.TaskStatus]int{
		types.StatusQueued:         0,
		types.StatusClassification: 0,
		types.StatusProcessing:     0,
		types.StatusCompleted:      0,
		types.StatusFailed:         0,
	}
	for _, rec := range s.tasks {
		stats[rec.Status]++
	}
	return stats
}

// Snapshot returns copies of every record ordered by creation time.
func (s *Store) Snapshot() []types.TaskRecord {
	s.mu.RLock()
	out := make([]types.TaskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
