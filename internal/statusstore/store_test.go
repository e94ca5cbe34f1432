package statusstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// assertNoError asserts no error occurred
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// assertError asserts a specific error occurred
func assertError(t *testing.T, err error, want error) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %v, got nil", want)
		return
	}
	if !errors.Is(err, want) {
		t.Errorf("expected error %v, got %v", want, err)
	}
}

// assertStatus asserts the stored status of a task
func assertStatus(t *testing.T, s *Store, id types.TaskID, want types.TaskStatus) {
	t.Helper()
	rec, ok := s.Get(id)
	if !ok {
		t.Errorf("task %s not found", id)
		return
	}
	if rec.Status != want {
		t.Errorf("task %s status: got %s, want %s", id, rec.Status, want)
	}
}

// driveTo walks a freshly seeded task through the given statuses.
func driveTo(t *testing.T, s *Store, id types.TaskID, path ...types.TaskStatus) {
	t.Helper()
	if _, err := s.Seed(id, "", ""); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	for _, st := range path {
		if _, err := s.Transition(id, st, nil); err != nil {
			t.Fatalf("transition %s -> %s: %v", id, st, err)
		}
	}
}

// ============================================================================
// Unit Tests
// ============================================================================

func TestNew(t *testing.T) {
	s := New()
	if s.tasks == nil {
		t.Error("tasks map not initialized")
	}

	for status, n := range s.Stats() {
		if n != 0 {
			t.Errorf("stats[%s]: got %d, want 0", status, n)
		}
	}
}

func TestSeed(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*testing.T, *Store)
		id      types.TaskID
		wantErr error
		wantGen int64
	}{
		{
			name:    "First upload",
			setup:   func(*testing.T, *Store) {},
			id:      "abc",
			wantGen: 1,
		},
		{
			name: "Re-upload after completion",
			setup: func(t *testing.T, s *Store) {
				driveTo(t, s, "abc", types.StatusClassification, types.StatusProcessing, types.StatusCompleted)
			},
			id:      "abc",
			wantGen: 2,
		},
		{
			name: "Re-upload after rejection",
			setup: func(t *testing.T, s *Store) {
				driveTo(t, s, "abc", types.StatusClassification, types.StatusFailed)
			},
			id:      "abc",
			wantGen: 2,
		},
		{
			name: "Conflict while queued",
			setup: func(t *testing.T, s *Store) {
				driveTo(t, s, "abc")
			},
			id:      "abc",
			wantErr: ErrConflict,
		},
		{
			name: "Conflict while processing",
			setup: func(t *testing.T, s *Store) {
				driveTo(t, s, "abc", types.StatusClassification, types.StatusProcessing)
			},
			id:      "abc",
			wantErr: ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			tt.setup(t, s)

			rec, err := s.Seed(tt.id, "Facesheet", "http://x/y.pdf")

			if tt.wantErr != nil {
				assertError(t, err, tt.wantErr)
				return
			}
			assertNoError(t, err)
			assertStatus(t, s, tt.id, types.StatusQueued)
			if rec.Generation != tt.wantGen {
				t.Errorf("generation: got %d, want %d", rec.Generation, tt.wantGen)
			}
			if rec.DocType != "Facesheet" {
				t.Errorf("doc_type: got %q", rec.DocType)
			}
			if rec.Facesheet || rec.F2F || rec.POC || len(rec.Documents) != 0 {
				t.Error("re-seeded record should not carry classification results")
			}
		})
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		path    []types.TaskStatus
		to      types.TaskStatus
		wantErr error
	}{
		{"queued to Classification", nil, types.StatusClassification, nil},
		{"Classification to processing", []types.TaskStatus{types.StatusClassification}, types.StatusProcessing, nil},
		{"Classification to failed", []types.TaskStatus{types.StatusClassification}, types.StatusFailed, nil},
		{"processing to completed", []types.TaskStatus{types.StatusClassification, types.StatusProcessing}, types.StatusCompleted, nil},
		{"processing to failed", []types.TaskStatus{types.StatusClassification, types.StatusProcessing}, types.StatusFailed, nil},
		{"queued to processing", nil, types.StatusProcessing, ErrInvalidTransition},
		{"queued to completed", nil, types.StatusCompleted, ErrInvalidTransition},
		{"Classification to completed", []types.TaskStatus{types.StatusClassification}, types.StatusCompleted, ErrInvalidTransition},
		{"completed is terminal", []types.TaskStatus{types.StatusClassification, types.StatusProcessing, types.StatusCompleted}, types.StatusFailed, ErrInvalidTransition},
		{"failed is terminal", []types.TaskStatus{types.StatusClassification, types.StatusFailed}, types.StatusProcessing, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			driveTo(t, s, "task-001", tt.path...)

			_, err := s.Transition("task-001", tt.to, nil)

			if tt.wantErr != nil {
				assertError(t, err, tt.wantErr)
				return
			}
			assertNoError(t, err)
			assertStatus(t, s, "task-001", tt.to)
		})
	}

	t.Run("Unknown task", func(t *testing.T) {
		_, err := New().Transition("missing", types.StatusClassification, nil)
		assertError(t, err, types.ErrTaskNotFound)
	})
}

func TestTransitionMutateCannotOverrideStatus(t *testing.T) {
	s := New()
	driveTo(t, s, "task-001")

	rec, err := s.Transition("task-001", types.StatusClassification, func(r *types.TaskRecord) {
		r.Status = types.StatusCompleted
		r.Message = "Classifying document"
	})
	assertNoError(t, err)

	if rec.Status != types.StatusClassification {
		t.Errorf("status: got %s, want %s", rec.Status, types.StatusClassification)
	}
	if rec.Message != "Classifying document" {
		t.Errorf("message: got %q", rec.Message)
	}
}

func TestUpdateKeepsStatus(t *testing.T) {
	s := New()
	driveTo(t, s, "task-001", types.StatusClassification)

	_, err := s.Update("task-001", func(r *types.TaskRecord) {
		r.Status = types.StatusFailed
		r.Facesheet = true
		r.Documents = []types.DocumentMeta{{Index: 0, Type: "facesheet", StartPage: 1, EndPage: 2}}
	})
	assertNoError(t, err)

	rec, _ := s.Get("task-001")
	if rec.Status != types.StatusClassification {
		t.Errorf("status changed by Update: %s", rec.Status)
	}
	if !rec.Facesheet || len(rec.Documents) != 1 {
		t.Errorf("update not applied: %+v", rec)
	}

	_, err = s.Update("missing", func(*types.TaskRecord) {})
	assertError(t, err, types.ErrTaskNotFound)
}

func TestUpdateGeneration(t *testing.T) {
	s := New()
	driveTo(t, s, "task-001", types.StatusClassification, types.StatusProcessing)

	_, err := s.UpdateGeneration("task-001", 1, func(r *types.TaskRecord) { r.OCR = "page 1" })
	assertNoError(t, err)

	_, _ = s.Transition("task-001", types.StatusFailed, nil)
	if _, err := s.Seed("task-001", "", ""); err != nil {
		t.Fatalf("re-seed: %v", err)
	}

	_, err = s.UpdateGeneration("task-001", 1, func(r *types.TaskRecord) { r.OCR = "late write" })
	assertError(t, err, ErrStaleGeneration)

	rec, _ := s.Get("task-001")
	if rec.OCR != "" {
		t.Errorf("stale generation modified record: ocr=%q", rec.OCR)
	}

	_, err = s.UpdateGeneration("missing", 1, func(*types.TaskRecord) {})
	assertError(t, err, types.ErrTaskNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	driveTo(t, s, "task-001", types.StatusClassification)
	_, _ = s.Update("task-001", func(r *types.TaskRecord) {
		r.Documents = []types.DocumentMeta{{Type: "f2f"}}
	})

	rec, _ := s.Get("task-001")
	rec.Documents[0].Type = "tampered"
	rec.OCR = "tampered"

	again, _ := s.Get("task-001")
	if again.Documents[0].Type != "f2f" || again.OCR != "" {
		t.Errorf("store mutated through returned copy: %+v", again)
	}
}

func TestCheckAvailable(t *testing.T) {
	s := New()
	assertNoError(t, s.CheckAvailable("task-001"))

	driveTo(t, s, "task-001")
	assertError(t, s.CheckAvailable("task-001"), ErrConflict)

	_, _ = s.Transition("task-001", types.StatusClassification, nil)
	_, _ = s.Transition("task-001", types.StatusFailed, nil)
	assertNoError(t, s.CheckAvailable("task-001"))
}

func TestNextGeneration(t *testing.T) {
	s := New()
	if got := s.NextGeneration("task-001"); got != 1 {
		t.Errorf("NextGeneration() = %d, want 1", got)
	}

	rec, err := s.Seed("task-001", "", "")
	assertNoError(t, err)
	if got := s.NextGeneration("task-001"); got != rec.Generation+1 {
		t.Errorf("NextGeneration() = %d, want %d", got, rec.Generation+1)
	}

	_, _ = s.Transition("task-001", types.StatusClassification, nil)
	_, _ = s.Transition("task-001", types.StatusFailed, nil)
	again, err := s.Seed("task-001", "", "")
	assertNoError(t, err)
	if again.Generation != 2 {
		t.Errorf("second Seed generation = %d, want 2", again.Generation)
	}
}

func TestStatsAndSnapshot(t *testing.T) {
	s := New()
	driveTo(t, s, "a")
	driveTo(t, s, "b", types.StatusClassification)
	driveTo(t, s, "c", types.StatusClassification, types.StatusFailed)

	stats := s.Stats()
	if stats[types.StatusQueued] != 1 || stats[types.StatusClassification] != 1 || stats[types.StatusFailed] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot length: got %d, want 3", len(snap))
	}
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentReadersDuringUpdates(t *testing.T) {
	s := New()
	driveTo(t, s, "task-001", types.StatusClassification)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				rec, ok := s.Get("task-001")
				if !ok {
					t.Error("record disappeared")
					return
				}
				if len(rec.Documents) > 0 && rec.Documents[len(rec.Documents)-1].Index != len(rec.Documents)-1 {
					t.Error("torn documents slice observed")
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		_, err := s.Update("task-001", func(r *types.TaskRecord) {
			r.Documents = append(r.Documents, types.DocumentMeta{Index: len(r.Documents), Type: fmt.Sprintf("seg-%d", i)})
		})
		assertNoError(t, err)
	}
	close(stop)
	wg.Wait()
}
