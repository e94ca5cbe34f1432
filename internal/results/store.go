package results

// ============================================================================
// Result persistence
//
// 1. results/{id}.json is written atomically (temp file + rename)
// 2. Every write is bound to the upload generation of its task; a write from
//    an older generation fails with ErrStaleWrite instead of clobbering the
//    result of a newer upload of the same id
// 3. Reset removes the previous result when an id is uploaded again
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

var (
	ErrResultNotFound = errors.New("result not found")
	ErrStaleWrite     = errors.New("result write from a superseded upload")
	ErrInvalidResult  = errors.New("result is not valid JSON")
)

// Store manages the result directory.
type Store struct {
	dir         string
	mu          sync.Mutex
	generations map[types.TaskID]int64
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result dir: %w", err)
	}
	return &Store{
		dir:         dir,
		generations: make(map[types.TaskID]int64),
	}, nil
}

// Dir returns the result directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the result file path of id.
func (s *Store) Path(id types.TaskID) string {
	return filepath.Join(s.dir, string(id)+".json")
}

// Reset deletes the result of id and makes generation the only one allowed
// to write it from now on.
func (s *Store) Reset(id types.TaskID, generation int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generations[id] = generation
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove previous result: %w", err)
	}
	return nil
}

// Writer returns a writer bound to one generation of id.
func (s *Store) Writer(id types.TaskID, generation int64) *Writer {
	return &Writer{store: s, id: id, generation: generation}
}

// write holds mu across the generation check and the rename so a concurrent
// Reset is ordered either fully before or fully after it.
func (s *Store) write(id types.TaskID, generation int64, data []byte) error {
	if !json.Valid(data) {
		return ErrInvalidResult
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.generations[id]; ok && current != generation {
		return fmt.Errorf("%w: task %s generation %d, current %d", ErrStaleWrite, id, generation, current)
	}

	path := s.Path(id)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp result: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename result: %w", err)
	}
	return nil
}

// Read returns the raw result of id.
func (s *Store) Read(id types.TaskID) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	return data, nil
}

// Exists reports whether a result file is present for id.
func (s *Store) Exists(id types.TaskID) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Writer writes the result of one task generation.
type Writer struct {
	store      *Store
	id         types.TaskID
	generation int64
}

// Save stores raw JSON bytes.
func (w *Writer) Save(data []byte) error {
	return w.store.write(w.id, w.generation, data)
}

// SaveJSON marshals v and stores it.
func (w *Writer) SaveJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return w.Save(data)
}
