package journal

// ============================================================================
// Transition journal
// Responsibilities:
// 1. Append one JSON line per status notification (append-only)
// 2. Replay entries, verifying every checksum
// 3. Continue numbering after a restart
//
// The journal is an audit trail for `docqueue history`; the service never
// rebuilds its in-memory state from it.
// ============================================================================

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

// FileInterface is the subset of *os.File the journal writes through.
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Journal is an open transition journal.
type Journal struct {
	mu           sync.Mutex
	file         FileInterface
	path         string
	seq          uint64
	syncOnAppend bool
	closed       bool
	skipped      int
	now          func() time.Time
}

// Open creates or opens the journal at path. Numbering continues after the
// highest readable entry. An unreadable final line left by a crash is
// truncated away. Damaged entries with readable entries after them are left
// in place and counted by Skipped.
func Open(path string, syncOnAppend bool) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	scan, err := scanFile(path)
	switch {
	case err == nil:
		if scan.tornOffset >= 0 {
			if err := os.Truncate(path, scan.tornOffset); err != nil {
				return nil, fmt.Errorf("failed to truncate torn journal tail: %w", err)
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := terminateLastLine(file); err != nil {
		_ = file.Close()
		return nil, err
	}

	return &Journal{
		file:         file,
		path:         path,
		seq:          scan.lastSeq,
		syncOnAppend: syncOnAppend,
		skipped:      scan.skipped,
		now:          time.Now,
	}, nil
}

// Skipped returns how many damaged entries Open found and kept in place.
func (j *Journal) Skipped() int {
	return j.skipped
}

// Append writes one entry and returns it with its sequence number and checksum.
func (j *Journal) Append(id types.TaskID, status types.TaskStatus, generation int64, message string) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return Entry{}, ErrClosed
	}

	entry := Entry{
		Seq:        j.seq + 1,
		Status:     status,
		TaskID:     id,
		Generation: generation,
		Message:    message,
		Timestamp:  j.now().UnixMilli(),
	}
	entry.Checksum = CalculateChecksum(entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return Entry{}, fmt.Errorf("journal: append seq=%d: %w", entry.Seq, err)
	}
	if j.syncOnAppend {
		if err := j.file.Sync(); err != nil {
			return Entry{}, fmt.Errorf("journal: sync seq=%d: %w", entry.Seq, err)
		}
	}

	j.seq = entry.Seq
	return entry, nil
}

// Replay calls handler for every entry in order.
func (j *Journal) Replay(handler Handler) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ReplayFile(j.path, handler)
}

// History returns every entry of one task in order.
func (j *Journal) History(id types.TaskID) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return HistoryFile(j.path, id)
}

// LastSeq returns the sequence number of the last appended entry.
func (j *Journal) LastSeq() uint64 {
	if j == nil {
		return 0
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Close syncs and closes the file. The journal cannot be reused afterwards.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if err := j.file.Sync(); err != nil {
		_ = j.file.Close()
		return fmt.Errorf("journal: sync on close: %w", err)
	}
	return j.file.Close()
}

// terminateLastLine appends a newline if the file does not end with one, so
// the next entry starts on its own line.
func terminateLastLine(file *os.File) error {
	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}
	if stat.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, stat.Size()-1); err != nil {
		return fmt.Errorf("failed to read journal tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = file.Write([]byte{'\n'})
	return err
}

// ============================================================================
// File-level helpers (usable without an open Journal)
// ============================================================================

// ReplayFile reads the journal at path and calls handler for each entry.
// It stops at the first unreadable entry (CorruptionError), checksum
// failure (ChecksumError) or handler error.
func ReplayFile(path string, handler Handler) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return replay(file, handler)
}

func replay(r io.Reader, handler Handler) error {
	var lastSeq uint64
	return readLines(r, func(offset int64, line []byte) error {
		entry, err := decode(line)
		if err != nil {
			var csErr *ChecksumError
			if !errors.As(err, &csErr) {
				return &CorruptionError{AfterSeq: lastSeq, Offset: offset, Cause: err}
			}
			return err
		}
		if err := handler(entry); err != nil {
			return err
		}
		lastSeq = entry.Seq
		return nil
	})
}

// ReplayFileSkipping is ReplayFile without the stop on damaged entries:
// unreadable or checksum-failing lines are skipped and counted.
func ReplayFileSkipping(path string, handler Handler) (skipped int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	err = readLines(file, func(_ int64, line []byte) error {
		entry, err := decode(line)
		if err != nil {
			skipped++
			return nil
		}
		return handler(entry)
	})
	return skipped, err
}

// scanResult summarises a journal file for Open.
type scanResult struct {
	lastSeq    uint64
	skipped    int
	tornOffset int64 // offset of an unreadable final line, or -1
}

func scanFile(path string) (scanResult, error) {
	res := scanResult{tornOffset: -1}

	file, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer file.Close()

	err = readLines(file, func(offset int64, line []byte) error {
		if res.tornOffset >= 0 {
			// Something follows the unreadable line, so it was not a torn write.
			res.skipped++
			res.tornOffset = -1
		}

		entry, err := decode(line)
		var csErr *ChecksumError
		switch {
		case err == nil:
			if entry.Seq > res.lastSeq {
				res.lastSeq = entry.Seq
			}
		case errors.As(err, &csErr):
			res.skipped++
			if csErr.Seq > res.lastSeq {
				res.lastSeq = csErr.Seq
			}
		default:
			res.tornOffset = offset
		}
		return nil
	})
	return res, err
}

// decode parses one line and verifies its checksum.
func decode(line []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return Entry{}, err
	}
	if !VerifyChecksum(entry) {
		return Entry{}, &ChecksumError{Seq: entry.Seq, Expected: CalculateChecksum(entry), Actual: entry.Checksum}
	}
	return entry, nil
}

// readLines calls fn with every non-blank line and its byte offset.
func readLines(r io.Reader, fn func(offset int64, line []byte) error) error {
	reader := bufio.NewReader(r)
	var offset int64

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if err := fn(offset, line); err != nil {
				return err
			}
		}
		offset += int64(len(line))

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("journal: read: %w", readErr)
		}
	}
}

// HistoryFile returns every entry of id from the journal at path. Damaged
// entries are skipped.
func HistoryFile(path string, id types.TaskID) ([]Entry, error) {
	var out []Entry
	_, err := ReplayFileSkipping(path, func(e Entry) error {
		if e.TaskID == id {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Dump writes a human-readable line per entry to w.
//
//	[seq:1] abc queued gen=1 at 2026-01-01T00:00:00Z "Task queued"
func Dump(path string, w io.Writer) error {
	skipped, err := ReplayFileSkipping(path, func(e Entry) error {
		_, err := fmt.Fprintf(w, "[seq:%d] %s %s gen=%d at %s %q\n",
			e.Seq, e.TaskID, e.Status, e.Generation,
			time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339), e.Message)
		return err
	})
	if err != nil {
		return err
	}
	if skipped > 0 {
		_, err = fmt.Fprintf(w, "(%d damaged entries skipped)\n", skipped)
	}
	return err
}
