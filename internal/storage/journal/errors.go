package journal

// ============================================================================
// Journal Error Definitions
// ============================================================================

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupted indicates an entry could not be parsed
	ErrCorrupted = errors.New("journal: file is corrupted")

	// ErrChecksumMismatch indicates an entry does not match its checksum
	ErrChecksumMismatch = errors.New("journal: checksum mismatch")

	// ErrClosed indicates the journal was closed
	ErrClosed = errors.New("journal: already closed")
)

// ChecksumError reports the entry whose checksum failed.
type ChecksumError struct {
	Seq      uint64 // Sequence number of the failed entry
	Expected uint32 // Checksum computed from the contents
	Actual   uint32 // Checksum stored in the entry
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("journal: checksum mismatch at seq=%d (expected=0x%08x, got=0x%08x)", e.Seq, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrChecksumMismatch) hold.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// CorruptionError reports where an unreadable entry was found.
type CorruptionError struct {
	AfterSeq uint64 // Sequence number of the last good entry
	Offset   int64  // Byte offset in file
	Cause    error  // Underlying error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("journal: corrupted entry after seq=%d at offset %d: %v", e.AfterSeq, e.Offset, e.Cause)
}

func (e *CorruptionError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrCorrupted) hold.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupted
}
