package journal

// ============================================================================
// Checksum
// Responsibility: compute and verify the CRC32 of journal entries
// ============================================================================

import (
	"hash/crc32"
	"strconv"
	"strings"
)

// CalculateChecksum returns the CRC32-IEEE of every field of e except
// Checksum itself.
func CalculateChecksum(e Entry) uint32 {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(e.Seq, 10))
	b.WriteByte('|')
	b.WriteString(string(e.Status))
	b.WriteByte('|')
	b.WriteString(string(e.TaskID))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.Generation, 10))
	b.WriteByte('|')
	b.WriteString(e.Message)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.Timestamp, 10))

	return crc32.ChecksumIEEE([]byte(b.String()))
}

// VerifyChecksum reports whether e carries the checksum of its contents.
func VerifyChecksum(e Entry) bool {
	return e.Checksum == CalculateChecksum(e)
}
