package upload

import (
	"time"

	"github.com/google/uuid"
)

// Session status values. Transitions are monotonic except FAILED -> UPLOADING,
// which re-enters the upload phase after corrective chunk re-uploads.
const (
	StatusPending   = "PENDING"
	StatusUploading = "UPLOADING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusExpired   = "EXPIRED"
)

// ChunkRecord tracks one admitted chunk. Exactly one record exists per
// (session, chunk number); re-admission under the same checksum is idempotent.
type ChunkRecord struct {
	ChunkNumber int    `json:"chunk_number"`
	ByteSize    int64  `json:"byte_size"`
	Checksum    string `json:"checksum"`
	TempPath    string `json:"temp_path"`
}

// Result is populated exactly once, when the session completes.
type Result struct {
	CanonicalRef string `json:"canonical_ref"`
	ContentHash  string `json:"content_hash"`
	ByteSize     int64  `json:"byte_size"`
}

// Session is the tracked state of one in-progress chunked upload. It lives in
// the session cache while non-terminal; completed sessions are additionally
// persisted as terminal metadata records.
type Session struct {
	ID            uuid.UUID           `json:"id"`
	Owner         string              `json:"owner"`
	DeclaredSize  int64               `json:"declared_size"`
	ChunkSize     int64               `json:"chunk_size"`
	TotalChunks   int                 `json:"total_chunks"`
	Status        string              `json:"status"`
	Chunks        map[int]ChunkRecord `json:"chunks"`
	HashHint      string              `json:"hash_hint,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	Result        *Result             `json:"result,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// TotalChunksFor returns ceil(declaredSize / chunkSize). Computed without
// adding to declaredSize, which could overflow for extreme declared sizes.
func TotalChunksFor(declaredSize, chunkSize int64) int {
	n := declaredSize / chunkSize
	if declaredSize%chunkSize != 0 {
		n++
	}
	return int(n)
}

// IsTerminal reports whether the session can no longer change.
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// ReceivedCount returns how many distinct chunks have been admitted.
func (s *Session) ReceivedCount() int {
	return len(s.Chunks)
}

// AllReceived reports whether every chunk index in [1, TotalChunks] has a
// record.
func (s *Session) AllReceived() bool {
	if len(s.Chunks) != s.TotalChunks {
		return false
	}
	for n := 1; n <= s.TotalChunks; n++ {
		if _, ok := s.Chunks[n]; !ok {
			return false
		}
	}
	return true
}

// ExpectedChunkSize returns the byte size chunk n must carry: the declared
// chunk size for every non-final chunk, the remainder for the final one.
func (s *Session) ExpectedChunkSize(n int) int64 {
	if n < s.TotalChunks {
		return s.ChunkSize
	}
	rem := s.DeclaredSize - s.ChunkSize*int64(s.TotalChunks-1)
	return rem
}

// ExpiredAt reports whether the session's TTL elapsed as of now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CanTransition validates a single status edge.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusUploading || to == StatusFailed || to == StatusExpired
	case StatusUploading:
		return to == StatusCompleted || to == StatusFailed || to == StatusExpired
	case StatusFailed:
		return to == StatusUploading || to == StatusExpired
	}
	return false
}
