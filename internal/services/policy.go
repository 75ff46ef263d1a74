package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Policy carries the coordinator's tunables. Zero values are replaced with
// defaults by Normalize, so a partially filled Policy is safe to use.
type Policy struct {
	DefaultChunkSize int64
	MaxChunks        int
	SessionTTL       time.Duration
	CASRetries       int
	StorageRetries   int
	StrictChunkSize  bool
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultChunkSize: 5 * 1024 * 1024,
		MaxChunks:        10000,
		SessionTTL:       24 * time.Hour,
		CASRetries:       5,
		StorageRetries:   3,
		StrictChunkSize:  true,
	}
}

func (p Policy) Normalize() Policy {
	def := DefaultPolicy()
	if p.DefaultChunkSize <= 0 {
		p.DefaultChunkSize = def.DefaultChunkSize
	}
	if p.MaxChunks <= 0 {
		p.MaxChunks = def.MaxChunks
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = def.SessionTTL
	}
	if p.CASRetries <= 0 {
		p.CASRetries = def.CASRetries
	}
	if p.StorageRetries <= 0 {
		p.StorageRetries = def.StorageRetries
	}
	return p
}

// tempChunkPath is where a chunk lives between admission and finalize. The
// key includes the payload checksum, so concurrent admissions of the same
// index with different content never write to each other's object.
func tempChunkPath(sessionID uuid.UUID, chunkNumber int, checksum string) string {
	return fmt.Sprintf("chunks/%s/%d/%s", sessionID.String(), chunkNumber, checksum)
}

// canonicalPath is deterministic per content hash, so two sessions racing to
// compose identical content write the same bytes to the same key.
func canonicalPath(contentHash string) string {
	return "objects/" + contentHash
}
