package repository

import (
	"context"

	"chunkstore/internal/domain/file"

	"github.com/google/uuid"
)

// CanonicalObjectRepository is the deduplication index: a durable mapping
// from content hash to the single canonical stored object.
type CanonicalObjectRepository interface {
	// FindByHash returns the canonical object for the hash, or nil when no
	// entry exists.
	FindByHash(ctx context.Context, contentHash string) (*file.CanonicalObject, error)

	// CreateIfAbsent atomically inserts candidate keyed by its content
	// hash. If another writer already inserted the hash, the stored entry
	// is returned and created is false. This must not be a read-then-write:
	// it closes the race between two sessions finalizing identical content.
	CreateIfAbsent(ctx context.Context, candidate *file.CanonicalObject) (obj *file.CanonicalObject, created bool, err error)

	// IncrementRef bumps the logical reference count of an entry.
	IncrementRef(ctx context.Context, id uuid.UUID) error
}

// FileRepository stores terminal records of completed uploads.
type FileRepository interface {
	// Create inserts the terminal record, ignoring re-inserts of the same
	// session id. created reports whether this call inserted the row; the
	// canonical object's reference count is bumped exactly once per created
	// record, so concurrent finalizes of one session cannot inflate it.
	Create(ctx context.Context, f *file.StoredFile) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (file.StoredFile, error)
	ListByOwner(ctx context.Context, owner string) ([]file.StoredFile, error)
}
