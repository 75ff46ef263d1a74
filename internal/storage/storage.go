package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the narrow object-storage capability the coordinator
// consumes. One implementation per backend, selected at composition time.
type ObjectStore interface {
	// Put writes data under path, overwriting any existing object.
	Put(ctx context.Context, path string, data []byte) error

	// Open streams the object back. The caller closes the reader.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Compose concatenates the source objects, in order, into target.
	Compose(ctx context.Context, sources []string, target string) error

	// Delete removes the object. Idempotent on missing paths.
	Delete(ctx context.Context, path string) error

	// AccessURL returns a time-limited URL for reading the object.
	AccessURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// PresignPut returns a time-limited URL for writing the object
	// directly, bypassing the coordinator's data path.
	PresignPut(ctx context.Context, path string, ttl time.Duration) (string, error)
}
