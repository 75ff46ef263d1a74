package repository

import (
	"context"
	"sync"
	"time"

	"chunkstore/internal/domain/file"
	upload_errors "chunkstore/pkg/errors"

	"github.com/google/uuid"
)

// MemoryCanonicalObjectRepository is an in-process dedup index for tests and
// local development. The single mutex gives CreateIfAbsent the same
// atomicity the unique constraint gives the Postgres implementation.
type MemoryCanonicalObjectRepository struct {
	mu     sync.Mutex
	byHash map[string]*file.CanonicalObject
}

func NewMemoryCanonicalObjectRepository() *MemoryCanonicalObjectRepository {
	return &MemoryCanonicalObjectRepository{byHash: make(map[string]*file.CanonicalObject)}
}

func (r *MemoryCanonicalObjectRepository) FindByHash(ctx context.Context, contentHash string) (*file.CanonicalObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.byHash[contentHash]
	if !ok {
		return nil, nil
	}
	cp := *obj
	return &cp, nil
}

func (r *MemoryCanonicalObjectRepository) CreateIfAbsent(ctx context.Context, candidate *file.CanonicalObject) (*file.CanonicalObject, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byHash[candidate.ContentHash]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *candidate
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.byHash[candidate.ContentHash] = &cp
	out := cp
	return &out, true, nil
}

func (r *MemoryCanonicalObjectRepository) IncrementRef(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, obj := range r.byHash {
		if obj.ID == id {
			obj.ReferenceCount++
			obj.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

// Len returns how many distinct canonical objects exist, for tests.
func (r *MemoryCanonicalObjectRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}

// MemoryFileRepository stores terminal records in memory.
type MemoryFileRepository struct {
	mu    sync.RWMutex
	files map[uuid.UUID]file.StoredFile
}

func NewMemoryFileRepository() *MemoryFileRepository {
	return &MemoryFileRepository{files: make(map[uuid.UUID]file.StoredFile)}
}

func (r *MemoryFileRepository) Create(ctx context.Context, f *file.StoredFile) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[f.ID]; ok {
		return false, nil
	}
	r.files[f.ID] = *f
	return true, nil
}

func (r *MemoryFileRepository) GetByID(ctx context.Context, id uuid.UUID) (file.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[id]
	if !ok {
		return file.StoredFile{}, upload_errors.ErrSessionNotFound
	}
	return f, nil
}

func (r *MemoryFileRepository) ListByOwner(ctx context.Context, owner string) ([]file.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []file.StoredFile
	for _, f := range r.files {
		if f.Owner == owner {
			out = append(out, f)
		}
	}
	return out, nil
}
