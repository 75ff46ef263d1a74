package repository

import (
	"context"
	"testing"

	"chunkstore/internal/domain/file"
	upload_errors "chunkstore/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCanonicalObjectCreateIfAbsent(t *testing.T) {
	repo := NewMemoryCanonicalObjectRepository()
	ctx := context.Background()

	first := &file.CanonicalObject{
		ID:             uuid.New(),
		ContentHash:    "abc",
		StoragePath:    "objects/abc",
		ByteSize:       23,
		ReferenceCount: 1,
	}
	obj, created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, obj.ID)

	// Second insert for the same hash loses and gets the stored entry back.
	second := &file.CanonicalObject{
		ID:             uuid.New(),
		ContentHash:    "abc",
		StoragePath:    "objects/abc",
		ByteSize:       23,
		ReferenceCount: 1,
	}
	obj, created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, obj.ID)
	assert.Equal(t, 1, repo.Len())

	require.NoError(t, repo.IncrementRef(ctx, obj.ID))
	found, err := repo.FindByHash(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(2), found.ReferenceCount)
}

func TestMemoryCanonicalObjectFindByHashMiss(t *testing.T) {
	repo := NewMemoryCanonicalObjectRepository()
	obj, err := repo.FindByHash(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestMemoryFileRepository(t *testing.T) {
	repo := NewMemoryFileRepository()
	ctx := context.Background()

	f := &file.StoredFile{ID: uuid.New(), Owner: "alice", ByteSize: 23, ContentHash: "abc"}
	created, err := repo.Create(ctx, f)
	require.NoError(t, err)
	assert.True(t, created)

	// Re-creating the same record is a no-op, matching re-finalize behavior.
	dup := *f
	dup.ByteSize = 99
	created, err = repo.Create(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(23), got.ByteSize)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, upload_errors.ErrSessionNotFound)

	files, err := repo.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	files, err = repo.ListByOwner(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, files)
}
