package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"chunkstore/internal/domain/upload"
	upload_errors "chunkstore/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(23)
	session := env.createSession(t, "alice", 23)
	env.admitAll(t, session, payload, []int{3, 1, 5, 2, 4})

	result, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(payload), result.ContentHash)
	assert.Equal(t, int64(23), result.ByteSize)
	assert.Equal(t, "objects/"+result.ContentHash, result.CanonicalRef)

	// The composed object is byte-identical to the original payload even
	// though chunks arrived out of order.
	stored, ok := env.objects.Object(result.CanonicalRef)
	require.True(t, ok)
	assert.Equal(t, payload, stored)

	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusCompleted, status.Status)

	// Temporary chunk objects are gone.
	chunks := env.chunksOf(payload)
	for n := 1; n <= session.TotalChunks; n++ {
		_, ok := env.objects.Object(tempChunkPath(session.ID, n, sha256Hex(chunks[n])))
		assert.False(t, ok, "chunk %d should be cleaned up", n)
	}

	// The terminal record is queryable by owner.
	files, err := env.service.ListOwnerFiles(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, session.ID, files[0].ID)
	assert.Equal(t, result.ContentHash, files[0].ContentHash)
}

func TestFinalizeIncomplete(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(23)
	session := env.createSession(t, "alice", 23)
	env.admitAll(t, session, payload, []int{1, 2, 3, 5})

	_, err := env.finalizer.Finalize(context.Background(), session.ID)
	assert.ErrorIs(t, err, upload_errors.ErrIncompleteUpload)

	// An incomplete finalize leaves the session open for the missing chunk.
	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusUploading, status.Status)
	assert.Equal(t, 4, status.ReceivedChunks)

	chunks := env.chunksOf(payload)
	_, err = env.tracker.AdmitChunk(context.Background(), session.ID, 4, chunks[4], "")
	require.NoError(t, err)

	result, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(payload), result.ContentHash)
}

func TestFinalizePending(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "alice", 23)

	_, err := env.finalizer.Finalize(context.Background(), session.ID)
	assert.ErrorIs(t, err, upload_errors.ErrIncompleteUpload)
}

func TestFinalizeIdempotent(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)
	session := env.createSession(t, "alice", 10)
	env.admitAll(t, session, payload, []int{1, 2})

	first, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)
	second, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.canon.Len())
	assert.Equal(t, 1, env.objects.ComposeCalls)

	obj, err := env.canon.FindByHash(context.Background(), first.ContentHash)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, int64(1), obj.ReferenceCount)
}

func TestFinalizeConcurrent(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(23)
	session := env.createSession(t, "alice", 23)
	env.admitAll(t, session, payload, []int{1, 2, 3, 4, 5})

	const callers = 4
	results := make([]*upload.Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.finalizer.Finalize(context.Background(), session.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, results[0].ContentHash, results[i].ContentHash)
		assert.Equal(t, results[0].CanonicalRef, results[i].CanonicalRef)
	}
	assert.Equal(t, 1, env.canon.Len())

	// One session contributes exactly one reference, no matter how many
	// finalize calls raced.
	obj, err := env.canon.FindByHash(context.Background(), results[0].ContentHash)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, int64(1), obj.ReferenceCount)
}

func TestFinalizeDeduplicatesIdenticalContent(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(23)

	a := env.createSession(t, "alice", 23)
	b := env.createSession(t, "bob", 23)
	env.admitAll(t, a, payload, []int{1, 2, 3, 4, 5})
	env.admitAll(t, b, payload, []int{5, 4, 3, 2, 1})

	resA, err := env.finalizer.Finalize(context.Background(), a.ID)
	require.NoError(t, err)
	resB, err := env.finalizer.Finalize(context.Background(), b.ID)
	require.NoError(t, err)

	// Both sessions point at the same canonical object; only the first
	// finalize physically composed anything.
	assert.Equal(t, resA.CanonicalRef, resB.CanonicalRef)
	assert.Equal(t, 1, env.canon.Len())
	assert.Equal(t, 1, env.objects.ComposeCalls)

	obj, err := env.canon.FindByHash(context.Background(), resA.ContentHash)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, int64(2), obj.ReferenceCount)

	// Each owner still sees their own file record.
	filesA, err := env.service.ListOwnerFiles(context.Background(), "alice")
	require.NoError(t, err)
	filesB, err := env.service.ListOwnerFiles(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, filesA, 1)
	assert.Len(t, filesB, 1)
}

func TestFinalizeDistinctContentKeepsDistinctObjects(t *testing.T) {
	env := newTestEnv(t)
	payloadA := randomPayload(10)
	payloadB := make([]byte, 10)
	copy(payloadB, payloadA)
	payloadB[0] ^= 0xff

	a := env.createSession(t, "alice", 10)
	b := env.createSession(t, "alice", 10)
	env.admitAll(t, a, payloadA, []int{1, 2})
	env.admitAll(t, b, payloadB, []int{1, 2})

	resA, err := env.finalizer.Finalize(context.Background(), a.ID)
	require.NoError(t, err)
	resB, err := env.finalizer.Finalize(context.Background(), b.ID)
	require.NoError(t, err)

	assert.NotEqual(t, resA.CanonicalRef, resB.CanonicalRef)
	assert.Equal(t, 2, env.canon.Len())
	assert.Equal(t, 2, env.objects.ComposeCalls)
}

func TestFinalizeHashHintMismatch(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)

	session, err := env.service.CreateSession(context.Background(), CreateSessionInput{
		Owner:        "alice",
		DeclaredSize: 10,
		HashHint:     sha256Hex([]byte("something else")),
	})
	require.NoError(t, err)
	env.admitAll(t, session, payload, []int{1, 2})

	_, err = env.finalizer.Finalize(context.Background(), session.ID)
	assert.ErrorIs(t, err, upload_errors.ErrChecksumMismatch)

	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusFailed, status.Status)
}

func TestFinalizeHashHintMatch(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)

	session, err := env.service.CreateSession(context.Background(), CreateSessionInput{
		Owner:        "alice",
		DeclaredSize: 10,
		HashHint:     sha256Hex(payload),
	})
	require.NoError(t, err)
	env.admitAll(t, session, payload, []int{1, 2})

	result, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(payload), result.ContentHash)
}

func TestFinalizeExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)
	session := env.createSession(t, "alice", 10)
	env.admitAll(t, session, payload, []int{1, 2})

	env.sessions.SetClock(func() time.Time { return session.ExpiresAt.Add(time.Minute) })

	_, err := env.finalizer.Finalize(context.Background(), session.ID)
	assert.ErrorIs(t, err, upload_errors.ErrSessionExpired)
}

func TestFinalizeUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.finalizer.Finalize(context.Background(), uuid.New())
	assert.ErrorIs(t, err, upload_errors.ErrSessionNotFound)
}
