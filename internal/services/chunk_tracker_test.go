package services

import (
	"context"
	"testing"
	"time"

	"chunkstore/internal/domain/upload"
	upload_errors "chunkstore/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitChunkOutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(23)
	session := env.createSession(t, "alice", 23)
	require.Equal(t, 5, session.TotalChunks)

	chunks := env.chunksOf(payload)
	for _, n := range []int{3, 1, 5, 2, 4} {
		res, err := env.tracker.AdmitChunk(context.Background(), session.ID, n, chunks[n], "")
		require.NoError(t, err)
		assert.True(t, res.Accepted)
	}

	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusUploading, status.Status)
	assert.Equal(t, 5, status.ReceivedChunks)
}

func TestAdmitChunkAllReceivedFlag(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)
	session := env.createSession(t, "alice", 10)
	chunks := env.chunksOf(payload)

	res, err := env.tracker.AdmitChunk(context.Background(), session.ID, 1, chunks[1], "")
	require.NoError(t, err)
	assert.False(t, res.AllReceived)

	res, err = env.tracker.AdmitChunk(context.Background(), session.ID, 2, chunks[2], "")
	require.NoError(t, err)
	assert.True(t, res.AllReceived)
}

func TestAdmitChunkIdempotentRetry(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(23)
	session := env.createSession(t, "alice", 23)
	chunks := env.chunksOf(payload)

	res, err := env.tracker.AdmitChunk(context.Background(), session.ID, 2, chunks[2], "")
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	// Same index, same bytes: acknowledged again without complaint.
	res, err = env.tracker.AdmitChunk(context.Background(), session.ID, 2, chunks[2], "")
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ReceivedChunks)
}

func TestAdmitChunkConflictingRetry(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(23)
	session := env.createSession(t, "alice", 23)
	chunks := env.chunksOf(payload)

	_, err := env.tracker.AdmitChunk(context.Background(), session.ID, 2, chunks[2], "")
	require.NoError(t, err)

	other := []byte("xxxxx")
	_, err = env.tracker.AdmitChunk(context.Background(), session.ID, 2, other, "")
	assert.ErrorIs(t, err, upload_errors.ErrDuplicateChunk)

	// The original bytes stay in place and the rejected payload leaves no
	// object behind.
	stored, ok := env.objects.Object(tempChunkPath(session.ID, 2, sha256Hex(chunks[2])))
	require.True(t, ok)
	assert.Equal(t, chunks[2], stored)
	assert.Equal(t, 1, env.objects.Len())
}

func TestAdmitChunkChecksumHeaderMismatch(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "alice", 23)

	_, err := env.tracker.AdmitChunk(context.Background(), session.ID, 1, []byte("aaaaa"), sha256Hex([]byte("bbbbb")))
	assert.ErrorIs(t, err, upload_errors.ErrChecksumMismatch)

	// Nothing was written.
	assert.Equal(t, 0, env.objects.Len())
}

func TestAdmitChunkOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "alice", 23)

	_, err := env.tracker.AdmitChunk(context.Background(), session.ID, 0, []byte("aaaaa"), "")
	assert.ErrorIs(t, err, upload_errors.ErrChunkOutOfRange)

	_, err = env.tracker.AdmitChunk(context.Background(), session.ID, 6, []byte("aaaaa"), "")
	assert.ErrorIs(t, err, upload_errors.ErrChunkOutOfRange)
}

func TestAdmitChunkSizeMismatch(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "alice", 23)

	// Non-final chunk must be exactly the declared chunk size.
	_, err := env.tracker.AdmitChunk(context.Background(), session.ID, 1, []byte("aaaa"), "")
	assert.ErrorIs(t, err, upload_errors.ErrChunkSizeMismatch)

	// Final chunk must carry exactly the remainder, here 3 bytes.
	_, err = env.tracker.AdmitChunk(context.Background(), session.ID, 5, []byte("aaaaa"), "")
	assert.ErrorIs(t, err, upload_errors.ErrChunkSizeMismatch)

	_, err = env.tracker.AdmitChunk(context.Background(), session.ID, 5, []byte("aaa"), "")
	assert.NoError(t, err)
}

func TestAdmitChunkUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tracker.AdmitChunk(context.Background(), uuid.New(), 1, []byte("aaaaa"), "")
	assert.ErrorIs(t, err, upload_errors.ErrSessionNotFound)
}

func TestAdmitChunkExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "alice", 23)

	env.sessions.SetClock(func() time.Time { return session.ExpiresAt.Add(time.Minute) })

	_, err := env.tracker.AdmitChunk(context.Background(), session.ID, 1, []byte("aaaaa"), "")
	assert.ErrorIs(t, err, upload_errors.ErrSessionExpired)
}

func TestAdmitChunkAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)
	session := env.createSession(t, "alice", 10)
	env.admitAll(t, session, payload, []int{1, 2})

	_, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)

	chunks := env.chunksOf(payload)
	_, err = env.tracker.AdmitChunk(context.Background(), session.ID, 1, chunks[1], "")
	assert.ErrorIs(t, err, upload_errors.ErrSessionNotUploading)
}

func TestAdmitChunkRepairsDivergedChunkAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)
	session := env.createSession(t, "alice", 10)
	chunks := env.chunksOf(payload)
	env.admitAll(t, session, payload, []int{1, 2})

	// The stored chunk diverges from its recorded checksum, so finalize
	// fails the session.
	divergedPath := tempChunkPath(session.ID, 2, sha256Hex(chunks[2]))
	require.NoError(t, env.objects.Put(context.Background(), divergedPath, []byte("XXXXX")))

	_, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.ErrorIs(t, err, upload_errors.ErrChecksumMismatch)

	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusFailed, status.Status)

	// Re-admitting the correct bytes re-writes the temp object and moves
	// the session back to UPLOADING.
	res, err := env.tracker.AdmitChunk(context.Background(), session.ID, 2, chunks[2], "")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.AllReceived)

	status, err = env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusUploading, status.Status)

	repaired, ok := env.objects.Object(divergedPath)
	require.True(t, ok)
	assert.Equal(t, chunks[2], repaired)

	result, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(payload), result.ContentHash)
}

func TestAdmitChunkReplacesChunkAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	intended := randomPayload(10)
	wrong := make([]byte, 10)
	copy(wrong, intended)
	wrong[0] ^= 0xff

	session, err := env.service.CreateSession(context.Background(), CreateSessionInput{
		Owner:        "alice",
		DeclaredSize: 10,
		HashHint:     sha256Hex(intended),
	})
	require.NoError(t, err)

	// The client uploads a bad first chunk; finalize fails on the hint.
	env.admitAll(t, session, wrong, []int{1, 2})
	_, err = env.finalizer.Finalize(context.Background(), session.ID)
	require.ErrorIs(t, err, upload_errors.ErrChecksumMismatch)

	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusFailed, status.Status)

	// A FAILED session accepts replacement content for an admitted index.
	good := env.chunksOf(intended)
	res, err := env.tracker.AdmitChunk(context.Background(), session.ID, 1, good[1], "")
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	result, err := env.finalizer.Finalize(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(intended), result.ContentHash)

	// The replaced chunk's old temp object is gone.
	bad := env.chunksOf(wrong)
	_, ok := env.objects.Object(tempChunkPath(session.ID, 1, sha256Hex(bad[1])))
	assert.False(t, ok)
}

func TestAdmitChunkAfterFailureReentersUploading(t *testing.T) {
	env := newTestEnv(t)
	payload := randomPayload(10)
	session := env.createSession(t, "alice", 10)
	chunks := env.chunksOf(payload)

	_, err := env.tracker.AdmitChunk(context.Background(), session.ID, 1, chunks[1], "")
	require.NoError(t, err)

	require.NoError(t, env.service.Cancel(context.Background(), session.ID))

	// A retried chunk moves the session back into the upload phase.
	res, err := env.tracker.AdmitChunk(context.Background(), session.ID, 2, chunks[2], "")
	require.NoError(t, err)
	assert.True(t, res.AllReceived)

	status, err := env.service.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusUploading, status.Status)
}
