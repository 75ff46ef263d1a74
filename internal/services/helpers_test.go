package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"testing"
	"time"

	"chunkstore/internal/domain/upload"
	"chunkstore/internal/repository"
	"chunkstore/internal/sessioncache"
	"chunkstore/internal/storage"

	"github.com/stretchr/testify/require"
)

// testEnv wires the in-memory implementations together the same way
// cmd/api wires the real ones.
type testEnv struct {
	sessions  *sessioncache.MemoryStore
	objects   *storage.MemoryStore
	canon     *repository.MemoryCanonicalObjectRepository
	files     *repository.MemoryFileRepository
	policy    Policy
	service   *UploadService
	tracker   *ChunkTracker
	finalizer *Finalizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		sessions: sessioncache.NewMemoryStore(),
		objects:  storage.NewMemoryStore(),
		canon:    repository.NewMemoryCanonicalObjectRepository(),
		files:    repository.NewMemoryFileRepository(),
		policy: Policy{
			DefaultChunkSize: 5,
			MaxChunks:        100,
			SessionTTL:       time.Hour,
			CASRetries:       5,
			StorageRetries:   3,
			StrictChunkSize:  true,
		},
	}
	env.service = NewUploadService(env.sessions, env.objects, env.files, env.policy, nil)
	env.tracker = NewChunkTracker(env.sessions, env.objects, env.policy, nil)
	env.finalizer = NewFinalizer(env.sessions, env.objects, env.canon, env.files, env.policy, nil)
	return env
}

// createSession makes a session for payload of the given size with the env's
// default chunk size.
func (e *testEnv) createSession(t *testing.T, owner string, size int64) *upload.Session {
	t.Helper()
	session, err := e.service.CreateSession(context.Background(), CreateSessionInput{
		Owner:        owner,
		DeclaredSize: size,
	})
	require.NoError(t, err)
	return session
}

// chunksOf splits payload by the env's chunk size, 1-based.
func (e *testEnv) chunksOf(payload []byte) map[int][]byte {
	size := int(e.policy.DefaultChunkSize)
	chunks := make(map[int][]byte)
	for i, n := 0, 1; i < len(payload); i, n = i+size, n+1 {
		end := i + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks[n] = payload[i:end]
	}
	return chunks
}

// admitAll uploads every chunk of payload in the given order.
func (e *testEnv) admitAll(t *testing.T, session *upload.Session, payload []byte, order []int) {
	t.Helper()
	chunks := e.chunksOf(payload)
	for _, n := range order {
		_, err := e.tracker.AdmitChunk(context.Background(), session.ID, n, chunks[n], "")
		require.NoError(t, err)
	}
}

func randomPayload(n int) []byte {
	buf := make([]byte, n)
	rnd := rand.New(rand.NewSource(42))
	rnd.Read(buf)
	return buf
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
