package sessioncache

import (
	"context"
	"sync"
	"time"

	"chunkstore/internal/domain/upload"
	upload_errors "chunkstore/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-node local
// development. It mirrors the Redis store's CAS semantics under a mutex.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*upload.Session
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*upload.Session),
		clock:    time.Now,
	}
}

// SetClock overrides the time source, letting tests advance past TTLs.
func (m *MemoryStore) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

func copySession(s *upload.Session) *upload.Session {
	cp := *s
	cp.Chunks = make(map[int]upload.ChunkRecord, len(s.Chunks))
	for n, rec := range s.Chunks {
		cp.Chunks[n] = rec
	}
	if s.Result != nil {
		res := *s.Result
		cp.Result = &res
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, session *upload.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return upload_errors.ErrConflict
	}
	m.sessions[session.ID] = copySession(session)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*upload.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.sessions[id]
	if !ok {
		return nil, upload_errors.ErrSessionNotFound
	}
	session := copySession(stored)
	if session.Status == upload.StatusExpired || (!session.IsTerminal() && session.ExpiredAt(m.clock())) {
		return session, upload_errors.ErrSessionExpired
	}
	return session, nil
}

func (m *MemoryStore) Transition(ctx context.Context, id uuid.UUID, from, to string, mutate Mutator) (*upload.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[id]
	if !ok {
		return nil, upload_errors.ErrSessionNotFound
	}
	if stored.Status != from {
		return nil, upload_errors.ErrConflict
	}

	session := copySession(stored)
	session.Status = to
	if mutate != nil {
		if err := mutate(session); err != nil {
			return nil, err
		}
	}
	m.sessions[id] = session
	return copySession(session), nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, now time.Time, grace time.Duration) ([]*upload.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := now.Add(-grace)

	var expired []*upload.Session
	for _, s := range m.sessions {
		if s.Status == upload.StatusCompleted {
			continue
		}
		if s.Status == upload.StatusExpired && len(s.Chunks) == 0 {
			continue
		}
		if s.ExpiresAt.Before(cutoff) {
			expired = append(expired, copySession(s))
		}
	}
	return expired, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
