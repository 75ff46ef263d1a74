package sessioncache

import (
	"context"
	"time"

	"chunkstore/internal/domain/upload"

	"github.com/google/uuid"
)

// Mutator adjusts a session inside a Transition. It runs against the freshly
// loaded copy; returning an error aborts the commit.
type Mutator func(*upload.Session) error

// Store holds in-flight upload sessions. Status and chunk progress are only
// ever mutated through Transition, a compare-and-swap on the stored status:
// the commit succeeds only if the status still equals from, otherwise the
// call fails with ErrConflict and the caller retries. Every higher-level
// guarantee (idempotent admission, at-most-once finalize, race-safe expiry)
// is built on this primitive.
type Store interface {
	// Create stores a new session. Fails if the id is already present.
	Create(ctx context.Context, session *upload.Session) error

	// Get returns the session, or ErrSessionNotFound. A session whose TTL
	// elapsed but that has not been swept yet is reported as expired
	// (lazy expiry): the session is returned together with
	// ErrSessionExpired.
	Get(ctx context.Context, id uuid.UUID) (*upload.Session, error)

	// Transition applies mutate and commits with status to, only if the
	// stored status still equals from. A from == to transition is a pure
	// progress update. Returns the committed session, or ErrConflict when
	// the CAS loses.
	Transition(ctx context.Context, id uuid.UUID, from, to string, mutate Mutator) (*upload.Session, error)

	// ListExpired returns sessions whose TTL elapsed more than grace ago
	// and that still need sweeping: non-terminal sessions, plus EXPIRED
	// ones that kept chunk records after a partially failed reclaim.
	// Used by the sweeper; no lazy-expiry treatment is applied.
	ListExpired(ctx context.Context, now time.Time, grace time.Duration) ([]*upload.Session, error)

	// Delete removes the session record. Idempotent on missing keys.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Retention is how long a session record stays readable past its TTL so the
// sweeper and status queries can still observe it.
const Retention = 24 * time.Hour

func keyTTL(s *upload.Session, now time.Time) time.Duration {
	ttl := s.ExpiresAt.Sub(now) + Retention
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}
