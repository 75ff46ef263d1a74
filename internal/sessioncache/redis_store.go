package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chunkstore/internal/domain/upload"
	upload_errors "chunkstore/pkg/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "upload_session:"

// RedisStore is the production Store, backed by a shared Redis instance so
// the coordinator stays correct across multiple processes. CAS is optimistic:
// WATCH the session key, re-read, and commit inside MULTI/EXEC; a concurrent
// write aborts the transaction and surfaces as ErrConflict.
type RedisStore struct {
	client *goredis.Client
	clock  func() time.Time
}

func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client, clock: time.Now}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func (s *RedisStore) Create(ctx context.Context, session *upload.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), payload, keyTTL(session, s.clock())).Result()
	if err != nil {
		return err
	}
	if !ok {
		return upload_errors.ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*upload.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Result()
	if err == goredis.Nil {
		return nil, upload_errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session upload.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if session.Status == upload.StatusExpired || (!session.IsTerminal() && session.ExpiredAt(s.clock())) {
		return &session, upload_errors.ErrSessionExpired
	}
	return &session, nil
}

func (s *RedisStore) Transition(ctx context.Context, id uuid.UUID, from, to string, mutate Mutator) (*upload.Session, error) {
	key := sessionKey(id)
	var committed *upload.Session

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == goredis.Nil {
			return upload_errors.ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var session upload.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return fmt.Errorf("decode session %s: %w", id, err)
		}
		if session.Status != from {
			return upload_errors.ErrConflict
		}
		session.Status = to
		if mutate != nil {
			if err := mutate(&session); err != nil {
				return err
			}
		}

		payload, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, keyTTL(&session, s.clock()))
			return nil
		})
		if err != nil {
			return err
		}
		committed = &session
		return nil
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return nil, upload_errors.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func (s *RedisStore) ListExpired(ctx context.Context, now time.Time, grace time.Duration) ([]*upload.Session, error) {
	var expired []*upload.Session
	cutoff := now.Add(-grace)

	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var session upload.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			continue
		}
		if session.Status == upload.StatusCompleted {
			continue
		}
		// EXPIRED sessions reappear only while temp chunks are left to
		// reclaim from an earlier, partially failed sweep.
		if session.Status == upload.StatusExpired && len(session.Chunks) == 0 {
			continue
		}
		if session.ExpiresAt.Before(cutoff) {
			expired = append(expired, &session)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return expired, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}
