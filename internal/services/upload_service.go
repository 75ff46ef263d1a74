package services

import (
	"context"
	"errors"
	"time"

	"chunkstore/internal/domain/file"
	"chunkstore/internal/domain/upload"
	"chunkstore/internal/metrics"
	"chunkstore/internal/repository"
	"chunkstore/internal/sessioncache"
	"chunkstore/internal/storage"
	upload_errors "chunkstore/pkg/errors"
	"chunkstore/pkg/logger"

	"github.com/google/uuid"
)

// UploadService owns session creation and the read-side of the coordinator:
// status queries, per-chunk presigned URLs, download URLs, owner listings and
// explicit cancellation.
type UploadService struct {
	store   sessioncache.Store
	objects storage.ObjectStore
	files   repository.FileRepository
	policy  Policy
	log     *logger.Logger
	metrics *metrics.CoordinatorMetrics
	clock   func() time.Time
}

type CreateSessionInput struct {
	Owner        string
	DeclaredSize int64
	ChunkSize    int64
	TTL          time.Duration
	HashHint     string
}

type SessionStatus struct {
	ID             uuid.UUID
	Status         string
	ReceivedChunks int
	TotalChunks    int
	ExpiresAt      time.Time
	Result         *upload.Result
}

func NewUploadService(store sessioncache.Store, objects storage.ObjectStore, files repository.FileRepository, policy Policy, log *logger.Logger) *UploadService {
	return &UploadService{
		store:   store,
		objects: objects,
		files:   files,
		policy:  policy.Normalize(),
		log:     log,
		metrics: metrics.Default,
		clock:   time.Now,
	}
}

// CreateSession validates the declared shape and stores a PENDING session.
func (s *UploadService) CreateSession(ctx context.Context, input CreateSessionInput) (*upload.Session, error) {
	if input.Owner == "" {
		return nil, upload_errors.ErrInvalidInput
	}
	if input.DeclaredSize <= 0 {
		return nil, upload_errors.ErrInvalidInput
	}
	chunkSize := input.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.policy.DefaultChunkSize
	}
	if chunkSize <= 0 {
		return nil, upload_errors.ErrInvalidInput
	}

	totalChunks := upload.TotalChunksFor(input.DeclaredSize, chunkSize)
	if totalChunks > s.policy.MaxChunks {
		return nil, upload_errors.ErrTooManyChunks
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.policy.SessionTTL
	}

	now := s.clock()
	session := &upload.Session{
		ID:           uuid.New(),
		Owner:        input.Owner,
		DeclaredSize: input.DeclaredSize,
		ChunkSize:    chunkSize,
		TotalChunks:  totalChunks,
		Status:       upload.StatusPending,
		Chunks:       make(map[int]upload.ChunkRecord),
		HashHint:     input.HashHint,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.SessionsCreated.Inc()
	return session, nil
}

// GetStatus reports the session's progress. A session whose TTL elapsed but
// that has not been swept yet reads as EXPIRED. Sessions already evicted
// from the cache fall back to the terminal metadata record.
func (s *UploadService) GetStatus(ctx context.Context, sessionID uuid.UUID) (*SessionStatus, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil && errors.Is(err, upload_errors.ErrSessionExpired) {
		return &SessionStatus{
			ID:             session.ID,
			Status:         upload.StatusExpired,
			ReceivedChunks: session.ReceivedCount(),
			TotalChunks:    session.TotalChunks,
			ExpiresAt:      session.ExpiresAt,
		}, nil
	}
	if err != nil {
		if errors.Is(err, upload_errors.ErrSessionNotFound) && s.files != nil {
			if f, ferr := s.files.GetByID(ctx, sessionID); ferr == nil {
				return &SessionStatus{
					ID:     f.ID,
					Status: upload.StatusCompleted,
					Result: &upload.Result{
						CanonicalRef: f.StoragePath,
						ContentHash:  f.ContentHash,
						ByteSize:     f.ByteSize,
					},
				}, nil
			}
		}
		return nil, err
	}

	return &SessionStatus{
		ID:             session.ID,
		Status:         session.Status,
		ReceivedChunks: session.ReceivedCount(),
		TotalChunks:    session.TotalChunks,
		ExpiresAt:      session.ExpiresAt,
		Result:         session.Result,
	}, nil
}

// Cancel moves a non-terminal session to FAILED via CAS. The sweeper will
// reclaim its chunks once the TTL elapses.
func (s *UploadService) Cancel(ctx context.Context, sessionID uuid.UUID) error {
	return retryOnConflict(ctx, s.policy.CASRetries, func() error {
		session, err := s.store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.IsTerminal() {
			return upload_errors.ErrAlreadyTerminal
		}
		if session.Status == upload.StatusFailed {
			return nil
		}
		_, err = s.store.Transition(ctx, sessionID, session.Status, upload.StatusFailed, func(sess *upload.Session) error {
			sess.FailureReason = "cancelled"
			return nil
		})
		if errors.Is(err, upload_errors.ErrConflict) {
			s.metrics.CASConflicts.Inc()
		}
		return err
	})
}

// ChunkUploadURL returns a presigned PUT for a chunk's temporary path. The
// caller declares the chunk's checksum up front because the temp key is
// checksum-qualified. Chunks written this way still have to be registered
// through AdmitChunk; the URL just moves the byte transfer off the
// coordinator.
func (s *UploadService) ChunkUploadURL(ctx context.Context, sessionID uuid.UUID, chunkNumber int, checksum string) (string, error) {
	if checksum == "" {
		return "", upload_errors.ErrInvalidInput
	}
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if chunkNumber < 1 || chunkNumber > session.TotalChunks {
		return "", upload_errors.ErrChunkOutOfRange
	}
	ttl := time.Until(session.ExpiresAt)
	return s.objects.PresignPut(ctx, tempChunkPath(sessionID, chunkNumber, checksum), ttl)
}

// FileAccessURL returns a presigned GET for a completed session's canonical
// object.
func (s *UploadService) FileAccessURL(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	status, err := s.GetStatus(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if status.Status != upload.StatusCompleted || status.Result == nil {
		return "", upload_errors.ErrIncompleteUpload
	}
	return s.objects.AccessURL(ctx, status.Result.CanonicalRef, ttl)
}

// ListOwnerFiles returns the owner's completed uploads.
func (s *UploadService) ListOwnerFiles(ctx context.Context, owner string) ([]file.StoredFile, error) {
	if owner == "" {
		return nil, upload_errors.ErrInvalidInput
	}
	return s.files.ListByOwner(ctx, owner)
}
