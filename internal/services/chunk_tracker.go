package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"chunkstore/internal/domain/upload"
	"chunkstore/internal/metrics"
	"chunkstore/internal/sessioncache"
	"chunkstore/internal/storage"
	upload_errors "chunkstore/pkg/errors"
	"chunkstore/pkg/logger"

	"github.com/google/uuid"
)

// ChunkTracker admits individual chunk writes. Admissions for the same
// session may run concurrently; the session store's CAS keeps the progress
// set consistent, and the checksum comparison makes re-admission idempotent.
type ChunkTracker struct {
	store   sessioncache.Store
	objects storage.ObjectStore
	policy  Policy
	log     *logger.Logger
	metrics *metrics.CoordinatorMetrics
}

// AdmitResult reports the outcome of a chunk admission.
type AdmitResult struct {
	Accepted    bool
	AllReceived bool
}

func NewChunkTracker(store sessioncache.Store, objects storage.ObjectStore, policy Policy, log *logger.Logger) *ChunkTracker {
	return &ChunkTracker{
		store:   store,
		objects: objects,
		policy:  policy.Normalize(),
		log:     log,
		metrics: metrics.Default,
	}
}

// AdmitChunk validates the chunk against the session's declared shape, writes
// the bytes to temporary storage and records the chunk in the progress set.
// Re-admitting an identical chunk succeeds without a second storage write;
// re-admitting a different payload under an already-acknowledged index fails.
func (t *ChunkTracker) AdmitChunk(ctx context.Context, sessionID uuid.UUID, chunkNumber int, data []byte, checksum string) (AdmitResult, error) {
	session, err := t.store.Get(ctx, sessionID)
	if err != nil {
		return AdmitResult{}, err
	}

	if err := t.validate(session, chunkNumber, data); err != nil {
		return AdmitResult{}, err
	}

	sum := sha256.Sum256(data)
	computed := hex.EncodeToString(sum[:])
	if checksum != "" && checksum != computed {
		return AdmitResult{}, upload_errors.ErrChecksumMismatch
	}

	// Fast path for retried uploads: same index, same content. FAILED
	// sessions never take it: a corrective re-upload must re-write the temp
	// object and re-enter the upload phase through the CAS below.
	if session.Status != upload.StatusFailed {
		if existing, ok := session.Chunks[chunkNumber]; ok {
			if existing.Checksum == computed {
				t.metrics.ChunksAdmitted.Inc()
				return AdmitResult{Accepted: true, AllReceived: session.AllReceived()}, nil
			}
			t.metrics.ChunkConflicts.Inc()
			return AdmitResult{}, upload_errors.ErrDuplicateChunk
		}
	}

	path := tempChunkPath(sessionID, chunkNumber, computed)
	err = retryStorage(ctx, t.policy.StorageRetries, func() error {
		return t.objects.Put(ctx, path, data)
	})
	if err != nil {
		return AdmitResult{}, err
	}

	record := upload.ChunkRecord{
		ChunkNumber: chunkNumber,
		ByteSize:    int64(len(data)),
		Checksum:    computed,
		TempPath:    path,
	}

	var committed *upload.Session
	var replacedPath string
	err = retryOnConflict(ctx, t.policy.CASRetries, func() error {
		current, err := t.store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		from := current.Status
		switch from {
		case upload.StatusPending, upload.StatusUploading, upload.StatusFailed:
		default:
			return upload_errors.ErrSessionNotUploading
		}

		// First successful chunk moves PENDING to UPLOADING; a retry
		// after FAILED re-enters the upload phase the same way.
		to := upload.StatusUploading

		updated, err := t.store.Transition(ctx, sessionID, from, to, func(sess *upload.Session) error {
			if existing, ok := sess.Chunks[chunkNumber]; ok {
				if from == upload.StatusFailed {
					// Corrective re-upload after a failed finalize may
					// replace the chunk outright.
					if existing.TempPath != record.TempPath {
						replacedPath = existing.TempPath
					}
					sess.Chunks[chunkNumber] = record
					return nil
				}
				if existing.Checksum == computed {
					return nil
				}
				return upload_errors.ErrDuplicateChunk
			}
			if sess.Chunks == nil {
				sess.Chunks = make(map[int]upload.ChunkRecord)
			}
			sess.Chunks[chunkNumber] = record
			return nil
		})
		if errors.Is(err, upload_errors.ErrConflict) {
			t.metrics.CASConflicts.Inc()
			return err
		}
		if err != nil {
			return err
		}
		committed = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, upload_errors.ErrDuplicateChunk) {
			t.metrics.ChunkConflicts.Inc()
			// The rejected payload lives under its own checksum key and is
			// referenced by no record.
			_ = t.objects.Delete(ctx, path)
		}
		return AdmitResult{}, err
	}
	if replacedPath != "" {
		_ = t.objects.Delete(ctx, replacedPath)
	}

	t.metrics.ChunksAdmitted.Inc()
	t.metrics.ChunkBytes.Add(float64(len(data)))
	return AdmitResult{Accepted: true, AllReceived: committed.AllReceived()}, nil
}

func (t *ChunkTracker) validate(session *upload.Session, chunkNumber int, data []byte) error {
	switch session.Status {
	case upload.StatusPending, upload.StatusUploading, upload.StatusFailed:
	default:
		return upload_errors.ErrSessionNotUploading
	}

	if chunkNumber < 1 || chunkNumber > session.TotalChunks {
		return upload_errors.ErrChunkOutOfRange
	}

	size := int64(len(data))
	expected := session.ExpectedChunkSize(chunkNumber)
	if chunkNumber == session.TotalChunks {
		if size != expected {
			return upload_errors.ErrChunkSizeMismatch
		}
		return nil
	}
	if t.policy.StrictChunkSize {
		if size != expected {
			return upload_errors.ErrChunkSizeMismatch
		}
	} else if size <= 0 || size > expected {
		return upload_errors.ErrChunkSizeMismatch
	}
	return nil
}
