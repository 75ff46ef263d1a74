package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
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

// Finalizer turns a fully received session into a canonical object: it
// verifies completeness and content integrity, consults the dedup index,
// composes (or reuses) the stored object and commits the terminal COMPLETED
// transition exactly once. Finalize is idempotent: concurrent or repeated
// calls all land on the same result.
type Finalizer struct {
	store   sessioncache.Store
	objects storage.ObjectStore
	canon   repository.CanonicalObjectRepository
	files   repository.FileRepository
	policy  Policy
	log     *logger.Logger
	metrics *metrics.CoordinatorMetrics
	clock   func() time.Time
}

func NewFinalizer(store sessioncache.Store, objects storage.ObjectStore, canon repository.CanonicalObjectRepository, files repository.FileRepository, policy Policy, log *logger.Logger) *Finalizer {
	return &Finalizer{
		store:   store,
		objects: objects,
		canon:   canon,
		files:   files,
		policy:  policy.Normalize(),
		log:     log,
		metrics: metrics.Default,
		clock:   time.Now,
	}
}

// Finalize drives a session to COMPLETED. Safe to call repeatedly and
// concurrently: the expensive body may run more than once under a race, but
// the terminal transition, the canonical object and the returned result are
// settled exactly once.
func (f *Finalizer) Finalize(ctx context.Context, sessionID uuid.UUID) (*upload.Result, error) {
	session, err := f.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, upload_errors.ErrSessionExpired) {
			return nil, upload_errors.ErrSessionExpired
		}
		return nil, err
	}

	if session.Status == upload.StatusCompleted {
		return session.Result, nil
	}
	if session.Status != upload.StatusUploading {
		if session.Status == upload.StatusPending {
			return nil, upload_errors.ErrIncompleteUpload
		}
		return nil, upload_errors.ErrAlreadyTerminal
	}
	if !session.AllReceived() {
		return nil, upload_errors.ErrIncompleteUpload
	}

	result, err := f.assemble(ctx, session)
	if err != nil {
		// A concurrent finalize may have settled the session while this one
		// was reading chunks it then cleaned up. The settled result wins.
		if current, gerr := f.store.Get(ctx, sessionID); gerr == nil && current.Status == upload.StatusCompleted {
			return current.Result, nil
		}
		f.fail(ctx, sessionID, err)
		return nil, err
	}

	chunkPaths := make([]string, 0, len(session.Chunks))
	for n := 1; n <= session.TotalChunks; n++ {
		chunkPaths = append(chunkPaths, session.Chunks[n].TempPath)
	}

	// Terminal CAS: losing it to a concurrent finalize is success, the
	// winner's result is authoritative.
	committed, err := f.store.Transition(ctx, sessionID, upload.StatusUploading, upload.StatusCompleted, func(sess *upload.Session) error {
		sess.Result = result
		sess.Chunks = make(map[int]upload.ChunkRecord)
		return nil
	})
	if errors.Is(err, upload_errors.ErrConflict) {
		f.metrics.CASConflicts.Inc()
		current, gerr := f.store.Get(ctx, sessionID)
		if gerr == nil && current.Status == upload.StatusCompleted {
			return current.Result, nil
		}
		if gerr != nil {
			return nil, gerr
		}
		return nil, upload_errors.ErrConflict
	}
	if err != nil {
		return nil, err
	}

	f.cleanupChunks(ctx, sessionID, chunkPaths)
	f.metrics.FinalizeCompleted.Inc()
	return committed.Result, nil
}

// assemble verifies the content, resolves deduplication and registers the
// terminal metadata record. It does not touch session status.
func (f *Finalizer) assemble(ctx context.Context, session *upload.Session) (*upload.Result, error) {
	contentHash, totalBytes, err := f.contentHash(ctx, session)
	if err != nil {
		return nil, err
	}
	if totalBytes != session.DeclaredSize {
		return nil, fmt.Errorf("%w: assembled %d bytes, declared %d", upload_errors.ErrChunkSizeMismatch, totalBytes, session.DeclaredSize)
	}
	// The client-declared hash is an optimization hint, never a substitute
	// for the computed one. A mismatch means the received bytes are not
	// what the client intended to send.
	if session.HashHint != "" && session.HashHint != contentHash {
		return nil, fmt.Errorf("%w: content hash %s does not match declared hint", upload_errors.ErrChecksumMismatch, contentHash)
	}

	canonical, err := f.resolveCanonical(ctx, session, contentHash, totalBytes)
	if err != nil {
		return nil, err
	}

	record := &file.StoredFile{
		ID:          session.ID,
		Owner:       session.Owner,
		ByteSize:    totalBytes,
		ContentHash: contentHash,
		StoragePath: canonical.StoragePath,
		CompletedAt: f.clock(),
	}
	created, err := f.files.Create(ctx, record)
	if err != nil {
		return nil, err
	}
	// One reference per terminal record. Concurrent finalizes of the same
	// session insert the record once, so the count stays exact.
	if created {
		if err := f.canon.IncrementRef(ctx, canonical.ID); err != nil {
			return nil, err
		}
	}

	return &upload.Result{
		CanonicalRef: canonical.StoragePath,
		ContentHash:  contentHash,
		ByteSize:     totalBytes,
	}, nil
}

// contentHash streams the chunk sequence in ascending chunk order through
// SHA-256. This is the only place chunk order matters.
func (f *Finalizer) contentHash(ctx context.Context, session *upload.Session) (string, int64, error) {
	h := sha256.New()
	var total int64
	for n := 1; n <= session.TotalChunks; n++ {
		rec, ok := session.Chunks[n]
		if !ok {
			return "", 0, upload_errors.ErrIncompleteUpload
		}
		var copied int64
		err := retryStorage(ctx, f.policy.StorageRetries, func() error {
			rc, err := f.objects.Open(ctx, rec.TempPath)
			if err != nil {
				return err
			}
			defer rc.Close()
			h2 := sha256.New()
			n2, err := io.Copy(io.MultiWriter(h, h2), rc)
			if err != nil {
				return upload_errors.NewRetryableStorageError("read", rec.TempPath, err)
			}
			copied = n2
			if chunkSum := hex.EncodeToString(h2.Sum(nil)); chunkSum != rec.Checksum {
				return fmt.Errorf("%w: chunk %d stored content diverged", upload_errors.ErrChecksumMismatch, n)
			}
			return nil
		})
		if err != nil {
			return "", 0, err
		}
		total += copied
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

// resolveCanonical returns the canonical object for the hash: an index hit
// reuses the existing object and skips physical composition; a miss composes
// the chunks and inserts the entry with create-if-absent, falling back to
// reuse when a concurrent finalize of identical content wins the insert.
// References are not counted here; the caller bumps them when the terminal
// record lands.
func (f *Finalizer) resolveCanonical(ctx context.Context, session *upload.Session, contentHash string, totalBytes int64) (*file.CanonicalObject, error) {
	if existing, err := f.canon.FindByHash(ctx, contentHash); err != nil {
		return nil, err
	} else if existing != nil {
		f.metrics.DedupHits.Inc()
		return existing, nil
	}

	target := canonicalPath(contentHash)
	sources := make([]string, 0, session.TotalChunks)
	for n := 1; n <= session.TotalChunks; n++ {
		sources = append(sources, session.Chunks[n].TempPath)
	}
	err := retryStorage(ctx, f.policy.StorageRetries, func() error {
		return f.objects.Compose(ctx, sources, target)
	})
	if err != nil {
		return nil, err
	}

	candidate := &file.CanonicalObject{
		ID:          uuid.New(),
		ContentHash: contentHash,
		StoragePath: target,
		ByteSize:    totalBytes,
	}
	obj, created, err := f.canon.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the insert race. The compose above wrote identical bytes to
		// the same deterministic key, so the winner's row simply stands.
		f.metrics.DedupHits.Inc()
	}
	return obj, nil
}

// fail moves the session to FAILED so the client can re-upload the offending
// chunks. Storage conflicts here mean someone else already settled the
// session, which is fine.
func (f *Finalizer) fail(ctx context.Context, sessionID uuid.UUID, cause error) {
	if errors.Is(cause, upload_errors.ErrIncompleteUpload) {
		return
	}
	f.metrics.FinalizeFailed.Inc()
	_, err := f.store.Transition(ctx, sessionID, upload.StatusUploading, upload.StatusFailed, func(sess *upload.Session) error {
		sess.FailureReason = cause.Error()
		return nil
	})
	if err != nil && !errors.Is(err, upload_errors.ErrConflict) {
		if f.log != nil {
			f.log.Errorf("mark session %s failed: %v", sessionID, err)
		}
	}
}

// cleanupChunks deletes the temporary per-chunk objects. Best-effort: the
// session is already durably COMPLETED, so failures are logged, not
// surfaced.
func (f *Finalizer) cleanupChunks(ctx context.Context, sessionID uuid.UUID, paths []string) {
	for _, path := range paths {
		if err := f.objects.Delete(ctx, path); err != nil {
			if f.log != nil {
				f.log.Warnf("cleanup chunk %s for session %s: %v", path, sessionID, err)
			}
		}
	}
}
