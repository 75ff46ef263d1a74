package sweeper

import (
	"context"
	"errors"
	"time"

	"chunkstore/internal/domain/upload"
	"chunkstore/internal/metrics"
	"chunkstore/internal/sessioncache"
	"chunkstore/internal/storage"
	upload_errors "chunkstore/pkg/errors"
	"chunkstore/pkg/logger"
)

// Processor reclaims sessions whose TTL elapsed without completion. The
// grace period plus the CAS on status keep it from racing an in-flight
// finalize: if a session became COMPLETED in the meantime, the CAS loses and
// the session is skipped.
type Processor struct {
	store    sessioncache.Store
	objects  storage.ObjectStore
	log      *logger.Logger
	metrics  *metrics.CoordinatorMetrics
	clock    func() time.Time
	interval time.Duration
	grace    time.Duration
}

func NewProcessor(store sessioncache.Store, objects storage.ObjectStore, log *logger.Logger, interval, grace time.Duration) *Processor {
	return &Processor{
		store:    store,
		objects:  objects,
		log:      log,
		metrics:  metrics.Default,
		clock:    time.Now,
		interval: interval,
		grace:    grace,
	}
}

func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep pass. Exported so the task-queue worker
// can trigger sweeps on its own schedule. A failure on one session never
// blocks sweeping the others.
func (p *Processor) SweepOnce(ctx context.Context) {
	sessions, err := p.store.ListExpired(ctx, p.clock(), p.grace)
	if err != nil {
		p.metrics.SweepErrors.Inc()
		if p.log != nil {
			p.log.Errorf("list expired sessions: %v", err)
		}
		return
	}

	for _, session := range sessions {
		p.sweepSession(ctx, session)
	}
}

func (p *Processor) sweepSession(ctx context.Context, session *upload.Session) {
	if session.Status == upload.StatusExpired {
		// Swept earlier but some chunks were left behind; retry the
		// reclaim only.
		p.reclaimChunks(ctx, session)
		return
	}

	expired, err := p.store.Transition(ctx, session.ID, session.Status, upload.StatusExpired, nil)
	if errors.Is(err, upload_errors.ErrConflict) {
		// The session moved on, likely a finalize that completed
		// legitimately. Leave it alone.
		return
	}
	if err != nil {
		p.metrics.SweepErrors.Inc()
		if p.log != nil {
			p.log.Errorf("expire session %s: %v", session.ID, err)
		}
		return
	}
	p.metrics.SessionsSwept.Inc()
	if p.log != nil {
		p.log.Infof("session %s expired after TTL, reclaiming %d chunks", session.ID, len(expired.Chunks))
	}

	p.reclaimChunks(ctx, expired)
}

// reclaimChunks deletes the session's temporary chunk objects. A chunk whose
// delete fails stays recorded on the EXPIRED session, so the next sweep pass
// picks it up again.
func (p *Processor) reclaimChunks(ctx context.Context, session *upload.Session) {
	failed := make(map[int]upload.ChunkRecord)
	for n, rec := range session.Chunks {
		if err := p.objects.Delete(ctx, rec.TempPath); err != nil {
			p.metrics.SweepErrors.Inc()
			if p.log != nil {
				p.log.Warnf("reclaim chunk %s of session %s: %v", rec.TempPath, session.ID, err)
			}
			failed[n] = rec
		}
	}

	_, err := p.store.Transition(ctx, session.ID, upload.StatusExpired, upload.StatusExpired, func(sess *upload.Session) error {
		sess.Chunks = failed
		return nil
	})
	if err != nil && p.log != nil {
		p.log.Warnf("record reclaimed chunks for session %s: %v", session.ID, err)
	}
}
