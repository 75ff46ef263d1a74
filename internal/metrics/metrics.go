// Package metrics provides Prometheus metrics for the upload coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all coordinator metrics.
var Registry = prometheus.NewRegistry()

// CoordinatorMetrics holds the counters the coordinator components update.
type CoordinatorMetrics struct {
	ChunksAdmitted    prometheus.Counter
	ChunkBytes        prometheus.Counter
	ChunkConflicts    prometheus.Counter
	SessionsCreated   prometheus.Counter
	FinalizeCompleted prometheus.Counter
	FinalizeFailed    prometheus.Counter
	DedupHits         prometheus.Counter
	SessionsSwept     prometheus.Counter
	SweepErrors       prometheus.Counter
	CASConflicts      prometheus.Counter
}

func newCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	factory := promauto.With(reg)
	return &CoordinatorMetrics{
		ChunksAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_chunks_admitted_total",
			Help: "Chunks successfully admitted, including idempotent re-admissions.",
		}),
		ChunkBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_chunk_bytes_total",
			Help: "Bytes written to temporary chunk storage.",
		}),
		ChunkConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_chunk_conflicts_total",
			Help: "Chunk re-admissions rejected for carrying different content.",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_sessions_created_total",
			Help: "Upload sessions created.",
		}),
		FinalizeCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_finalize_completed_total",
			Help: "Sessions finalized into a canonical object.",
		}),
		FinalizeFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_finalize_failed_total",
			Help: "Finalize attempts that transitioned a session to FAILED.",
		}),
		DedupHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_dedup_hits_total",
			Help: "Finalizations that reused an existing canonical object.",
		}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_sessions_swept_total",
			Help: "Sessions transitioned to EXPIRED by the sweeper.",
		}),
		SweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_sweep_errors_total",
			Help: "Errors encountered while sweeping, including cleanup failures.",
		}),
		CASConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chunkstore_cas_conflicts_total",
			Help: "Session-store CAS attempts that lost a race and were retried.",
		}),
	}
}

// Default is the process-wide metric set, registered on Registry.
var Default = newCoordinatorMetrics(Registry)
