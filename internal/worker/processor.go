package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"chunkstore/internal/queue"
	"chunkstore/internal/sweeper"
	"chunkstore/pkg/logger"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	sweep *sweeper.Processor
	log   *logger.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(sweep *sweeper.Processor, log *logger.Logger) *Processor {
	return &Processor{sweep: sweep, log: log}
}

// Handler registers the sweep job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SweepSessionsTask, p.handleSweep)
	return mux
}

func (p *Processor) handleSweep(ctx context.Context, task *asynq.Task) error {
	if p.log != nil {
		p.log.Infof("sweep pass starting")
	}
	p.sweep.SweepOnce(ctx)
	return nil
}
