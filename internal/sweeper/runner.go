package sweeper

import (
	"context"
	"time"

	"chunkstore/internal/sessioncache"
	"chunkstore/internal/storage"
	"chunkstore/pkg/logger"
)

type Runner struct {
	processor *Processor
}

func NewRunner(processor *Processor) *Runner {
	return &Runner{processor: processor}
}

func (r *Runner) Start(ctx context.Context) {
	go r.processor.Run(ctx)
}

func DefaultProcessor(store sessioncache.Store, objects storage.ObjectStore, log *logger.Logger) *Processor {
	return NewProcessor(store, objects, log, 5*time.Minute, 2*time.Minute)
}
