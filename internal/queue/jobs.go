package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// SweepSessionsTask triggers one sweep pass over expired upload
	// sessions. Enqueued periodically by the scheduler in cmd/worker.
	SweepSessionsTask = "session:sweep"
)

// EnqueueSweep schedules an immediate sweep pass, used when an operator
// wants reclamation ahead of the periodic schedule.
func EnqueueSweep(ctx context.Context, client *asynq.Client) error {
	task := asynq.NewTask(SweepSessionsTask, nil)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue sweep task: %w", err)
	}
	return nil
}
