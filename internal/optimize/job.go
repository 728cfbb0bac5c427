package optimize

import (
	"context"
	"time"
)

// Job is a queued optimization run.
type Job struct {
	ID         string
	Params     Params
	EnqueuedAt time.Time
}

// Enqueuer hands jobs to a background worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}
