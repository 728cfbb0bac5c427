package queue

import (
	"context"
	"time"

	"portfolio-backend/internal/optimize"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Enqueuer adapts a Client to optimize.Enqueuer.
type Enqueuer struct {
	Client Client
}

// Enqueue wraps job in a Message and sends it.
func (e Enqueuer) Enqueue(ctx context.Context, job optimize.Job) error {
	return e.Client.Send(ctx, NewMessage(job))
}

// NewMessage builds the queue payload for job.
func NewMessage(job optimize.Job) Message {
	return Message{
		JobID:      job.ID,
		DocumentID: job.Params.DocumentID,
		RequestID:  job.Params.RequestID,
		EnqueuedAt: job.EnqueuedAt.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
		Params:     job.Params,
	}
}

var _ optimize.Enqueuer = Enqueuer{}
