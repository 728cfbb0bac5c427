package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"portfolio-backend/internal/bootstrap"
	"portfolio-backend/internal/shared/config"
	"portfolio-backend/internal/shared/metrics"
	"portfolio-backend/internal/shared/telemetry"
	"portfolio-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	runner   workerproc.Runner
)

func initApp() {
	cfg := config.Load()
	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		initErr = err
		return
	}
	runner = app.Optimizer
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, runner, event), nil
}

// processBatch runs each record in order. Only retryable failures are
// reported back, so SQS redelivers them and drops the rest.
func processBatch(ctx context.Context, r workerproc.Runner, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncJobsReceived()
		fields := map[string]any{"sqs_message_id": record.MessageId}

		msg, _, err := workerproc.ParseMessage(record.Body)
		if err != nil {
			fields["error"] = err.Error()
			telemetry.Error("lambda.optimize.invalid_message", fields)
			metrics.IncJobsDeletedUnrecoverable()
			continue
		}
		fields["job_id"] = msg.JobID
		fields["document_id"] = msg.DocumentID
		fields["request_id"] = msg.RequestID

		res, err := workerproc.Process(ctx, r, msg)
		if err != nil {
			metrics.IncJobsFailed()
			fields["error"] = err.Error()
			fields["retryable"] = workerproc.Retryable(err)
			telemetry.Error("lambda.optimize.failed", fields)
			if workerproc.Retryable(err) {
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			} else {
				metrics.IncJobsDeletedUnrecoverable()
			}
			continue
		}
		fields["version_id"] = res.VersionID
		fields["score"] = res.Score
		telemetry.Info("lambda.optimize.completed", fields)
		metrics.IncJobsCompleted()
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
