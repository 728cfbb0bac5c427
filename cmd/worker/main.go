package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"portfolio-backend/internal/bootstrap"
	"portfolio-backend/internal/shared/config"
	"portfolio-backend/internal/shared/metrics"
	"portfolio-backend/internal/shared/telemetry"
	"portfolio-backend/internal/workerproc"
)

const (
	defaultRegion             = "us-east-1"
	defaultVisibilitySeconds  = 1200
	defaultWorkerConcurrency  = 2
	defaultMaxReceives        = 3
	defaultShutdownTimeoutSec = 60
)

func main() {
	cfg := config.Load()
	telemetry.Configure(os.Stdout, cfg.LogLevel)

	queueURL := strings.TrimSpace(cfg.OptimizeQueueURL)
	if queueURL == "" {
		log.Fatal("OPTIMIZE_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("WORKER_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("WORKER_CONCURRENCY", defaultWorkerConcurrency)
	maxReceives := envInt("WORKER_MAX_RECEIVES", defaultMaxReceives)
	shutdownTimeout := time.Duration(envInt("WORKER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	region := strings.TrimSpace(cfg.AWSRegion)
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	w := &worker{
		client:      sqsClient,
		queueURL:    queueURL,
		runner:      app.Optimizer,
		maxReceives: maxReceives,
	}

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":        queueURL,
		"concurrency":  concurrency,
		"visibility_s": visibilitySeconds,
		"max_receives": maxReceives,
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// In-flight runs finish even after a shutdown signal; the
				// wait below bounds how long they get.
				w.handle(context.WithoutCancel(ctx), m)
			}(msg)
		}
	}

	telemetry.Info("worker.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type worker struct {
	client      sqsAPI
	queueURL    string
	runner      workerproc.Runner
	maxReceives int
}

// handle runs one message. The message is deleted on success, on payloads
// that can never succeed, and once a retryable failure has used its receives.
func (w *worker) handle(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "", "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		var missing workerproc.ErrMissingField
		if errors.As(err, &missing) {
			fields["job_id"] = missing.JobID
			fields["request_id"] = missing.RequestID
		}
		telemetry.Error("worker.optimize.invalid_message", fields)
		if w.delete(ctx, msg, fields) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	fields := baseFields(msg, decoded.JobID, decoded.DocumentID, decoded.RequestID)
	telemetry.Info("worker.optimize.received", fields)

	res, err := workerproc.Process(ctx, w.runner, decoded)
	if err != nil {
		metrics.IncJobsFailed()
		failed := copyFields(fields)
		failed["error"] = err.Error()
		retryable := workerproc.Retryable(err)
		failed["retryable"] = retryable
		telemetry.Error("worker.optimize.failed", failed)

		if !retryable || (w.maxReceives > 0 && receiveCount(msg) >= w.maxReceives) {
			if w.delete(ctx, msg, failed) {
				metrics.IncJobsDeletedUnrecoverable()
			}
		}
		return
	}

	if w.delete(ctx, msg, fields) {
		done := copyFields(fields)
		done["version_id"] = res.VersionID
		done["score"] = res.Score
		done["iterations"] = res.Iterations
		done["converged"] = res.Converged
		telemetry.Info("worker.optimize.completed", done)
		metrics.IncJobsCompleted()
	}
}

func (w *worker) delete(ctx context.Context, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		f := copyFields(fields)
		f["error"] = "missing receipt handle"
		telemetry.Error("worker.optimize.delete_failed", f)
		return false
	}
	if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		f := copyFields(fields)
		f["error"] = err.Error()
		telemetry.Error("worker.optimize.delete_failed", f)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, jobID, documentID, requestID string) map[string]any {
	fields := map[string]any{
		"job_id":         jobID,
		"document_id":    documentID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
