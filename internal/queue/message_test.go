package queue

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"portfolio-backend/internal/optimize"
)

func TestMessageRoundTrip(t *testing.T) {
	humanize := true
	msg := Message{
		JobID:      "job-123",
		DocumentID: "doc-1",
		RequestID:  "request-456",
		EnqueuedAt: "2026-01-30T22:00:00Z",
		Version:    1,
		Params: optimize.Params{
			DocumentID:    "doc-1",
			TargetScore:   9,
			MaxIterations: 4,
			Humanize:      &humanize,
		},
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestEnqueuerSendsJob(t *testing.T) {
	api := &fakeSQS{}
	e := Enqueuer{Client: NewSQSClientWithAPI(api, "https://sqs.us-east-1.amazonaws.com/1/optimize")}
	job := optimize.Job{
		ID:         "job-1",
		Params:     optimize.Params{DocumentID: "doc-9", RequestID: "req-1"},
		EnqueuedAt: time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC),
	}

	if err := e.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(api.inputs) != 1 {
		t.Fatalf("expected one send, got %d", len(api.inputs))
	}
	in := api.inputs[0]
	if in.MessageGroupId != nil {
		t.Fatalf("standard queue should not get a group id")
	}
	msg, err := DecodeMessage([]byte(aws.ToString(in.MessageBody)))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg.JobID != "job-1" || msg.DocumentID != "doc-9" || msg.RequestID != "req-1" || msg.Version != MessageVersion {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.EnqueuedAt != "2026-02-01T08:30:00Z" {
		t.Fatalf("unexpected enqueuedAt %q", msg.EnqueuedAt)
	}
}

func TestFIFOQueueGroupsByDocument(t *testing.T) {
	api := &fakeSQS{}
	c := NewSQSClientWithAPI(api, "https://sqs.us-east-1.amazonaws.com/1/optimize.fifo")

	if err := c.Send(context.Background(), Message{JobID: "job-2", DocumentID: "doc-3"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	in := api.inputs[0]
	if aws.ToString(in.MessageGroupId) != "doc-3" || aws.ToString(in.MessageDeduplicationId) != "job-2" {
		t.Fatalf("unexpected fifo attributes %+v", in)
	}
}

func TestSendWrapsError(t *testing.T) {
	boom := errors.New("throttled")
	c := NewSQSClientWithAPI(&fakeSQS{err: boom}, "q")
	if err := c.Send(context.Background(), Message{JobID: "j"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
