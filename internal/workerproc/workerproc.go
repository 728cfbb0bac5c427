// Package workerproc decodes queued optimization jobs and runs them.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"portfolio-backend/internal/optimize"
	"portfolio-backend/internal/queue"
	"portfolio-backend/internal/shared/apperr"
)

// Runner executes one optimization run.
type Runner interface {
	Run(ctx context.Context, p optimize.Params) (optimize.Result, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingField indicates a message missing its job or document id.
type ErrMissingField struct {
	Meta      MessageMeta
	Field     string
	JobID     string
	RequestID string
}

func (e ErrMissingField) Error() string { return "missing " + e.Field }

// ErrProcess indicates the run failed after the message was parsed.
type ErrProcess struct {
	JobID      string
	DocumentID string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process optimize job"
	}
	return "process optimize job: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload. The document id in
// the message envelope wins over the one inside the params.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.JobID) == "" {
		return msg, meta, ErrMissingField{Meta: meta, Field: "job id", RequestID: msg.RequestID}
	}
	if strings.TrimSpace(msg.DocumentID) == "" {
		msg.DocumentID = msg.Params.DocumentID
	}
	if strings.TrimSpace(msg.DocumentID) == "" {
		return msg, meta, ErrMissingField{Meta: meta, Field: "document id", JobID: msg.JobID, RequestID: msg.RequestID}
	}
	msg.Params.DocumentID = msg.DocumentID
	if msg.Params.RequestID == "" {
		msg.Params.RequestID = msg.RequestID
	}
	return msg, meta, nil
}

// Process runs the job described by msg.
func Process(ctx context.Context, runner Runner, msg queue.Message) (optimize.Result, error) {
	if runner == nil {
		return optimize.Result{}, errors.New("optimizer not configured")
	}
	res, err := runner.Run(ctx, msg.Params)
	if err != nil {
		return optimize.Result{}, ErrProcess{JobID: msg.JobID, DocumentID: msg.DocumentID, RequestID: msg.RequestID, Err: err}
	}
	return res, nil
}

// Retryable reports whether a failed job is worth redelivering. Bad input,
// missing documents and unusable model output will fail the same way again.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case apperr.IsValidation(err), apperr.IsNotFound(err), apperr.IsSectionNotFound(err):
		return false
	case errors.Is(err, apperr.ErrParse), errors.Is(err, apperr.ErrEmptyRewrite):
		return false
	}
	return true
}
