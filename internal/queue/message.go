package queue

import (
	"encoding/json"

	"portfolio-backend/internal/optimize"
)

// MessageVersion is the payload schema version written by this build.
const MessageVersion = 1

// Message is the payload sent to optimization workers.
type Message struct {
	JobID      string          `json:"jobId"`
	DocumentID string          `json:"documentId"`
	RequestID  string          `json:"requestId"`
	EnqueuedAt string          `json:"enqueuedAt"`
	Version    int             `json:"version"`
	Params     optimize.Params `json:"params"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
