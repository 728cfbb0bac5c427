// Package object stores uploaded evidence files.
package object

import (
	"context"
	"io"
)

// Object describes a stored upload.
type Object struct {
	Key      string
	Size     int64
	MimeType string
}

// Store saves and retrieves binary objects.
type Store interface {
	// Save writes r under namespace with a random prefix and sniffs its MIME type.
	Save(ctx context.Context, namespace string, fileName string, r io.Reader) (Object, error)
	// Put writes r at an exact key.
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
