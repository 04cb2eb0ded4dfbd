package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the durable blob store uploads pass through on their way
// to the worker. Keys are opaque paths generated by the dispatcher.
type ObjectStore interface {
	// Put stores the reader's content under key.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error

	// Get returns the object's content, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
