// Package blob abstracts the durable object store that holds all
// externally-persisted run state: raw cache objects, the seen-observation
// file, and the station metadata document. Production uses an S3-compatible
// store; tests substitute the in-memory implementation.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for keys that have never been written.
// Callers loading prior run state treat it as "start empty".
var ErrNotFound = errors.New("blob: object not found")

// Store is a minimal key-value object store contract.
type Store interface {
	// Get returns the full object body for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the full object body for key, overwriting any prior object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// List returns the keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
