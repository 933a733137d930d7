// Package storage stores attachment content. The engine only reasons about
// declared and counted sizes; bytes pass straight through to the backend.
package storage

import (
	"context"
	"io"
)

// BlobStore persists attachment bytes under stable keys of the form
// "<cipher-id>/<attachment-id>".
type BlobStore interface {
	// Put writes one object. size is the exact byte count of r.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Delete removes one object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under the given key prefix,
	// used when a cipher is hard-deleted with all its attachments.
	DeletePrefix(ctx context.Context, prefix string) error
}
