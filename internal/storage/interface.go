package storage

import (
	"context"
	"io"
)

// ObjectStore defines the interface for uploaded-file storage operations
type ObjectStore interface {
	// Upload stores an object under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
