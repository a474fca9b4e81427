// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
)

// StyleSource defines the secondary port for SLD style documents.
type StyleSource interface {
	// List returns all style documents in the source.
	List(ctx context.Context) ([]StyleObject, error)

	// GetReader returns a reader for the given style key. A missing
	// document is reported as domain.ErrStyleNotFound.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a style exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// StyleObject represents a style document in a source.
type StyleObject struct {
	Key          string // Object key/path
	Name         string // Style name (key without directory and extension)
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of style source backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeHTTP  StorageType = "http"
	StorageTypeLocal StorageType = "local"
)
