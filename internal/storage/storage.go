// Package storage abstracts the object store that holds cold-storage
// exports: pruned archive rows serialized before deletion. Backends are a
// local directory and S3.
package storage

import (
	"context"
	"errors"
)

// Common errors for object store operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage is the export sink. Object paths are forward-slash keys
// relative to the store root, e.g. "exports/2026-08-30/trades.jsonl.sz".
type ObjectStorage interface {
	// Upload copies a local file to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies the object at objectPath to a local file. Returns
	// ErrObjectNotFound if no such object exists.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
