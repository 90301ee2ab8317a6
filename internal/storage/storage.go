// Package storage provides object storage access for run inputs and
// published reports.
package storage

import (
	"context"

	tberrors "github.com/arkilian/tripbench/internal/errors"
)

// Common errors for storage operations. Upload and download failures are
// retryable.
var (
	ErrObjectNotFound = tberrors.New(tberrors.ErrCategoryStorage, tberrors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = tberrors.New(tberrors.ErrCategoryStorage, tberrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = tberrors.New(tberrors.ErrCategoryStorage, tberrors.CodeDownloadFailed, "download failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Upload uploads a file to object storage.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download downloads a file from object storage.
	// objectPath is the source path in object storage.
	// localPath is the destination path on the local filesystem.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)
}
