// Package storage persists the raw bytes of uploaded works.
package storage

import (
	"context"
	"io"
	"time"
)

// Object is an opened stored file.
type Object struct {
	Content io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// FileStorage abstracts the blob backend behind a submission.
type FileStorage interface {
	// Save writes the content under name and returns the opaque storage location.
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	// Open returns the stored file. Missing files yield apperr.ErrGone.
	Open(ctx context.Context, location string) (Object, error)
	// Delete removes the stored file; deleting a missing file is not an error.
	Delete(ctx context.Context, location string) error
}
