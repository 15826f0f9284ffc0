package blobstore

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored blob.
type BlobInfo struct {
	SizeBytes int64
	ModTime   time.Time
}

// BlobStore is the byte-storage abstraction used by the image service.
// Blobs are keyed by the image id they back.
type BlobStore interface {
	Put(ctx context.Context, id string, r io.Reader) (int64, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Stat(ctx context.Context, id string) (BlobInfo, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}
