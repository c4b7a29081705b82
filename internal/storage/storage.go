// Package storage reads objects from an S3-compatible object store.
// TLS bundles referenced as s3://bucket/key are fetched through it.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Storage is a read-only, S3-compatible object storage client.
type Storage interface {
	// Get retrieves an object's content as a streaming reader alongside its info.
	// bucket may be empty to use the configured default bucket.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
}
