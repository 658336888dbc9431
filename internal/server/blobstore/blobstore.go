// Package blobstore addresses binary objects by (bucket, path). The storage
// service treats it as a capability and never inspects object contents.
package blobstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBlobNotFound means the bucket or the object at path does not exist.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobExists is returned by Put when an object already occupies path.
	ErrBlobExists = errors.New("blob already exists")
)

// Bucket is a named partition of the store.
type Bucket struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type BlobStore interface {
	// Put writes data at path. It never overwrites: an occupied path yields
	// ErrBlobExists.
	Put(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, path string) ([]byte, error)
	// Remove deletes the object. Removing a missing object is not an error.
	Remove(ctx context.Context, bucket, path string) error
	// SignURL returns a time-limited GET URL for an existing object, or
	// ErrBlobNotFound when the object is gone.
	SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
	ListBuckets(ctx context.Context) ([]Bucket, error)
	// CreateBucket creates name; public buckets allow anonymous reads.
	CreateBucket(ctx context.Context, name string, public bool) error
}
