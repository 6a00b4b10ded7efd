package storage

import (
	"context"
	"io"
)

type Object struct {
	Name string
	Size int64
}

// ObjectStore holds the artifacts a turn produces (result.html, result.txt),
// keyed by thread id prefix.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}
