package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/umich-dbgroup/litmus/internal/storage"
)

// S3Backend stores blobs as objects.
type S3Backend struct {
	bucket *storage.Bucket
}

func NewS3Backend(bucket *storage.Bucket) *S3Backend {
	return &S3Backend{bucket: bucket}
}

func (b *S3Backend) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := b.bucket.GetFile(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

func (b *S3Backend) Put(ctx context.Context, name string, data []byte) error {
	return b.bucket.PutFile(ctx, name, data, "application/zstd")
}

func (b *S3Backend) Delete(ctx context.Context, name string) error {
	return b.bucket.DeleteFile(ctx, name)
}

func (b *S3Backend) DeletePrefix(ctx context.Context, prefix string) error {
	return b.bucket.DeleteFolder(ctx, prefix)
}
