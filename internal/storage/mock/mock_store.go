package storage_mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// BlobStore is a testify mock of storage.BlobStore.
type BlobStore struct {
	mock.Mock
}

func (m *BlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, key, r, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *BlobStore) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
