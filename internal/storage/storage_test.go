package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *mockClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Error(0)
}

func newTestStore(client clientAPI) *MinioStore {
	return &MinioStore{
		bucket:  "picshare",
		baseURL: "http://localhost:9000/picshare",
		client:  client,
	}
}

func TestPutReturnsPublicURL(t *testing.T) {
	client := &mockClient{}
	s := newTestStore(client)

	content := []byte("image bytes")
	client.On("PutObject", mock.Anything, "picshare", "uploads/u1/1-ab.jpg",
		mock.Anything, int64(len(content)),
		mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
			return opts.ContentType == "image/jpeg"
		})).
		Return(minio.UploadInfo{Key: "uploads/u1/1-ab.jpg"}, nil).Once()

	url, err := s.Put(context.Background(), "uploads/u1/1-ab.jpg", bytes.NewReader(content), int64(len(content)), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/picshare/uploads/u1/1-ab.jpg", url)
	client.AssertExpectations(t)
}

func TestPutDefaultsContentType(t *testing.T) {
	client := &mockClient{}
	s := newTestStore(client)

	client.On("PutObject", mock.Anything, "picshare", "k", mock.Anything, int64(1),
		mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
			return opts.ContentType == defaultContentType
		})).
		Return(minio.UploadInfo{}, nil).Once()

	_, err := s.Put(context.Background(), "k", bytes.NewReader([]byte("x")), 1, "")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestPutError(t *testing.T) {
	client := &mockClient{}
	s := newTestStore(client)

	client.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("boom")).Once()

	_, err := s.Put(context.Background(), "k", bytes.NewReader(nil), 0, "")
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	client := &mockClient{}
	s := newTestStore(client)

	client.On("RemoveObject", mock.Anything, "picshare", "uploads/u1/x.jpg", mock.Anything).
		Return(nil).Once()
	require.NoError(t, s.Remove(context.Background(), "uploads/u1/x.jpg"))
	client.AssertExpectations(t)
}
