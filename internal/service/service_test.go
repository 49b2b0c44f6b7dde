package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/picshare/picshare/internal/apperr"
	"github.com/picshare/picshare/internal/model"
	"github.com/picshare/picshare/internal/redis"
	storage_mock "github.com/picshare/picshare/internal/storage/mock"
)

func newTestService(t *testing.T) (*Service, *redis.Client, *storage_mock.BlobStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := redis.NewClient(mr.Addr(), "", 0, 10)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs := &storage_mock.BlobStore{}
	return New(store, blobs, 0, slog.Default()), store, blobs, mr
}

func alice() *model.User {
	return &model.User{ID: "u1", Username: "alice"}
}

func seedImage(t *testing.T, store *redis.Client, id, uploader string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.SaveImage(context.Background(), &model.Image{
		ID:           id,
		Title:        "title-" + id,
		Uploader:     uploader,
		UploaderName: "user-" + uploader,
		ImageURL:     "http://blobs/" + id,
		ObjectKey:    "uploads/" + uploader + "/" + id,
		CreatedAt:    createdAt,
	}))
}

func TestUploadThenGalleryFirstPage(t *testing.T) {
	svc, _, blobs, _ := newTestService(t)
	ctx := context.Background()

	blobs.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "uploads/u1/")
	}), mock.Anything, int64(6), "image/jpeg").
		Return("http://blobs/sunset.jpg", nil).Once()

	img, err := svc.Upload(ctx, alice(), UploadInput{
		Title:       "sunset",
		Filename:    "sunset.jpg",
		ContentType: "image/jpeg",
		Size:        6,
		File:        bytes.NewReader([]byte("\xff\xd8qqqq")),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, img.ID)
	assert.Equal(t, "http://blobs/sunset.jpg", img.ImageURL)

	items, err := svc.List(ctx, "u1", ListQuery{Page: 1, Limit: 12})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "sunset", items[0].Title)
	assert.True(t, items[0].IsOwner)
	assert.NotEmpty(t, items[0].ImageURL)

	blobs.AssertExpectations(t)
}

func TestUploadValidation(t *testing.T) {
	svc, _, blobs, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, alice(), UploadInput{Title: "", File: bytes.NewReader([]byte("x")), Size: 1})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = svc.Upload(ctx, alice(), UploadInput{Title: "no file"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	// Oversized uploads fail before any storage call.
	_, err = svc.Upload(ctx, alice(), UploadInput{
		Title: "big",
		File:  bytes.NewReader([]byte("x")),
		Size:  MaxUploadBytes + 1,
	})
	assert.True(t, errors.Is(err, apperr.ErrPayloadTooLarge))
	blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadHonorsConfiguredCap(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := redis.NewClient(mr.Addr(), "", 0, 10)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs := &storage_mock.BlobStore{}
	svc := New(store, blobs, 100, slog.Default())
	ctx := context.Background()

	_, err = svc.Upload(ctx, alice(), UploadInput{
		Title: "big",
		File:  bytes.NewReader([]byte("x")),
		Size:  101,
	})
	assert.True(t, errors.Is(err, apperr.ErrPayloadTooLarge))
	blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, int64(99), mock.Anything).
		Return("http://blobs/small.jpg", nil).Once()
	_, err = svc.Upload(ctx, alice(), UploadInput{
		Title: "small",
		File:  bytes.NewReader(bytes.Repeat([]byte("x"), 99)),
		Size:  99,
	})
	require.NoError(t, err)
	blobs.AssertExpectations(t)
}

func TestUploadCompensatesOnRecordFailure(t *testing.T) {
	svc, _, blobs, mr := newTestService(t)
	ctx := context.Background()

	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("http://blobs/x.jpg", nil).Once()
	blobs.On("Remove", mock.Anything, mock.Anything).Return(nil).Once()

	// Kill the store between the blob write and the record write.
	mr.Close()

	_, err := svc.Upload(ctx, alice(), UploadInput{
		Title: "doomed",
		File:  bytes.NewReader([]byte("x")),
		Size:  1,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
	blobs.AssertExpectations(t)
}

func TestToggleLikeRoundTrip(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	seedImage(t, store, "img1", "u1", time.Now())

	likes, err := svc.ToggleLike(ctx, "img1", "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)

	likes, err = svc.ToggleLike(ctx, "img1", "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), likes)

	img, err := svc.Get(ctx, "img1")
	require.NoError(t, err)
	assert.NotContains(t, img.LikedBy, "u2")
	assert.Equal(t, img.Likes, int64(len(img.LikedBy)))

	_, err = svc.ToggleLike(ctx, "missing", "u2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAddComment(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	seedImage(t, store, "img1", "u1", time.Now())

	_, err := svc.AddComment(ctx, "img1", alice(), "  ")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	img, err := svc.Get(ctx, "img1")
	require.NoError(t, err)
	assert.Empty(t, img.Comments)

	count, err := svc.AddComment(ctx, "img1", alice(), "lovely")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	img, err = svc.Get(ctx, "img1")
	require.NoError(t, err)
	require.Len(t, img.Comments, 1)
	assert.Equal(t, "alice", img.Comments[0].Username)

	_, err = svc.AddComment(ctx, "missing", alice(), "hi")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestEditImageMetadata(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	seedImage(t, store, "img1", "u1", time.Now())

	_, err := svc.EditImage(ctx, "img1", "u2", EditInput{Title: "stolen"})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	img, err := svc.EditImage(ctx, "img1", "u1", EditInput{Title: "dawn", Tags: []string{" sky ", ""}})
	require.NoError(t, err)
	assert.Equal(t, "dawn", img.Title)
	assert.Equal(t, []string{"sky"}, img.Tags)

	// Empty fields leave the record alone.
	img, err = svc.EditImage(ctx, "img1", "u1", EditInput{Description: "first light"})
	require.NoError(t, err)
	assert.Equal(t, "dawn", img.Title)
	assert.Equal(t, "first light", img.Description)

	got, err := svc.Get(ctx, "img1")
	require.NoError(t, err)
	assert.Equal(t, "dawn", got.Title)

	_, err = svc.EditImage(ctx, "missing", "u1", EditInput{Title: "x"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteImage(t *testing.T) {
	svc, store, blobs, _ := newTestService(t)
	ctx := context.Background()
	seedImage(t, store, "img1", "u1", time.Now())

	// Non-owner delete is forbidden and leaves the record and blob alone.
	err := svc.DeleteImage(ctx, "img1", "u2")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	img, err := svc.Get(ctx, "img1")
	require.NoError(t, err)
	assert.NotNil(t, img)
	blobs.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)

	blobs.On("Remove", mock.Anything, "uploads/u1/img1").Return(nil).Once()
	require.NoError(t, svc.DeleteImage(ctx, "img1", "u1"))

	_, err = svc.Get(ctx, "img1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = svc.DeleteImage(ctx, "img1", "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	blobs.AssertExpectations(t)
}

func TestListPagination(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		seedImage(t, store, id, "u1", base.Add(time.Duration(i)*time.Minute))
	}

	items, err := svc.List(ctx, "u2", ListQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].ID)
	assert.False(t, items[0].IsOwner)

	items, err = svc.List(ctx, "u2", ListQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Past the last page: empty, never an error.
	items, err = svc.List(ctx, "u2", ListQuery{Page: 5, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListFiltersAndSort(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	seedImage(t, store, "a", "u1", base.Add(-time.Hour))
	seedImage(t, store, "b", "u1", base)
	_, err := svc.ToggleLike(ctx, "a", "u2")
	require.NoError(t, err)

	items, err := svc.List(ctx, "u1", ListQuery{Sort: "likes"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)

	items, err = svc.List(ctx, "u1", ListQuery{Q: "title-a"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestTrendingUsesPrecomputedRanking(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	seedImage(t, store, "a", "u1", time.Now())
	seedImage(t, store, "b", "u1", time.Now())
	require.NoError(t, store.SetTrendingScore(ctx, "a", 1))
	require.NoError(t, store.SetTrendingScore(ctx, "b", 9))

	items, err := svc.Trending(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
}

func TestTrendingScoreFormula(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	score := TrendingScore(3, 16, at)
	assert.InDelta(t, 3+4+1.7, score, 0.01)
}
