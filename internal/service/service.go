// Package service owns the gallery, image mutation, upload and social
// operations. Handlers stay thin; everything here takes an explicit caller
// identity and returns taxonomy errors from apperr.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/picshare/picshare/internal/apperr"
	"github.com/picshare/picshare/internal/model"
	"github.com/picshare/picshare/internal/redis"
	"github.com/picshare/picshare/internal/storage"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50
	MaxUploadBytes  = 10 << 20
)

type Service struct {
	store     *redis.Client
	blobs     storage.BlobStore
	maxUpload int64
	log       *slog.Logger
}

// New wires the store and blob backend. maxUpload caps upload sizes in bytes;
// zero or negative falls back to MaxUploadBytes.
func New(store *redis.Client, blobs storage.BlobStore, maxUpload int64, log *slog.Logger) *Service {
	if maxUpload <= 0 {
		maxUpload = MaxUploadBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, blobs: blobs, maxUpload: maxUpload, log: log}
}

// ListQuery are the gallery query parameters. Zero values mean first page,
// default size, no filter, newest first.
type ListQuery struct {
	Page  int
	Limit int
	Q     string
	Tag   string
	Sort  string // newest | likes | views
}

func (q *ListQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Sort == "" {
		q.Sort = "newest"
	}
}

// List produces the paginated gallery projection. Past the last page it
// returns an empty slice, never an error.
func (s *Service) List(ctx context.Context, callerID string, q ListQuery) ([]model.ImageSummary, error) {
	q.normalize()
	offset := int64(q.Page-1) * int64(q.Limit)

	var ids []string
	var err error
	plain := q.Q == "" && q.Tag == "" && q.Sort == "newest"
	if plain {
		// Fast path: the gallery zset is already newest first.
		ids, err = s.store.GalleryIDs(ctx, offset, int64(q.Limit))
	} else {
		ids, err = s.store.AllGalleryIDs(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	images := make([]*model.Image, 0, len(ids))
	for _, id := range ids {
		img, err := s.store.GetImage(ctx, id)
		if err != nil || img == nil {
			continue
		}
		if q.Q != "" && !matches(img, q.Q) {
			continue
		}
		if q.Tag != "" && !hasTag(img, q.Tag) {
			continue
		}
		images = append(images, img)
	}

	if !plain {
		switch q.Sort {
		case "likes":
			sort.SliceStable(images, func(i, j int) bool { return images[i].Likes > images[j].Likes })
		case "views":
			sort.SliceStable(images, func(i, j int) bool { return images[i].Views > images[j].Views })
		}
		start := int(offset)
		if start >= len(images) {
			return []model.ImageSummary{}, nil
		}
		end := start + q.Limit
		if end > len(images) {
			end = len(images)
		}
		images = images[start:end]
	}

	return summarize(images, callerID), nil
}

// Get returns the assembled image record.
func (s *Service) Get(ctx context.Context, imageID string) (*model.Image, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: image %s", apperr.ErrNotFound, imageID)
	}
	return img, nil
}

// ToggleLike flips the caller's membership in the like set and returns the
// resulting count. The count is derived from the set in a single atomic
// store-side step, so two concurrent toggles cannot corrupt it.
func (s *Service) ToggleLike(ctx context.Context, imageID, callerID string) (int64, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img == nil {
		return 0, fmt.Errorf("%w: image %s", apperr.ErrNotFound, imageID)
	}
	likes, err := s.store.ToggleLike(ctx, imageID, callerID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	return likes, nil
}

// AddComment appends a comment carrying the caller's display name and
// returns the new comment count. Any authenticated user may comment.
func (s *Service) AddComment(ctx context.Context, imageID string, caller *model.User, text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: missing comment text", apperr.ErrValidation)
	}
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img == nil {
		return 0, fmt.Errorf("%w: image %s", apperr.ErrNotFound, imageID)
	}
	comment := &model.Comment{
		ID:        uuid.NewString(),
		UserID:    caller.ID,
		Username:  caller.Username,
		Text:      text,
		CreatedAt: time.Now(),
	}
	count, err := s.store.AddComment(ctx, imageID, comment)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	return count, nil
}

// DeleteImage removes the record and its backing blob. Only the uploader may
// delete.
func (s *Service) DeleteImage(ctx context.Context, imageID, callerID string) error {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img == nil {
		return fmt.Errorf("%w: image %s", apperr.ErrNotFound, imageID)
	}
	if img.Uploader != callerID {
		return fmt.Errorf("%w: not the uploader", apperr.ErrForbidden)
	}
	if err := s.store.DeleteImage(ctx, img); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img.ObjectKey != "" {
		if err := s.blobs.Remove(ctx, img.ObjectKey); err != nil {
			s.log.Warn("failed to remove blob", "key", img.ObjectKey, "error", err)
		}
	}
	return nil
}

// EditInput carries the metadata fields an edit may change. Empty fields are
// left alone; a non-nil Tags slice replaces the tag list.
type EditInput struct {
	Title       string
	Description string
	Tags        []string
}

// EditImage merges metadata changes into the record. Only the uploader may
// edit.
func (s *Service) EditImage(ctx context.Context, imageID, callerID string, in EditInput) (*model.Image, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: image %s", apperr.ErrNotFound, imageID)
	}
	if img.Uploader != callerID {
		return nil, fmt.Errorf("%w: not the uploader", apperr.ErrForbidden)
	}
	if in.Title != "" {
		img.Title = in.Title
	}
	if in.Description != "" {
		img.Description = in.Description
	}
	if in.Tags != nil {
		img.Tags = cleanTags(in.Tags)
	}
	if err := s.store.SaveImage(ctx, img); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	return img, nil
}

// UploadInput carries one file plus its metadata.
type UploadInput struct {
	Title       string
	Description string
	Tags        []string
	Filename    string
	ContentType string
	Size        int64
	File        io.Reader
}

// Upload validates, writes the blob, then creates the record. The size cap is
// enforced before any storage write. If the record write fails the blob is
// removed again so no orphan is left behind.
func (s *Service) Upload(ctx context.Context, caller *model.User, in UploadInput) (*model.Image, error) {
	if in.Title == "" || in.File == nil {
		return nil, fmt.Errorf("%w: missing title or file", apperr.ErrValidation)
	}
	if in.Size > s.maxUpload {
		return nil, fmt.Errorf("%w: %d bytes", apperr.ErrPayloadTooLarge, in.Size)
	}

	key := objectKey(caller.ID, in.Filename)
	url, err := s.blobs.Put(ctx, key, in.File, in.Size, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	img := &model.Image{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Uploader:     caller.ID,
		UploaderName: caller.Username,
		ImageURL:     url,
		ObjectKey:    key,
		Tags:         cleanTags(in.Tags),
		CreatedAt:    time.Now(),
	}
	if err := s.store.SaveImage(ctx, img); err != nil {
		if rmErr := s.blobs.Remove(ctx, key); rmErr != nil {
			s.log.Warn("failed to remove blob after record failure", "key", key, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	return img, nil
}

func (s *Service) IncrementView(ctx context.Context, imageID string) (int64, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img == nil {
		return 0, fmt.Errorf("%w: image %s", apperr.ErrNotFound, imageID)
	}
	return s.store.IncrementView(ctx, imageID)
}

func (s *Service) Report(ctx context.Context, caller *model.User, imageID, reason, details string) error {
	if reason == "" {
		return fmt.Errorf("%w: missing reason", apperr.ErrValidation)
	}
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	if img == nil {
		return fmt.Errorf("%w: image %s", apperr.ErrNotFound, imageID)
	}
	return s.store.AddReport(ctx, &redis.Report{
		ID:        uuid.NewString(),
		ImageID:   imageID,
		Reporter:  caller.ID,
		Reason:    reason,
		Details:   details,
		CreatedAt: time.Now(),
	})
}

func (s *Service) Follow(ctx context.Context, callerID, target string) error {
	if target == "" {
		return fmt.Errorf("%w: missing target", apperr.ErrValidation)
	}
	return s.store.Follow(ctx, callerID, target)
}

func (s *Service) Unfollow(ctx context.Context, callerID, target string) error {
	if target == "" {
		return fmt.Errorf("%w: missing target", apperr.ErrValidation)
	}
	return s.store.Unfollow(ctx, callerID, target)
}

// Trending reads the precomputed trending ranking.
func (s *Service) Trending(ctx context.Context, callerID string, limit int) ([]model.ImageSummary, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	ids, err := s.store.TrendingIDs(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	images := make([]*model.Image, 0, len(ids))
	for _, id := range ids {
		img, err := s.store.GetImage(ctx, id)
		if err != nil || img == nil {
			continue
		}
		images = append(images, img)
	}
	return summarize(images, callerID), nil
}

func (s *Service) Search(ctx context.Context, query string, offset, limit int) ([]*model.Image, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return s.store.SearchImages(ctx, query, offset, limit)
}

// TrendingScore ranks by likes plus dampened views plus a tiny recency
// weight.
func TrendingScore(likes, views int64, createdAt time.Time) float64 {
	return float64(likes) + math.Sqrt(float64(views)) + float64(createdAt.UnixMilli())/1e12
}

func summarize(images []*model.Image, callerID string) []model.ImageSummary {
	out := make([]model.ImageSummary, 0, len(images))
	for _, img := range images {
		out = append(out, model.ImageSummary{
			ID:        img.ID,
			Title:     img.Title,
			Uploader:  img.UploaderName,
			ImageURL:  img.ImageURL,
			Likes:     img.Likes,
			Comments:  len(img.Comments),
			IsOwner:   img.Uploader == callerID,
			Timestamp: img.CreatedAt,
		})
	}
	return out
}

func matches(img *model.Image, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(img.Title), q) ||
		strings.Contains(strings.ToLower(img.Description), q) ||
		strings.Contains(strings.ToLower(strings.Join(img.Tags, " ")), q)
}

func hasTag(img *model.Image, tag string) bool {
	for _, t := range img.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func objectKey(userID, filename string) string {
	token := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("uploads/%s/%d-%s%s", userID, time.Now().UnixMilli(), token, filepath.Ext(filename))
}
