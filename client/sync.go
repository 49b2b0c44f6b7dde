package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/picshare/picshare/internal/model"
)

// ListImages fetches a gallery page; offline it paginates the local mirror
// with the same newest-first, empty-past-the-end semantics.
func (c *Client) ListImages(ctx context.Context, page, limit int) ([]model.ImageSummary, error) {
	var res struct {
		Items []model.ImageSummary `json:"items"`
	}
	path := fmt.Sprintf("/gallery?page=%d&limit=%d", page, limit)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &res)
	if err == nil {
		return res.Items, nil
	}
	if !isTransportError(err) {
		return nil, err
	}
	c.log.Warn("gallery falling back to local", "error", err)
	return c.listLocal(page, limit)
}

// UploadInput is one file plus metadata. Watermark only applies on the local
// path, where the bytes are re-encoded anyway; the server stores the original.
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
	Title       string
	Description string
	Tags        []string
	Privacy     string
	Album       string
	Watermark   bool
}

type UploadResult struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
}

func (c *Client) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	res, err := c.uploadRemote(ctx, in)
	if err == nil {
		return res, nil
	}
	if !isTransportError(err) {
		return nil, err
	}
	c.log.Warn("upload falling back to local", "error", err)
	return c.uploadLocal(in)
}

func (c *Client) uploadRemote(ctx context.Context, in UploadInput) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", in.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(in.Data); err != nil {
		return nil, err
	}
	_ = mw.WriteField("title", in.Title)
	_ = mw.WriteField("description", in.Description)
	if len(in.Tags) > 0 {
		_ = mw.WriteField("tags", joinTags(in.Tags))
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	httpRes, err := c.httpc.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer httpRes.Body.Close()
	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpRes.Body, 512))
		return nil, &APIError{Status: httpRes.StatusCode, Message: string(body)}
	}
	var res UploadResult
	if err := decodeJSON(httpRes.Body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ToggleLike flips the caller's like on both paths; offline the count is
// derived from the mirrored like set, same as the server contract.
func (c *Client) ToggleLike(ctx context.Context, imageID string) (int64, error) {
	var res struct {
		Likes int64 `json:"likes"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/image/"+url.PathEscape(imageID)+"/like", nil, &res)
	if err == nil {
		return res.Likes, nil
	}
	if !isTransportError(err) {
		return 0, err
	}
	c.log.Warn("like falling back to local", "error", err)
	return c.toggleLikeLocal(imageID)
}

func (c *Client) AddComment(ctx context.Context, imageID, text string) (int64, error) {
	var res struct {
		Count int64 `json:"count"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/image/"+url.PathEscape(imageID)+"/comment",
		map[string]string{"text": text}, &res)
	if err == nil {
		return res.Count, nil
	}
	if !isTransportError(err) {
		return 0, err
	}
	c.log.Warn("comment falling back to local", "error", err)
	return c.addCommentLocal(imageID, text)
}

// EditInput carries the metadata fields an edit may change. Empty fields are
// left alone; a non-nil Tags slice replaces the tag list.
type EditInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// EditImage merges metadata changes into the image; offline the merge lands
// on the mirrored record instead.
func (c *Client) EditImage(ctx context.Context, imageID string, in EditInput) error {
	err := c.doJSON(ctx, http.MethodPatch, "/image/"+url.PathEscape(imageID), in, nil)
	if err == nil {
		return nil
	}
	if !isTransportError(err) {
		return err
	}
	c.log.Warn("edit falling back to local", "error", err)
	return c.editImageLocal(imageID, in)
}

func (c *Client) DeleteImage(ctx context.Context, imageID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/image/"+url.PathEscape(imageID), nil, nil)
	if err == nil {
		return nil
	}
	if !isTransportError(err) {
		return err
	}
	c.log.Warn("delete falling back to local", "error", err)
	return c.deleteImageLocal(imageID)
}

func (c *Client) Report(ctx context.Context, imageID, reason, details string) error {
	err := c.doJSON(ctx, http.MethodPost, "/image/"+url.PathEscape(imageID)+"/report",
		map[string]string{"reason": reason, "details": details}, nil)
	if err == nil {
		return nil
	}
	if !isTransportError(err) {
		return err
	}
	c.log.Warn("report falling back to local", "error", err)
	return c.reportLocal(imageID, reason, details)
}

func (c *Client) Follow(ctx context.Context, target string) error {
	err := c.doJSON(ctx, http.MethodPost, "/user/"+url.PathEscape(target)+"/follow", nil, nil)
	if err == nil {
		return nil
	}
	if !isTransportError(err) {
		return err
	}
	c.log.Warn("follow falling back to local", "error", err)
	return c.followLocal(target, true)
}

func (c *Client) Unfollow(ctx context.Context, target string) error {
	err := c.doJSON(ctx, http.MethodPost, "/user/"+url.PathEscape(target)+"/unfollow", nil, nil)
	if err == nil {
		return nil
	}
	if !isTransportError(err) {
		return err
	}
	c.log.Warn("unfollow falling back to local", "error", err)
	return c.followLocal(target, false)
}

func (c *Client) IncrementView(ctx context.Context, imageID string) error {
	err := c.doJSON(ctx, http.MethodPost, "/image/"+url.PathEscape(imageID)+"/view", nil, nil)
	if err == nil {
		return nil
	}
	if !isTransportError(err) {
		return err
	}
	return c.incrementViewLocal(imageID)
}

// Trending fetches the server ranking; offline it ranks the mirror by
// likes + sqrt(views) + a tiny recency weight.
func (c *Client) Trending(ctx context.Context, limit int) ([]model.ImageSummary, error) {
	var res struct {
		Items []model.ImageSummary `json:"items"`
	}
	path := fmt.Sprintf("/trending?limit=%d", limit)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &res)
	if err == nil {
		return res.Items, nil
	}
	if !isTransportError(err) {
		return nil, err
	}
	c.log.Warn("trending falling back to local", "error", err)
	return c.trendingLocal(limit)
}
