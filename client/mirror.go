package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/picshare/picshare/internal/model"
)

// LocalImage is the mirror's record. It evolved independently of the server
// model: it carries the raw data URL instead of a blob reference, plus
// privacy, album and view fields.
type LocalImage struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Uploader    string         `json:"uploader"`
	ImageURL    string         `json:"imageUrl"`
	ThumbURL    string         `json:"thumbUrl,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Album       string         `json:"album,omitempty"`
	Privacy     string         `json:"privacy,omitempty"`
	Likes       int64          `json:"likes"`
	LikedBy     []string       `json:"likedBy,omitempty"`
	Comments    []LocalComment `json:"comments,omitempty"`
	Views       int64          `json:"views"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type LocalComment struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type localUser struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type followRecord struct {
	User      string   `json:"user"`
	Following []string `json:"following"`
}

type notification struct {
	ID    int64     `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	URL   string    `json:"url,omitempty"`
	Read  bool      `json:"read"`
	At    time.Time `json:"at"`
}

type activityEntry struct {
	TS   time.Time `json:"ts"`
	Text string    `json:"text"`
}

type localReport struct {
	ID       int64  `json:"id"`
	ImageID  string `json:"imageId"`
	Reason   string `json:"reason"`
	Details  string `json:"details,omitempty"`
	Reporter string `json:"reporter"`
}

// localID reduces same-millisecond collisions with a small random offset.
func localID() int64 {
	return time.Now().UnixMilli() + rand.Int63n(1000)
}

func (c *Client) loginLocal(email, password string) (*model.User, error) {
	var users []localUser
	if _, err := c.mirror.Get(keyUsers, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == email &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil {
			c.setSession("local-"+email, u.Username)
			return &model.User{Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}, nil
		}
	}
	return nil, &APIError{Status: 401, Message: "Invalid credentials"}
}

func (c *Client) registerLocal(username, email, password string) (*model.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	var users []localUser
	err = c.mirror.Update(keyUsers, &users, func() error {
		for _, u := range users {
			if u.Email == email {
				return &APIError{Status: 400, Message: "email already registered"}
			}
		}
		users = append(users, localUser{
			Username:     username,
			Email:        email,
			PasswordHash: string(hashed),
			CreatedAt:    time.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.setSession("local-"+email, username)
	return &model.User{Username: username, Email: email}, nil
}

func (c *Client) listLocal(page, limit int) ([]model.ImageSummary, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 12
	}
	var images []LocalImage
	if _, err := c.mirror.Get(keyImages, &images); err != nil {
		return nil, err
	}
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})
	start := (page - 1) * limit
	if start >= len(images) {
		return []model.ImageSummary{}, nil
	}
	end := start + limit
	if end > len(images) {
		end = len(images)
	}
	return c.summarizeLocal(images[start:end]), nil
}

func (c *Client) uploadLocal(in UploadInput) (*UploadResult, error) {
	if in.Title == "" || len(in.Data) == 0 {
		return nil, &APIError{Status: 400, Message: "Missing title or file"}
	}
	data := in.Data
	contentType := in.ContentType
	if in.Watermark {
		marked, err := ApplyWatermark(data, c.CurrentUser())
		if err != nil {
			c.log.Warn("watermark failed, storing original", "error", err)
		} else {
			data = marked
			contentType = "image/jpeg"
		}
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))

	img := LocalImage{
		ID:          localID(),
		Title:       in.Title,
		Description: in.Description,
		Uploader:    c.CurrentUser(),
		ImageURL:    dataURL,
		ThumbURL:    dataURL,
		Tags:        in.Tags,
		Album:       in.Album,
		Privacy:     in.Privacy,
		LikedBy:     []string{},
		Comments:    []LocalComment{},
		CreatedAt:   time.Now(),
	}
	if img.Privacy == "" {
		img.Privacy = "public"
	}

	var images []LocalImage
	err := c.mirror.Update(keyImages, &images, func() error {
		images = append([]LocalImage{img}, images...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.recordActivity(fmt.Sprintf("uploaded %q offline", in.Title))
	return &UploadResult{ID: strconv.FormatInt(img.ID, 10), ImageURL: img.ImageURL}, nil
}

// toggleLikeLocal mirrors the server contract: add-if-absent,
// remove-if-present, count derived from the set.
func (c *Client) toggleLikeLocal(imageID string) (int64, error) {
	user := c.CurrentUser()
	if user == "" {
		user = "demo"
	}
	var likes int64
	var images []LocalImage
	err := c.mirror.Update(keyImages, &images, func() error {
		img := findLocal(images, imageID)
		if img == nil {
			return &APIError{Status: 404, Message: "not found"}
		}
		idx := -1
		for i, u := range img.LikedBy {
			if u == user {
				idx = i
				break
			}
		}
		if idx >= 0 {
			img.LikedBy = append(img.LikedBy[:idx], img.LikedBy[idx+1:]...)
		} else {
			img.LikedBy = append(img.LikedBy, user)
		}
		img.Likes = int64(len(img.LikedBy))
		likes = img.Likes
		return nil
	})
	if err != nil {
		return 0, err
	}
	return likes, nil
}

func (c *Client) addCommentLocal(imageID, text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, &APIError{Status: 400, Message: "Missing comment text"}
	}
	user := c.CurrentUser()
	if user == "" {
		user = "demo"
	}
	var count int64
	var images []LocalImage
	err := c.mirror.Update(keyImages, &images, func() error {
		img := findLocal(images, imageID)
		if img == nil {
			return &APIError{Status: 404, Message: "not found"}
		}
		img.Comments = append(img.Comments, LocalComment{
			ID:        time.Now().UnixMilli(),
			User:      user,
			Text:      text,
			CreatedAt: time.Now(),
		})
		count = int64(len(img.Comments))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Client) editImageLocal(imageID string, in EditInput) error {
	var images []LocalImage
	return c.mirror.Update(keyImages, &images, func() error {
		img := findLocal(images, imageID)
		if img == nil {
			return &APIError{Status: 404, Message: "not found"}
		}
		if img.Uploader != c.CurrentUser() {
			return &APIError{Status: 403, Message: "Forbidden"}
		}
		if in.Title != "" {
			img.Title = in.Title
		}
		if in.Description != "" {
			img.Description = in.Description
		}
		if in.Tags != nil {
			img.Tags = in.Tags
		}
		return nil
	})
}

func (c *Client) deleteImageLocal(imageID string) error {
	var images []LocalImage
	return c.mirror.Update(keyImages, &images, func() error {
		for i := range images {
			if strconv.FormatInt(images[i].ID, 10) == imageID {
				if images[i].Uploader != c.CurrentUser() {
					return &APIError{Status: 403, Message: "Forbidden"}
				}
				images = append(images[:i], images[i+1:]...)
				return nil
			}
		}
		return &APIError{Status: 404, Message: "not found"}
	})
}

func (c *Client) reportLocal(imageID, reason, details string) error {
	reporter := c.CurrentUser()
	if reporter == "" {
		reporter = "local"
	}
	var reports []localReport
	return c.mirror.Update(keyReports, &reports, func() error {
		reports = append(reports, localReport{
			ID:       localID(),
			ImageID:  imageID,
			Reason:   reason,
			Details:  details,
			Reporter: reporter,
		})
		return nil
	})
}

func (c *Client) followLocal(target string, follow bool) error {
	me := c.CurrentUser()
	if me == "" {
		me = "local"
	}
	var follows []followRecord
	return c.mirror.Update(keyFollows, &follows, func() error {
		var rec *followRecord
		for i := range follows {
			if follows[i].User == me {
				rec = &follows[i]
				break
			}
		}
		if rec == nil {
			follows = append(follows, followRecord{User: me})
			rec = &follows[len(follows)-1]
		}
		if follow {
			for _, f := range rec.Following {
				if f == target {
					return nil
				}
			}
			rec.Following = append(rec.Following, target)
			return nil
		}
		kept := rec.Following[:0]
		for _, f := range rec.Following {
			if f != target {
				kept = append(kept, f)
			}
		}
		rec.Following = kept
		return nil
	})
}

// Following lists who the acting user follows in the mirror.
func (c *Client) Following() ([]string, error) {
	me := c.CurrentUser()
	if me == "" {
		me = "local"
	}
	var follows []followRecord
	if _, err := c.mirror.Get(keyFollows, &follows); err != nil {
		return nil, err
	}
	for _, rec := range follows {
		if rec.User == me {
			return rec.Following, nil
		}
	}
	return nil, nil
}

func (c *Client) incrementViewLocal(imageID string) error {
	var images []LocalImage
	return c.mirror.Update(keyImages, &images, func() error {
		if img := findLocal(images, imageID); img != nil {
			img.Views++
		}
		return nil
	})
}

func (c *Client) trendingLocal(limit int) ([]model.ImageSummary, error) {
	if limit <= 0 {
		limit = 12
	}
	var images []LocalImage
	if _, err := c.mirror.Get(keyImages, &images); err != nil {
		return nil, err
	}
	sort.SliceStable(images, func(i, j int) bool {
		return trendingScore(images[i]) > trendingScore(images[j])
	})
	if limit < len(images) {
		images = images[:limit]
	}
	return c.summarizeLocal(images), nil
}

func trendingScore(img LocalImage) float64 {
	return float64(img.Likes) + math.Sqrt(float64(img.Views)) +
		float64(img.CreatedAt.UnixMilli())/1e12
}

// SearchImages is local-only: a case-insensitive substring match over title,
// description and joined tags. It never attempts the remote path.
func (c *Client) SearchImages(q string) ([]LocalImage, error) {
	var images []LocalImage
	if _, err := c.mirror.Get(keyImages, &images); err != nil {
		return nil, err
	}
	if q == "" {
		return images, nil
	}
	q = strings.ToLower(q)
	matched := []LocalImage{}
	for _, img := range images {
		if strings.Contains(strings.ToLower(img.Title), q) ||
			strings.Contains(strings.ToLower(img.Description), q) ||
			strings.Contains(strings.ToLower(strings.Join(img.Tags, " ")), q) {
			matched = append(matched, img)
		}
	}
	return matched, nil
}

// PushNotification prepends to the local notification feed.
func (c *Client) PushNotification(title, body, url string) error {
	var nots []notification
	return c.mirror.Update(keyNotifs, &nots, func() error {
		nots = append([]notification{{
			ID:    localID(),
			Title: title,
			Body:  body,
			URL:   url,
			At:    time.Now(),
		}}, nots...)
		return nil
	})
}

// PushActivity prepends to the local activity log.
func (c *Client) PushActivity(text string) error {
	var act []activityEntry
	return c.mirror.Update(keyActivity, &act, func() error {
		act = append([]activityEntry{{TS: time.Now(), Text: text}}, act...)
		return nil
	})
}

func (c *Client) recordActivity(text string) {
	if err := c.PushActivity(text); err != nil {
		c.log.Warn("failed to record activity", "error", err)
	}
}

func (c *Client) summarizeLocal(images []LocalImage) []model.ImageSummary {
	me := c.CurrentUser()
	out := make([]model.ImageSummary, 0, len(images))
	for _, img := range images {
		out = append(out, model.ImageSummary{
			ID:        strconv.FormatInt(img.ID, 10),
			Title:     img.Title,
			Uploader:  img.Uploader,
			ImageURL:  img.ImageURL,
			Likes:     img.Likes,
			Comments:  len(img.Comments),
			IsOwner:   img.Uploader == me && me != "",
			Timestamp: img.CreatedAt,
		})
	}
	return out
}

func findLocal(images []LocalImage, imageID string) *LocalImage {
	for i := range images {
		if strconv.FormatInt(images[i].ID, 10) == imageID {
			return &images[i]
		}
	}
	return nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
