package model

import "time"

// Image is the full image record. Likes, LikedBy and Comments live in their
// own redis structures; the stored document carries only the scalar fields.
type Image struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Uploader     string    `json:"uploader"`      // user id
	UploaderName string    `json:"uploader_name"` // denormalized display name
	ImageURL     string    `json:"image_url"`
	ObjectKey    string    `json:"object_key"`
	Tags         []string  `json:"tags,omitempty"`
	Likes        int64     `json:"likes"`
	LikedBy      []string  `json:"liked_by,omitempty"`
	Comments     []Comment `json:"comments,omitempty"`
	Views        int64     `json:"views"`
	CreatedAt    time.Time `json:"created_at"`
}

// Comment is append-only; there is no edit or delete.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageSummary is the gallery projection of an Image.
type ImageSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Uploader  string    `json:"uploader"` // display name
	ImageURL  string    `json:"imageUrl"`
	Likes     int64     `json:"likes"`
	Comments  int       `json:"comments"`
	IsOwner   bool      `json:"isOwner"`
	Timestamp time.Time `json:"timestamp"`
}
