package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/picshare/picshare/internal/model"

	"github.com/redis/go-redis/v9"
)

// Key scheme:
//
//	user:{id}              user document
//	user:email:{email}     email -> user id
//	user:{id}:images       set of image ids
//	user:{id}:following    set of followed usernames
//	image:{id}             image document (scalars only)
//	image:{id}:likedby     set of user ids
//	image:{id}:comments    list of comment documents
//	gallery:created        zset, score = created unix milli
//	image:views            zset, score = view count
//	image:trending         zset, score = trending score
//	reports                list of report documents
type Client struct {
	*redis.Client
}

func NewClient(addr, password string, db, poolSize int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	slog.Info("Connected to Redis")
	return &Client{client}, nil
}

func (c *Client) SaveUser(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fmt.Sprintf("user:%s", user.ID), data, 0)
		pipe.Set(ctx, fmt.Sprintf("user:email:%s", user.Email), user.ID, 0)
		return nil
	})
	return err
}

func (c *Client) GetUser(ctx context.Context, userID string) (*model.User, error) {
	data, err := c.Get(ctx, fmt.Sprintf("user:%s", userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	id, err := c.Get(ctx, fmt.Sprintf("user:email:%s", email)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.GetUser(ctx, id)
}

func (c *Client) SaveImage(ctx context.Context, img *model.Image) error {
	data, err := json.Marshal(img)
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fmt.Sprintf("image:%s", img.ID), data, 0)
		pipe.SAdd(ctx, fmt.Sprintf("user:%s:images", img.Uploader), img.ID)
		pipe.ZAdd(ctx, "gallery:created", redis.Z{
			Score:  float64(img.CreatedAt.UnixMilli()),
			Member: img.ID,
		})
		return nil
	})
	return err
}

// GetImage assembles the full record: document plus the like set, the comment
// list and the view counter.
func (c *Client) GetImage(ctx context.Context, imageID string) (*model.Image, error) {
	data, err := c.Get(ctx, fmt.Sprintf("image:%s", imageID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var img model.Image
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, err
	}

	likedBy, err := c.SMembers(ctx, fmt.Sprintf("image:%s:likedby", imageID)).Result()
	if err != nil {
		return nil, err
	}
	img.LikedBy = likedBy
	img.Likes = int64(len(likedBy))

	raw, err := c.LRange(ctx, fmt.Sprintf("image:%s:comments", imageID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	img.Comments = make([]model.Comment, 0, len(raw))
	for _, item := range raw {
		var comment model.Comment
		if err := json.Unmarshal([]byte(item), &comment); err != nil {
			continue
		}
		img.Comments = append(img.Comments, comment)
	}

	views, err := c.ZScore(ctx, "image:views", imageID).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	img.Views = int64(views)

	return &img, nil
}

// GalleryIDs returns image ids newest first, starting at offset.
func (c *Client) GalleryIDs(ctx context.Context, offset, count int64) ([]string, error) {
	return c.ZRevRange(ctx, "gallery:created", offset, offset+count-1).Result()
}

func (c *Client) AllGalleryIDs(ctx context.Context) ([]string, error) {
	return c.ZRevRange(ctx, "gallery:created", 0, -1).Result()
}

// toggleLikeScript flips membership in the like set and returns the flag and
// the resulting cardinality in one atomic step, so the count is always
// derived from the set and concurrent toggles cannot interleave.
var toggleLikeScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  redis.call('SREM', KEYS[1], ARGV[1])
else
  redis.call('SADD', KEYS[1], ARGV[1])
end
return redis.call('SCARD', KEYS[1])
`)

func (c *Client) ToggleLike(ctx context.Context, imageID, userID string) (int64, error) {
	key := fmt.Sprintf("image:%s:likedby", imageID)
	res, err := toggleLikeScript.Run(ctx, c.Client, []string{key}, userID).Int64()
	if err != nil {
		return 0, err
	}
	return res, nil
}

// AddComment appends and returns the new comment count (RPush reports the
// resulting list length, so this is a single atomic write).
func (c *Client) AddComment(ctx context.Context, imageID string, comment *model.Comment) (int64, error) {
	data, err := json.Marshal(comment)
	if err != nil {
		return 0, err
	}
	return c.RPush(ctx, fmt.Sprintf("image:%s:comments", imageID), data).Result()
}

func (c *Client) DeleteImage(ctx context.Context, img *model.Image) error {
	_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx,
			fmt.Sprintf("image:%s", img.ID),
			fmt.Sprintf("image:%s:likedby", img.ID),
			fmt.Sprintf("image:%s:comments", img.ID),
		)
		pipe.ZRem(ctx, "gallery:created", img.ID)
		pipe.ZRem(ctx, "image:views", img.ID)
		pipe.ZRem(ctx, "image:trending", img.ID)
		pipe.SRem(ctx, fmt.Sprintf("user:%s:images", img.Uploader), img.ID)
		return nil
	})
	return err
}

func (c *Client) IncrementView(ctx context.Context, imageID string) (int64, error) {
	views, err := c.ZIncrBy(ctx, "image:views", 1, imageID).Result()
	if err != nil {
		return 0, err
	}
	return int64(views), nil
}

func (c *Client) SetTrendingScore(ctx context.Context, imageID string, score float64) error {
	return c.ZAdd(ctx, "image:trending", redis.Z{Score: score, Member: imageID}).Err()
}

func (c *Client) TrendingIDs(ctx context.Context, limit int64) ([]string, error) {
	return c.ZRevRange(ctx, "image:trending", 0, limit-1).Result()
}

func (c *Client) Follow(ctx context.Context, userID, target string) error {
	return c.SAdd(ctx, fmt.Sprintf("user:%s:following", userID), target).Err()
}

func (c *Client) Unfollow(ctx context.Context, userID, target string) error {
	return c.SRem(ctx, fmt.Sprintf("user:%s:following", userID), target).Err()
}

func (c *Client) Following(ctx context.Context, userID string) ([]string, error) {
	return c.SMembers(ctx, fmt.Sprintf("user:%s:following", userID)).Result()
}

type Report struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"image_id"`
	Reporter  string    `json:"reporter"`
	Reason    string    `json:"reason"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Client) AddReport(ctx context.Context, report *Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.RPush(ctx, "reports", data).Err()
}

// SearchImages scans the gallery newest first and matches the query against
// title, description and tags. Linear, same trade-off the rest of the store
// makes; a search module would take over at scale.
func (c *Client) SearchImages(ctx context.Context, query string, offset, limit int) ([]*model.Image, error) {
	ids, err := c.AllGalleryIDs(ctx)
	if err != nil {
		return nil, err
	}
	matched := []*model.Image{}
	for _, id := range ids {
		img, err := c.GetImage(ctx, id)
		if err != nil || img == nil {
			continue
		}
		if containsQuery(img.Title, query) || containsQuery(img.Description, query) || containsTags(img.Tags, query) {
			matched = append(matched, img)
		}
	}
	if offset < 0 {
		offset = 0
	}
	start := offset
	end := offset + limit
	if start >= len(matched) {
		return []*model.Image{}, nil
	}
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func containsQuery(str, query string) bool {
	return strings.Contains(strings.ToLower(str), strings.ToLower(query))
}

func containsTags(tags []string, query string) bool {
	query = strings.ToLower(query)
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
