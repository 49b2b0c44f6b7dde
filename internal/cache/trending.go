package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/picshare/picshare/internal/redis"
	"github.com/picshare/picshare/internal/service"
)

// StartTrendingRefresh recomputes the trending ranking on an interval. The
// score derives from the live like set, the view counter and the creation
// time, so the zset is a pure projection and safe to rebuild at any moment.
func StartTrendingRefresh(ctx context.Context, store *redis.Client, interval int) {
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresh(ctx, store); err != nil {
				slog.Error("Failed to refresh trending", "error", err)
			}
		}
	}
}

func refresh(ctx context.Context, store *redis.Client) error {
	ids, err := store.AllGalleryIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		img, err := store.GetImage(ctx, id)
		if err != nil || img == nil {
			continue
		}
		score := service.TrendingScore(img.Likes, img.Views, img.CreatedAt)
		if err := store.SetTrendingScore(ctx, id, score); err != nil {
			return err
		}
	}
	slog.Info("Refreshed trending ranking", "images", len(ids))
	return nil
}
