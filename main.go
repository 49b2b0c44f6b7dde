package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picshare/picshare/internal/api"
	"github.com/picshare/picshare/internal/auth"
	"github.com/picshare/picshare/internal/cache"
	"github.com/picshare/picshare/internal/config"
	"github.com/picshare/picshare/internal/redis"
	"github.com/picshare/picshare/internal/service"
	"github.com/picshare/picshare/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configFile, err := os.ReadFile("config/config.json")
	if err != nil {
		slog.Error("Failed to read config", "error", err)
		os.Exit(1)
	}
	var cfg config.Config
	if err := json.Unmarshal(configFile, &cfg); err != nil {
		slog.Error("Failed to parse config", "error", err)
		os.Exit(1)
	}

	store, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := storage.NewMinioStore(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey,
		cfg.S3.Bucket, cfg.S3.UseSSL, cfg.S3.PublicBaseURL)
	if err != nil {
		slog.Error("Failed to connect to object storage", "error", err)
		os.Exit(1)
	}

	authService := auth.NewAuth(cfg.JWTSecret, store)
	svc := service.New(store, blobs, cfg.MaxUploadSizeOrDefault(), logger)

	go cache.StartTrendingRefresh(context.Background(), store, cfg.TrendingRefreshInterval)

	router := api.SetupRouter(&cfg, authService, svc)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		slog.Info("Server starting on port", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
