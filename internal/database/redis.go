package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/haitech14/miservicios-sub001/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to REDIS_ADDR. It returns nil when Redis is not
// configured or does not answer a ping; callers then run without the rank index.
func NewRedisClient(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, rank index disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	slog.Info("redis connected", "addr", cfg.RedisAddr)
	return client
}
