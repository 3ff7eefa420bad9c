package cache

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/accessd/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
	fx.Provide(NewAccessCache),
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewAccessCache(client *redis.Client, log *zap.Logger) AccessCache {
	if client == nil {
		log.Info("access cache using process memory")
		return NewMemoryAccessCache(defaultAccessTTL)
	}
	return NewRedisAccessCache(client, defaultAccessTTL, log)
}
