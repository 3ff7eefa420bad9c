package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	accessdomain "github.com/smallbiznis/accessd/internal/access/domain"
	"go.uber.org/zap"
)

const (
	keyAccessGeneration = "accessd:access:gen"
	keyAccessUserGen    = "accessd:access:user:%s:gen"
	keyAccessUser       = "accessd:access:%d:%d:user:%s"

	// Outlives any data key so a counter never resets under a live entry.
	userGenerationTTL = 24 * time.Hour
)

// KEYS: global generation, user generation, data hash.
// ARGV: expected global, expected user, purpose, payload, ttl in ms.
const accessSetScript = `
local global = redis.call("GET", KEYS[1]) or "0"
local user = redis.call("GET", KEYS[2]) or "0"
if global ~= ARGV[1] or user ~= ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[3], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[3], ARGV[5])
return 1
`

type redisAccessCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
	script *redis.Script
}

// NewRedisAccessCache shares resolved access across replicas. Each user owns one
// hash keyed by purpose, addressed by the global and per-user generations.
// Writes are dropped when either generation moved since the read.
// Redis failures degrade to cache misses.
func NewRedisAccessCache(client *redis.Client, ttl time.Duration, log *zap.Logger) AccessCache {
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &redisAccessCache{
		client: client,
		ttl:    ttl,
		log:    log.Named("access.cache"),
		script: redis.NewScript(accessSetScript),
	}
}

func (c *redisAccessCache) version(ctx context.Context, userID snowflake.ID) (Version, error) {
	values, err := c.client.MGet(ctx, keyAccessGeneration, userGenKey(userID)).Result()
	if err != nil {
		return Version{}, err
	}
	global, err := parseGeneration(values[0])
	if err != nil {
		return Version{}, err
	}
	user, err := parseGeneration(values[1])
	if err != nil {
		return Version{}, err
	}
	return Version{Global: global, User: user}, nil
}

func (c *redisAccessCache) Get(ctx context.Context, userID snowflake.ID, purpose string) ([]accessdomain.AccessibleStore, Version, bool) {
	version, err := c.version(ctx, userID)
	if err != nil {
		c.log.Warn("access cache generation lookup failed", zap.Error(err))
		return nil, version, false
	}
	raw, err := c.client.HGet(ctx, dataKey(version, userID), normalizePurpose(purpose)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("access cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return nil, version, false
	}
	var stores []accessdomain.AccessibleStore
	if err := json.Unmarshal(raw, &stores); err != nil {
		c.log.Warn("access cache entry unreadable", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, version, false
	}
	return stores, version, true
}

func (c *redisAccessCache) Set(ctx context.Context, userID snowflake.ID, purpose string, version Version, stores []accessdomain.AccessibleStore) {
	if stores == nil {
		stores = []accessdomain.AccessibleStore{}
	}
	raw, err := json.Marshal(stores)
	if err != nil {
		return
	}
	keys := []string{keyAccessGeneration, userGenKey(userID), dataKey(version, userID)}
	written, err := c.script.Run(ctx, c.client, keys,
		strconv.FormatUint(version.Global, 10),
		strconv.FormatUint(version.User, 10),
		normalizePurpose(purpose),
		raw,
		c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.log.Warn("access cache write failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if written == 0 {
		c.log.Debug("access cache write superseded", zap.String("user_id", userID.String()))
	}
}

func (c *redisAccessCache) InvalidateUser(ctx context.Context, userID snowflake.ID) {
	key := userGenKey(userID)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, max(userGenerationTTL, 2*c.ttl))
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("access cache invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (c *redisAccessCache) InvalidateAll(ctx context.Context) {
	if err := c.client.Incr(ctx, keyAccessGeneration).Err(); err != nil {
		c.log.Warn("access cache global invalidation failed", zap.Error(err))
	}
}

func userGenKey(userID snowflake.ID) string {
	return fmt.Sprintf(keyAccessUserGen, userID.String())
}

func dataKey(version Version, userID snowflake.ID) string {
	return fmt.Sprintf(keyAccessUser, version.Global, version.User, userID.String())
}

func parseGeneration(value any) (uint64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseUint(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected generation value %T", value)
	}
}
