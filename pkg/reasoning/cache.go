package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Cache stores parsed reports by prompt. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*types.SafetyAnalysisReport, error)
	Set(ctx context.Context, key string, report *types.SafetyAnalysisReport) error
}

// CacheKey derives the cache key for a provider, model and rendered prompt
func CacheKey(provider, model, prompt string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + model + "\x00" + prompt))
	return "reasoning:" + hex.EncodeToString(sum[:])
}

// RedisCache keeps reports in redis with a fixed TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing redis client
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (*types.SafetyAnalysisReport, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var report types.SafetyAnalysisReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, report *types.SafetyAnalysisReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
