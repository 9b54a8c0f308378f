package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis stores memory values as JSON strings with native key expiry and
// namespace logs as lists.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "kernel:memory:"
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) kvKey(namespace, key string) string {
	return r.prefix + "kv:" + namespace + ":" + key
}

func (r *Redis) logKey(namespace string) string {
	return r.prefix + "log:" + namespace
}

func (r *Redis) Read(ctx context.Context, namespace, key string) (any, error) {
	if err := validate(namespace, key); err != nil {
		return nil, err
	}
	raw, err := r.client.Get(ctx, r.kvKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: memory %s/%s", domain.ErrNotFound, namespace, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode memory value: %w", err)
	}
	return v, nil
}

func (r *Redis) Write(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode memory value: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.kvKey(namespace, key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *Redis) AppendLog(ctx context.Context, namespace string, record map[string]any) error {
	if namespace == "" {
		return fmt.Errorf("%w: memory namespace is required", domain.ErrValidation)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode memory log: %w", err)
	}
	if err := r.client.RPush(ctx, r.logKey(namespace), raw).Err(); err != nil {
		return fmt.Errorf("redis rpush failed: %w", err)
	}
	return nil
}

func (r *Redis) Logs(ctx context.Context, namespace string, limit int) ([]map[string]any, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	items, err := r.client.LRange(ctx, r.logKey(namespace), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		var rec map[string]any
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode memory log: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
