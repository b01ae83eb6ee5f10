package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vortexx/internal/observability"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every mirror key in Redis.
const KeyPrefix = "vortexx:"

type metricsHook struct{}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.MirrorErrorRate.WithLabelValues("redis_" + cmd.Name()).Inc()
		}
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.MirrorErrorRate.WithLabelValues("redis_pipeline").Inc()
		}
		return err
	}
}

// NewRedisClient connects to addr, which is either host:port or a redis:// URL,
// and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("mirror: invalid REDIS_URL %q: %w", addr, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	client.AddHook(metricsHook{})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mirror: redis ping: %w", err)
	}
	return client, nil
}

// RedisStore keeps values as JSON strings under KeyPrefix, without expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client so the rate limiter can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (s *RedisStore) Set(ctx context.Context, key string, v any) error {
	return s.SetTTL(ctx, key, v, 0)
}

// SetTTL leaves expiry to redis.
func (s *RedisStore) SetTTL(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, KeyPrefix+key, data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, KeyPrefix+key).Err()
}

func (s *RedisStore) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
