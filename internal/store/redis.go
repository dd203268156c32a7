package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs Store with a Redis server. All counter and membership
// mutations map to single Redis commands, which is what gives the engine
// its atomicity guarantees under concurrent load.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreFromClient wraps an existing client. Test use.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// wrapErr maps transport failures to ErrUnavailable so callers can apply
// their fail-open/fail-closed policy without knowing about Redis.
func wrapErr(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrapErr(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	return ok, wrapErr(err)
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	if ttl > 0 {
		// NX: only set the TTL when the key has none, i.e. the INCR above
		// created it. Keeps the window anchored to the first request.
		if err := s.client.ExpireNX(ctx, key, ttl).Err(); err != nil {
			return n, wrapErr(err)
		}
	}
	return n, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return wrapErr(s.client.Del(ctx, keys...).Err())
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.client.SAdd(ctx, key, args...).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr(s.client.SRem(ctx, key, args...).Err())
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	return ok, wrapErr(err)
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	return members, wrapErr(err)
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return wrapErr(s.client.HSet(ctx, key, field, value).Err())
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err)
	}
	return v, true, nil
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	return wrapErr(s.client.HDel(ctx, key, fields...).Err())
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	return m, wrapErr(err)
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	f, err := s.client.HIncrByFloat(ctx, key, field, delta).Result()
	return f, wrapErr(err)
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return wrapErr(s.client.LPush(ctx, key, args...).Err())
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	out, err := s.client.LRange(ctx, key, start, stop).Result()
	return out, wrapErr(err)
}

func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return wrapErr(s.client.LTrim(ctx, key, start, stop).Err())
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrapErr(s.client.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapErr(s.client.Ping(ctx).Err())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
