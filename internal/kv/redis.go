package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"zanowatcher.com/pkg/xredis"
)

// RedisStore is the reference Store implementation, grounded on the
// teacher's pkg/xredis client and Redis-Streams scanner: hashes back Job
// and Ledger records, plain strings back Status and Seen.
type RedisStore struct {
	c *redis.Client
}

func NewRedisStore(cfg *xredis.Config) *RedisStore {
	return &RedisStore{c: xredis.NewRedis(cfg)}
}

// NewRedisStoreFromClient wraps an already-constructed client without
// going through xredis.NewRedis's startup ping.
func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{c: c}
}

func (s *RedisStore) Scan(ctx context.Context, pattern string, batchSize int64, cursor string) (string, []string, error) {
	var cur uint64
	if cursor != "" && cursor != "0" {
		var err error
		cur, err = parseCursor(cursor)
		if err != nil {
			return "0", nil, &TransientError{Op: "scan", Err: err}
		}
	}

	keys, next, err := s.c.Scan(ctx, cur, pattern, batchSize).Result()
	if err != nil {
		return "0", nil, &TransientError{Op: "scan", Err: err}
	}
	return formatCursor(next), keys, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.c.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, &TransientError{Op: "hgetall", Err: err}
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.c.HSet(ctx, key, args...).Err(); err != nil {
		return &TransientError{Op: "hset", Err: err}
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.c.Expire(ctx, key, ttl).Err(); err != nil {
		return &TransientError{Op: "expire", Err: err}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &TransientError{Op: "get", Err: err}
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return &TransientError{Op: "set", Err: err}
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.c.Exists(ctx, key).Result()
	if err != nil {
		return false, &TransientError{Op: "exists", Err: err}
	}
	return n > 0, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.c.Del(ctx, key).Err(); err != nil {
		return &TransientError{Op: "del", Err: err}
	}
	return nil
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		// fail-open: a malformed blob reads as absent, per the Status
		// read contract (ParseError -> treated as absent).
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	body, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, body, ttl)
}
