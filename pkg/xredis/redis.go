package xredis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis dials the Redis instance backing the KV store, the seen-hash
// dedup set, and the master-election lock, panicking if it can't be
// reached at startup — every one of watcher-service's durable state
// components depends on it, so there is nothing useful to do without it.
func NewRedis(c *Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
	})

	// fail fast at startup rather than surface a confusing error on the
	// first scheduler tick
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		panic("failed to connect redis: " + err.Error())
	}

	return rdb
}
