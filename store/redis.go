package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisMaster implements Master on top of a single Redis server.
type RedisMaster struct {
	client *redis.Client
	locker *redislock.Client
}

// NewRedisMaster wraps an existing client, the caller keeps ownership of its socket timeouts.
func NewRedisMaster(client *redis.Client) *RedisMaster {
	return &RedisMaster{
		client: client,
		locker: redislock.New(client),
	}
}

// Timeouts are the per-master socket timeouts. Zero values keep the go-redis defaults.
type Timeouts struct {
	Dial  time.Duration
	Read  time.Duration
	Write time.Duration
}

// Dial creates a master from a redis:// or rediss:// URL.
func Dial(url string, timeouts Timeouts) (*RedisMaster, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse master url %q: %w", url, err)
	}
	if timeouts.Dial > 0 {
		opts.DialTimeout = timeouts.Dial
	}
	if timeouts.Read > 0 {
		opts.ReadTimeout = timeouts.Read
	}
	if timeouts.Write > 0 {
		opts.WriteTimeout = timeouts.Write
	}
	return NewRedisMaster(redis.NewClient(opts)), nil
}

func (m *RedisMaster) Name() string {
	return m.client.Options().Addr
}

func (m *RedisMaster) Client() *redis.Client {
	return m.client
}

func (m *RedisMaster) Get(ctx context.Context, key string) (string, error) {
	value, err := m.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return value, nil
}

// SetNX stores a lease through redislock when ttl is positive, the value being
// the lease token. Without ttl it is a plain SETNX.
func (m *RedisMaster) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return m.client.SetNX(ctx, key, value, 0).Result()
	}
	_, err := m.locker.Obtain(ctx, key, ttl, &redislock.Options{
		Token: value,
		// A single SET NX PX round trip, retries belong to the quorum round
		RetryStrategy: redislock.NoRetry(),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *RedisMaster) Del(ctx context.Context, key string) (int64, error) {
	return m.client.Del(ctx, key).Result()
}

func (m *RedisMaster) Eval(ctx context.Context, script *Script, keys []string, args ...interface{}) (interface{}, error) {
	reply, err := script.script.Run(ctx, m.client, keys, args...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("script %s: %w", script.Name(), err)
	}
	return reply, nil
}

func (m *RedisMaster) Load(ctx context.Context, scripts ...*Script) error {
	for _, script := range scripts {
		if err := script.script.Load(ctx, m.client).Err(); err != nil {
			return fmt.Errorf("load script %s: %w", script.Name(), err)
		}
	}
	return nil
}

func (m *RedisMaster) Close() error {
	return m.client.Close()
}
