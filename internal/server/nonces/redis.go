package nonces

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "signerrelay:nonce:"

// redisClient is the subset of go-redis the store needs.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

type goRedisClient struct {
	client *redis.Client
}

var _ redisClient = (*goRedisClient)(nil)

func (c *goRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}

// RedisConfig configures NewRedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore shares the consumed-nonce set between relay instances. A nonce
// is claimed with a single SET NX PX, so the check and the mark cannot
// interleave with another instance.
type RedisStore struct {
	client    redisClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	c := &goRedisClient{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return newRedisStore(c, cfg.KeyPrefix), nil
}

func newRedisStore(c redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: c, keyPrefix: prefix, now: time.Now}
}

func (s *RedisStore) Consume(ctx context.Context, nonce string, until time.Time) error {
	// Redis rejects non-positive expirations; keep the mark for at least a second.
	ttl := until.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := s.client.SetNX(ctx, s.keyPrefix+nonce, 1, ttl)
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if !ok {
		return ErrConsumed
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
