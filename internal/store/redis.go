package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmr-tortoise/portjar/internal/logger"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr        string        // ex: "localhost:6379"
	Username    string        // optional
	Password    string        // optional
	DB          int           // Redis DB number
	Key         string        // key holding the jar text
	DialTimeout time.Duration // also bounds the initial ping
}

// RedisStore keeps the jar text under a single redis key.
type RedisStore struct {
	client *redis.Client
	key    string
	log    logger.Logger
}

// OpenRedis connects and pings the server once.
func OpenRedis(ctx context.Context, opts RedisOptions, log logger.Logger) (*RedisStore, error) {
	if opts.Key == "" {
		return nil, errors.New("redis key is empty")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Error("redis unavailable", logger.String("addr", opts.Addr), logger.Error(err))
		return nil, fmt.Errorf("redis unavailable at %s: %w", opts.Addr, err)
	}
	log.Debug("connected to redis", logger.String("addr", opts.Addr), logger.String("key", opts.Key))

	return NewRedisStore(client, opts.Key, log), nil
}

// NewRedisStore wraps an existing client without pinging it.
func NewRedisStore(client *redis.Client, key string, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, log: log}
}

// Load fetches the jar text. A missing key is an empty jar.
func (s *RedisStore) Load(ctx context.Context) (string, error) {
	text, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get jar: %w", err)
	}
	return text, nil
}

// Save overwrites the key with text. The key never expires.
func (s *RedisStore) Save(ctx context.Context, text string) error {
	if err := s.client.Set(ctx, s.key, text, 0).Err(); err != nil {
		return fmt.Errorf("failed to save jar: %w", err)
	}
	s.log.Debug("jar saved to redis", logger.String("key", s.key), logger.Int("bytes", len(text)))
	return nil
}

// Close closes the underlying client, including one passed to
// NewRedisStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
