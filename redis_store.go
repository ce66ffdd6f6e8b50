package spacetraveling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "spacetraveling:page:"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Retention expires snapshots after this long. Zero keeps them.
	Retention time.Duration
}

// RedisStore keeps page snapshots in Redis so several instances can share
// regenerated pages.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

type redisSnapshot struct {
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client, retention: opts.Retention}, nil
}

// Load returns the snapshot stored under key.
func (s *RedisStore) Load(ctx context.Context, key string) (Page, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, err
	}
	var snap redisSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Page{}, false, fmt.Errorf("snapshot %s: %w", key, err)
	}
	return Page{Body: snap.Body, ContentType: snap.ContentType, GeneratedAt: snap.GeneratedAt}, true, nil
}

// Save stores the snapshot under key.
func (s *RedisStore) Save(ctx context.Context, key string, p Page) error {
	raw, err := json.Marshal(redisSnapshot{Body: p.Body, ContentType: p.ContentType, GeneratedAt: p.GeneratedAt})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+key, raw, s.retention).Err()
}

// Delete removes the snapshot under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Keys lists every stored key, sorted.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
