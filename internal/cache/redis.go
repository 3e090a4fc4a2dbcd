package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "spires:completion:"

// RedisStore shares the completion cache through Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL (redis://host:port/db). A zero ttl keeps
// entries forever.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(userPrompt, systemPrompt string) string {
	sum := sha256.Sum256([]byte(systemPrompt + "\x00" + userPrompt))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, userPrompt, systemPrompt string) (string, error) {
	val, err := s.client.Get(ctx, redisKey(userPrompt, systemPrompt)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cached completion: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		s.client.Del(ctx, redisKey(userPrompt, systemPrompt))
		return "", ErrNotFound
	}
	return e.Payload, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, userPrompt, systemPrompt, payload string) error {
	data, err := json.Marshal(Entry{
		UserPrompt:   userPrompt,
		SystemPrompt: systemPrompt,
		Payload:      payload,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return s.client.Set(ctx, redisKey(userPrompt, systemPrompt), data, s.ttl).Err()
}

// Entries implements Store by scanning the key space.
func (s *RedisStore) Entries(ctx context.Context, search string) ([]Entry, error) {
	var entries []Entry
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read cache entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			continue
		}
		if e.Matches(search) {
			entries = append(entries, e)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache: %w", err)
	}
	return entries, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
