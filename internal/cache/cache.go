// Package cache provides a Redis-backed read-through cache for question
// snapshots. The cache is a best-effort accelerator: it is never a source of
// truth, and every failure degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"qbank/api/internal/question"
)

// Key returns the cache key for a question snapshot. Version 0 addresses the
// current canonical version; pinned versions get their own immutable key.
func Key(questionID string, version int) string {
	if version > 0 {
		return fmt.Sprintf("question-version:%s:%d", questionID, version)
	}
	return "question:" + questionID
}

// Snapshots is a Redis-backed snapshot cache.
type Snapshots struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL string, ttl time.Duration, log zerolog.Logger) (*Snapshots, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl, log), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration, log zerolog.Logger) *Snapshots {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Snapshots{client: client, ttl: ttl, log: log}
}

// GetMulti fetches cached snapshots for the given keys. Absent keys are
// omitted from the result; undecodable entries are dropped and logged.
func (s *Snapshots) GetMulti(ctx context.Context, keys []string) (map[string]question.Question, error) {
	if len(keys) == 0 {
		return map[string]question.Question{}, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	found := make(map[string]question.Question, len(keys))
	for i, value := range values {
		if value == nil {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var q question.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			s.log.Warn().Str("key", keys[i]).Err(err).Msg("cache: dropping undecodable snapshot")
			continue
		}
		found[keys[i]] = q
	}
	return found, nil
}

// SetMulti stores snapshots under their keys with the configured TTL.
func (s *Snapshots) SetMulti(ctx context.Context, entries map[string]question.Question) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for key, q := range entries {
		encoded, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal snapshot %s: %w", key, err)
		}
		pipe.Set(ctx, key, encoded, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate removes the given keys.
func (s *Snapshots) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *Snapshots) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Snapshots) Close() error {
	return s.client.Close()
}
