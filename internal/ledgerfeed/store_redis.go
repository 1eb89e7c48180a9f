package ledgerfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key for the global feed list; per-address feeds hang off the prefix.
	feedKey           = "cardledger:feed"
	feedAddressPrefix = "cardledger:feed:addr:"
)

// RedisStore is a Redis-backed feed sink for distributed deployments where
// multiple instances share one feed. Entries are LPUSHed so LRANGE returns
// newest first.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, feedKey, payload)
	if event.From != "" {
		pipe.LPush(ctx, feedAddressPrefix+event.From, payload)
	}
	if event.To != "" && event.To != event.From {
		pipe.LPush(ctx, feedAddressPrefix+event.To, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append feed event: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Event, error) {
	return s.list(ctx, feedKey, limit)
}

func (s *RedisStore) ListByAddress(ctx context.Context, address string, limit int) ([]Event, error) {
	return s.list(ctx, feedAddressPrefix+address, limit)
}

func (s *RedisStore) list(ctx context.Context, key string, limit int) ([]Event, error) {
	raw, err := s.client.LRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode feed event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
