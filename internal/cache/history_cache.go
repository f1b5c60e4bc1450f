package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

const historyGenerationKey = "rag:history:gen"

// HistoryCache caches rendered query history pages. Pages are keyed by a
// generation number; Invalidate bumps it so every cached page goes stale at
// once and expires through its TTL.
type HistoryCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewHistoryCache(client *redisv9.Client, ttl time.Duration) *HistoryCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &HistoryCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *HistoryCache) GetPage(ctx context.Context, page, size int, dest any) (bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, pageKey(gen, page, size)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get history page failed: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached history page failed: %w", err)
	}
	return true, nil
}

func (c *HistoryCache) SetPage(ctx context.Context, page, size int, value any) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal history page failed: %w", err)
	}
	if err := c.client.Set(ctx, pageKey(gen, page, size), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set history page failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, historyGenerationKey).Err(); err != nil {
		return fmt.Errorf("redis bump history generation failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, historyGenerationKey).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get history generation failed: %w", err)
	}
	return gen, nil
}

func pageKey(gen int64, page, size int) string {
	return fmt.Sprintf("rag:history:%d:%d:%d", gen, page, size)
}
