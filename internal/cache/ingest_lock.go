// Package cache holds the Redis-backed helpers: the per-document ingest lock
// and the query history page cache.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IngestLock is a best-effort mutual exclusion per document across
// processes. The TTL bounds how long a crashed worker can block a document.
type IngestLock struct {
	client *redisv9.Client
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[uint]string
}

func NewIngestLock(client *redisv9.Client, ttl time.Duration) *IngestLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &IngestLock{
		client: client,
		ttl:    ttl,
		tokens: make(map[uint]string),
	}
}

func (l *IngestLock) Acquire(ctx context.Context, documentID uint) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(documentID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire ingest lock failed: %w", err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.tokens[documentID] = token
	l.mu.Unlock()
	return true, nil
}

func (l *IngestLock) Release(ctx context.Context, documentID uint) error {
	l.mu.Lock()
	token, ok := l.tokens[documentID]
	delete(l.tokens, documentID)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(documentID)}, token).Err(); err != nil {
		return fmt.Errorf("redis release ingest lock failed: %w", err)
	}
	return nil
}

func lockKey(documentID uint) string {
	return fmt.Sprintf("rag:ingest:lock:%d", documentID)
}
