package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// AttemptTracker counts failed processing attempts per event key.
type AttemptTracker interface {
	// Increment records one more failed attempt and returns the new count.
	Increment(ctx context.Context, key string) (int, error)
	// Clear forgets the key. Called on success and after dead-lettering.
	Clear(ctx context.Context, key string) error
	// Count returns the current attempt count for key.
	Count(ctx context.Context, key string) (int, error)
}

// MemoryAttemptTracker keeps counters in process memory. Counts are lost on restart.
type MemoryAttemptTracker struct {
	mu       sync.Mutex
	attempts map[string]int
}

// NewMemoryAttemptTracker returns an empty in-process tracker.
func NewMemoryAttemptTracker() *MemoryAttemptTracker {
	return &MemoryAttemptTracker{attempts: make(map[string]int)}
}

func (t *MemoryAttemptTracker) Increment(_ context.Context, key string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[key]++
	return t.attempts[key], nil
}

func (t *MemoryAttemptTracker) Clear(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, key)
	return nil
}

func (t *MemoryAttemptTracker) Count(_ context.Context, key string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[key], nil
}

// Len reports how many keys currently hold a counter.
func (t *MemoryAttemptTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.attempts)
}

// DefaultAttemptsHash is the Redis hash holding durable attempt counters.
const DefaultAttemptsHash = "fingraph.sync.attempts"

// RedisAttemptTracker stores counters in a Redis hash so retry budgets survive restarts.
type RedisAttemptTracker struct {
	client *redis.Client
	hash   string
}

// NewRedisAttemptTracker builds a tracker over client. An empty hash uses DefaultAttemptsHash.
func NewRedisAttemptTracker(client *redis.Client, hash string) *RedisAttemptTracker {
	if hash == "" {
		hash = DefaultAttemptsHash
	}
	return &RedisAttemptTracker{client: client, hash: hash}
}

func (t *RedisAttemptTracker) Increment(ctx context.Context, key string) (int, error) {
	n, err := t.client.HIncrBy(ctx, t.hash, key, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempts for %s: %w", key, err)
	}
	return int(n), nil
}

func (t *RedisAttemptTracker) Clear(ctx context.Context, key string) error {
	if err := t.client.HDel(ctx, t.hash, key).Err(); err != nil {
		return fmt.Errorf("clear attempts for %s: %w", key, err)
	}
	return nil
}

func (t *RedisAttemptTracker) Count(ctx context.Context, key string) (int, error) {
	n, err := t.client.HGet(ctx, t.hash, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read attempts for %s: %w", key, err)
	}
	return n, nil
}
