// Package transport moves lifecycle events and dead-letter envelopes over Redis lists.
// Producers LPUSH onto a topic list and consumers BRPOP from the tail, so each list is FIFO.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one payload popped from a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Source yields messages. Receive returns (nil, nil) when no message arrived within its poll window.
type Source interface {
	Receive(ctx context.Context) (*Message, error)
}

// Publisher appends payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	URL            string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// PollTimeout bounds each BRPOP; Redis accepts whole seconds only.
	PollTimeout time.Duration
}

// RedisQueue implements Source and Publisher on Redis lists.
type RedisQueue struct {
	client      *redis.Client
	topics      []string
	pollTimeout time.Duration
}

// NewRedisQueue connects to Redis and verifies the connection with PING.
// topics are the lists Receive listens on; a publish-only queue may pass none.
func NewRedisQueue(ctx context.Context, opts RedisOptions, topics ...string) (*RedisQueue, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisQueueFromClient(client, opts.PollTimeout, topics...), nil
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(client *redis.Client, pollTimeout time.Duration, topics ...string) *RedisQueue {
	if pollTimeout < time.Second {
		pollTimeout = time.Second
	}
	return &RedisQueue{
		client:      client,
		topics:      append([]string(nil), topics...),
		pollTimeout: pollTimeout,
	}
}

// Client exposes the underlying connection for components sharing it.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

// Publish appends payload to the topic list.
func (q *RedisQueue) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errors.New("publish: topic is required")
	}
	if err := q.client.LPush(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", topic, err)
	}
	return nil
}

// Receive pops the oldest message from the first non-empty topic, waiting up to the poll timeout.
func (q *RedisQueue) Receive(ctx context.Context) (*Message, error) {
	if len(q.topics) == 0 {
		return nil, errors.New("receive: no topics configured")
	}
	result, err := q.client.BRPop(ctx, q.pollTimeout, q.topics...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pop from %v: %w", q.topics, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}
	return &Message{Topic: result[0], Payload: []byte(result[1])}, nil
}

// Len reports the number of pending messages on topic.
func (q *RedisQueue) Len(ctx context.Context, topic string) (int64, error) {
	n, err := q.client.LLen(ctx, topic).Result()
	if err != nil {
		return 0, fmt.Errorf("length of %s: %w", topic, err)
	}
	return n, nil
}

// Ping checks the connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
