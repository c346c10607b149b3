package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/fingraph/internal/deadletter"
	"github.com/vanshika/fingraph/internal/domain"
)

func TestMemoryAttemptTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryAttemptTracker()

	n, err := tracker.Increment(ctx, "transaction:1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = tracker.Increment(ctx, "transaction:1")
	assert.Equal(t, 2, n)
	_, _ = tracker.Increment(ctx, "goal:1")
	assert.Equal(t, 2, tracker.Len())

	require.NoError(t, tracker.Clear(ctx, "transaction:1"))
	count, err := tracker.Count(ctx, "transaction:1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1, tracker.Len())
}

func newRedisTracker(t *testing.T) (*RedisAttemptTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisAttemptTracker(client, ""), mr
}

func TestRedisAttemptTracker(t *testing.T) {
	ctx := context.Background()
	tracker, mr := newRedisTracker(t)

	n, err := tracker.Increment(ctx, "budget:b-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = tracker.Increment(ctx, "budget:b-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "2", mr.HGet(DefaultAttemptsHash, "budget:b-1"))

	count, err := tracker.Count(ctx, "budget:b-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, tracker.Clear(ctx, "budget:b-1"))
	count, err = tracker.Count(ctx, "budget:b-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisAttemptTracker_SurvivesConsumerRestart(t *testing.T) {
	ctx := context.Background()
	tracker, mr := newRedisTracker(t)
	// Two failures recorded before a restart.
	mr.HSet(DefaultAttemptsHash, "transaction:tx-1", "2")

	store := newMemoryStore()
	store.failNext(-1, errors.New("connection refused"))
	publisher := &recordingPublisher{}
	sleeps := &sleepRecorder{}
	c := New(KindTransaction, NewMapper(store), deadletter.New(publisher),
		WithTracker(tracker), WithSleep(sleeps.sleep))

	payload := eventPayload(t, KindTransaction, EventCreated, "tx-1", TransactionPayload{Amount: ptr(1.0)})
	require.Equal(t, OutcomeDeadLettered, c.Handle(ctx, transactionTopic, payload))

	envs := publisher.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, 3, envs[0].AttemptCount)
	assert.Empty(t, sleeps.delays)
	assert.False(t, mr.Exists(DefaultAttemptsHash))
}

func TestConsumer_FallsBackToLocalCountWhenTrackerFails(t *testing.T) {
	tracker, mr := newRedisTracker(t)
	mr.Close()

	store := newMemoryStore()
	store.failNext(-1, errors.New("connection refused"))
	publisher := &recordingPublisher{}
	c := New(KindTransaction, NewMapper(store), deadletter.New(publisher),
		WithTracker(tracker), WithSleep((&sleepRecorder{}).sleep))

	payload := eventPayload(t, KindTransaction, EventCreated, "tx-2", TransactionPayload{Amount: ptr(1.0)})
	require.Equal(t, OutcomeDeadLettered, c.Handle(context.Background(), transactionTopic, payload))
	envs := publisher.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, 3, envs[0].AttemptCount)
	assert.Nil(t, store.node(domain.NodeTypeTransaction, "tx-2"))
}
