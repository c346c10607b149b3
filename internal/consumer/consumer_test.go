package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/fingraph/internal/deadletter"
	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/metrics"
)

const transactionTopic = "fingraph.transactions"

type harness struct {
	store     *memoryStore
	publisher *recordingPublisher
	sleeps    *sleepRecorder
	tracker   *MemoryAttemptTracker
	metrics   *metrics.Metrics
	consumer  *Consumer
}

func newHarness(t *testing.T, kind EntityKind) *harness {
	t.Helper()
	h := &harness{
		store:     newMemoryStore(),
		publisher: &recordingPublisher{},
		sleeps:    &sleepRecorder{},
		tracker:   NewMemoryAttemptTracker(),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	policy := deadletter.New(h.publisher)
	h.consumer = New(kind, NewMapper(h.store), policy,
		WithTracker(h.tracker),
		WithMetrics(h.metrics),
		WithSleep(h.sleeps.sleep),
	)
	return h
}

func TestHandle_DuplicateCreateMergesIntoOneNode(t *testing.T) {
	h := newHarness(t, KindTransaction)
	ctx := context.Background()

	first := eventPayload(t, KindTransaction, EventCreated, "tx-1", TransactionPayload{Amount: ptr(10.0), UserID: "u-1"})
	second := eventPayload(t, KindTransaction, EventCreated, "tx-1", TransactionPayload{Amount: ptr(25.5), UserID: "u-1"})

	require.Equal(t, OutcomeApplied, h.consumer.Handle(ctx, transactionTopic, first))
	require.Equal(t, OutcomeApplied, h.consumer.Handle(ctx, transactionTopic, second))

	assert.Equal(t, 1, h.store.count(domain.NodeTypeTransaction))
	node := h.store.node(domain.NodeTypeTransaction, "tx-1")
	require.NotNil(t, node)
	amount, ok := node.FloatProperty("amount")
	require.True(t, ok)
	assert.Equal(t, 25.5, amount)
	assert.Empty(t, h.publisher.envelopes(t))
}

func TestHandle_TransientFailuresExhaustRetries(t *testing.T) {
	h := newHarness(t, KindTransaction)
	h.store.failNext(-1, errors.New("connection reset by peer"))
	payload := eventPayload(t, KindTransaction, EventCreated, "tx-9", TransactionPayload{Amount: ptr(12.0)})

	outcome := h.consumer.Handle(context.Background(), transactionTopic, payload)
	require.Equal(t, OutcomeDeadLettered, outcome)

	envs := h.publisher.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, transactionTopic, envs[0].OriginalTopic)
	assert.Equal(t, 3, envs[0].AttemptCount)
	assert.Equal(t, 3, envs[0].MaxRetries)
	assert.Contains(t, envs[0].Error.Message, "connection reset by peer")
	assert.JSONEq(t, string(payload), string(envs[0].OriginalEvent))

	assert.Equal(t, 0, h.tracker.Len())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps.delays)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.EventRetries.WithLabelValues("transaction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsProcessed.WithLabelValues("transaction", "dead_lettered")))
}

func TestHandle_RecoversAfterTransientFailure(t *testing.T) {
	h := newHarness(t, KindTransaction)
	h.store.failNext(2, errors.New("session expired"))
	payload := eventPayload(t, KindTransaction, EventCreated, "tx-2", TransactionPayload{Amount: ptr(4.0)})

	require.Equal(t, OutcomeApplied, h.consumer.Handle(context.Background(), transactionTopic, payload))

	assert.NotNil(t, h.store.node(domain.NodeTypeTransaction, "tx-2"))
	assert.Equal(t, 0, h.tracker.Len())
	assert.Len(t, h.sleeps.delays, 2)
	assert.Empty(t, h.publisher.envelopes(t))
}

func TestHandle_MalformedEventGoesStraightToDeadLetter(t *testing.T) {
	h := newHarness(t, KindTransaction)

	outcome := h.consumer.Handle(context.Background(), transactionTopic, []byte(`{"entityKind":`))
	require.Equal(t, OutcomeDeadLettered, outcome)

	envs := h.publisher.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, 1, envs[0].AttemptCount)
	assert.Equal(t, "*domain.ValidationError", envs[0].Error.Name)
	assert.Empty(t, h.sleeps.delays)
}

func TestHandle_InvalidDataIsNotRetried(t *testing.T) {
	h := newHarness(t, KindTransaction)
	payload := []byte(`{"eventId":"e1","entityKind":"transaction","eventType":"created","entityId":"tx-3","data":{"amount":"ten"}}`)

	require.Equal(t, OutcomeDeadLettered, h.consumer.Handle(context.Background(), transactionTopic, payload))
	assert.Empty(t, h.sleeps.delays)
	assert.Equal(t, 0, h.tracker.Len())
}

func TestHandle_MisroutedKindIsRejected(t *testing.T) {
	h := newHarness(t, KindTransaction)
	payload := eventPayload(t, KindGoal, EventCreated, "g-1", GoalPayload{})

	require.Equal(t, OutcomeDeadLettered, h.consumer.Handle(context.Background(), transactionTopic, payload))
	assert.Equal(t, 0, h.store.count(domain.NodeTypeGoal))
}

func TestHandle_CancelledWhileBackingOffWithoutRequeueDeadLetters(t *testing.T) {
	h := newHarness(t, KindTransaction)
	h.store.failNext(-1, errors.New("timeout"))
	h.sleeps.err = context.Canceled
	payload := eventPayload(t, KindTransaction, EventCreated, "tx-4", TransactionPayload{Amount: ptr(1.0)})

	require.Equal(t, OutcomeDeadLettered, h.consumer.Handle(context.Background(), transactionTopic, payload))
	envs := h.publisher.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, 1, envs[0].AttemptCount)
	assert.Contains(t, envs[0].Error.Message, "retry abandoned")
	assert.Equal(t, 0, h.tracker.Len())
}

// cancellingStore cancels the handler context on the first write, as a shutdown would mid-apply.
type cancellingStore struct {
	*memoryStore
	cancel context.CancelFunc
}

func (s cancellingStore) CreateNode(ctx context.Context, _ *domain.Node) (*domain.Node, error) {
	s.cancel()
	return nil, fmt.Errorf("create node: %w", ctx.Err())
}

func TestHandle_CancelledContextRequeuesWithoutCountingAttempt(t *testing.T) {
	h := newHarness(t, KindTransaction)
	requeue := &recordingPublisher{}
	h.consumer.requeue = requeue
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	payload := eventPayload(t, KindTransaction, EventCreated, "tx-5", TransactionPayload{Amount: ptr(3.0)})

	require.Equal(t, OutcomeRequeued, h.consumer.Handle(ctx, transactionTopic, payload))
	assert.Equal(t, []string{transactionTopic}, requeue.topics)
	assert.Equal(t, payload, requeue.payloads[0])
	assert.Empty(t, h.publisher.envelopes(t))
	assert.Equal(t, 0, h.store.writes)
	assert.Equal(t, 0, h.tracker.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsProcessed.WithLabelValues("transaction", "requeued")))
}

func TestHandle_CancelledDuringApplyRequeues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requeue := &recordingPublisher{}
	dlq := &recordingPublisher{}
	tracker := NewMemoryAttemptTracker()
	store := cancellingStore{memoryStore: newMemoryStore(), cancel: cancel}
	c := New(KindTransaction, NewMapper(store), deadletter.New(dlq),
		WithTracker(tracker), WithSleep((&sleepRecorder{}).sleep), WithRequeue(requeue))

	payload := eventPayload(t, KindTransaction, EventCreated, "tx-1", TransactionPayload{Amount: ptr(1.0)})
	require.Equal(t, OutcomeRequeued, c.Handle(ctx, transactionTopic, payload))
	assert.Equal(t, []string{transactionTopic}, requeue.topics)
	assert.Empty(t, dlq.envelopes(t))
	assert.Equal(t, 0, tracker.Len())
}

func TestHandle_CancelledDuringBackoffRequeuesAndKeepsCount(t *testing.T) {
	h := newHarness(t, KindTransaction)
	requeue := &recordingPublisher{}
	h.consumer.requeue = requeue
	h.store.failNext(-1, errors.New("timeout"))
	h.sleeps.err = context.Canceled
	payload := eventPayload(t, KindTransaction, EventCreated, "tx-6", TransactionPayload{Amount: ptr(1.0)})

	require.Equal(t, OutcomeRequeued, h.consumer.Handle(context.Background(), transactionTopic, payload))
	assert.Len(t, requeue.topics, 1)
	assert.Empty(t, h.publisher.envelopes(t))
	assert.Equal(t, 1, h.tracker.Len())
}

func TestHandle_RequeueFailureFallsBackToDeadLetter(t *testing.T) {
	h := newHarness(t, KindTransaction)
	h.consumer.requeue = &recordingPublisher{err: errors.New("redis down")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	payload := eventPayload(t, KindTransaction, EventCreated, "tx-7", TransactionPayload{Amount: ptr(1.0)})

	require.Equal(t, OutcomeDeadLettered, h.consumer.Handle(ctx, transactionTopic, payload))
	envs := h.publisher.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, 1, envs[0].AttemptCount)
}

func TestHandle_DeadLetterPublishFailureDropsEvent(t *testing.T) {
	h := newHarness(t, KindTransaction)
	h.publisher.err = errors.New("redis down")

	outcome := h.consumer.Handle(context.Background(), transactionTopic, []byte(`not json`))
	assert.Equal(t, OutcomeDropped, outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsProcessed.WithLabelValues("transaction", "dropped")))
}

func TestHandle_ContinuesAfterFailedEvent(t *testing.T) {
	h := newHarness(t, KindUser)
	ctx := context.Background()

	require.Equal(t, OutcomeDeadLettered, h.consumer.Handle(ctx, "users", []byte(`{}`)))
	ok := eventPayload(t, KindUser, EventCreated, "u-7", UserPayload{Email: ptr(" Ana@Example.COM ")})
	require.Equal(t, OutcomeApplied, h.consumer.Handle(ctx, "users", ok))

	user := h.store.node(domain.NodeTypeUser, "u-7")
	require.NotNil(t, user)
	assert.Equal(t, "ana@example.com", user.StringProperty("email"))
}

func TestDecodeEvent(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"eventType":"created"}`))
	assert.True(t, domain.IsValidation(err))

	_, err = DecodeEvent([]byte(`{"entityId":"x","eventType":"archived"}`))
	assert.True(t, domain.IsValidation(err))

	ev, err := DecodeEvent([]byte(`{"entityKind":"goal","entityId":"g-1","eventType":"deleted"}`))
	require.NoError(t, err)
	assert.Equal(t, "goal:g-1", ev.Key())
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
