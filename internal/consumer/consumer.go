package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/metrics"
	"github.com/vanshika/fingraph/internal/transport"
)

// Outcome is the terminal state of one handled event.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDeadLettered Outcome = "dead_lettered"
	// OutcomeRequeued means the context ended before the event was applied and it was put back on its topic.
	OutcomeRequeued Outcome = "requeued"
	// OutcomeDropped means the event failed and could not be dead-lettered either.
	OutcomeDropped Outcome = "dropped"
)

// deadLetterTimeout bounds the dead-letter publish after the caller's context is gone.
const deadLetterTimeout = 5 * time.Second

// DeadLetterPolicy decides when to stop retrying and where failed events go.
type DeadLetterPolicy interface {
	ShouldSendToDeadLetter(attemptCount int) bool
	GetRetryDelay(attemptCount int) time.Duration
	SendToDeadLetter(ctx context.Context, topic string, event []byte, cause error, attemptCount int) error
}

// Consumer applies events of one entity kind to the graph with bounded retries.
type Consumer struct {
	kind    EntityKind
	mapper  *Mapper
	policy  DeadLetterPolicy
	tracker AttemptTracker
	logger  *slog.Logger
	metrics *metrics.Metrics
	requeue transport.Publisher
	sleep   func(context.Context, time.Duration) error
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithTracker replaces the in-memory attempt tracker.
func WithTracker(t AttemptTracker) Option {
	return func(c *Consumer) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithLogger sets the consumer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records outcomes and retries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

// WithRequeue returns events interrupted by cancellation to their topic through p.
// Without it they are dead-lettered.
func WithRequeue(p transport.Publisher) Option {
	return func(c *Consumer) { c.requeue = p }
}

// WithSleep overrides how the consumer waits between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Consumer) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New builds a consumer for kind.
func New(kind EntityKind, mapper *Mapper, policy DeadLetterPolicy, opts ...Option) *Consumer {
	c := &Consumer{
		kind:    kind,
		mapper:  mapper,
		policy:  policy,
		tracker: NewMemoryAttemptTracker(),
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "consumer", "kind", string(kind))
	return c
}

// Kind returns the entity kind this consumer handles.
func (c *Consumer) Kind() EntityKind {
	return c.kind
}

// Handle processes one raw event from topic. It never returns an error: failures are retried
// with backoff until the dead-letter policy gives up, then the event is dead-lettered.
// An event interrupted by ctx is requeued when WithRequeue is set.
func (c *Consumer) Handle(ctx context.Context, topic string, payload []byte) Outcome {
	ev, err := DecodeEvent(payload)
	if err != nil {
		c.logger.Error("rejecting undecodable event", "topic", topic, "error", err)
		return c.deadLetter(ctx, topic, payload, "", err, 1)
	}
	if ev.Kind == "" {
		ev.Kind = c.kind
	}
	if ev.Kind != c.kind {
		err := domain.NewValidationError("entityKind", "%s consumer received %s event", c.kind, ev.Kind)
		c.logger.Error("rejecting misrouted event", "topic", topic, "event_id", ev.ID, "error", err)
		return c.deadLetter(ctx, topic, payload, "", err, 1)
	}

	key := ev.Key()
	local := 0
	for {
		if ctx.Err() != nil {
			return c.release(ctx, topic, payload, key, ctx.Err(), local)
		}
		err := c.mapper.Apply(ctx, ev)
		if err == nil {
			if clearErr := c.tracker.Clear(ctx, key); clearErr != nil {
				c.logger.Warn("clearing attempt counter failed", "key", key, "error", clearErr)
			}
			c.metrics.EventHandled(string(c.kind), string(OutcomeApplied))
			c.logger.Debug("event applied", "key", key, "event_id", ev.ID, "type", string(ev.Type))
			return OutcomeApplied
		}
		if ctx.Err() != nil {
			return c.release(ctx, topic, payload, key, err, local)
		}

		local++
		attempt, trackErr := c.tracker.Increment(ctx, key)
		if trackErr != nil {
			c.logger.Warn("attempt tracking failed, using local count", "key", key, "error", trackErr)
			attempt = local
		}

		if domain.IsValidation(err) {
			c.logger.Error("event cannot be mapped", "key", key, "event_id", ev.ID, "error", err)
			return c.deadLetter(ctx, topic, payload, key, err, attempt)
		}
		if c.policy.ShouldSendToDeadLetter(attempt) {
			c.logger.Error("retries exhausted", "key", key, "event_id", ev.ID, "attempt", attempt, "error", err)
			return c.deadLetter(ctx, topic, payload, key, err, attempt)
		}

		delay := c.policy.GetRetryDelay(attempt)
		c.metrics.EventRetried(string(c.kind))
		c.logger.Warn("event failed, retrying", "key", key, "event_id", ev.ID, "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			cause := fmt.Errorf("retry abandoned (%v): %w", sleepErr, err)
			return c.release(ctx, topic, payload, key, cause, attempt)
		}
	}
}

// release hands back an event the consumer stopped working on because ctx ended.
// The attempt counter is left as is so a redelivery continues the same retry budget.
func (c *Consumer) release(ctx context.Context, topic string, payload []byte, key string, cause error, attempt int) Outcome {
	if c.requeue != nil {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterTimeout)
		defer cancel()
		err := c.requeue.Publish(sendCtx, topic, payload)
		if err == nil {
			c.metrics.EventHandled(string(c.kind), string(OutcomeRequeued))
			c.logger.Info("event requeued after cancellation", "topic", topic, "key", key, "attempt", attempt)
			return OutcomeRequeued
		}
		c.logger.Error("requeue failed", "topic", topic, "key", key, "error", err)
	}
	return c.deadLetter(ctx, topic, payload, key, cause, max(attempt, 1))
}

func (c *Consumer) deadLetter(ctx context.Context, topic string, payload []byte, key string, cause error, attempt int) Outcome {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterTimeout)
	defer cancel()

	if key != "" {
		if err := c.tracker.Clear(sendCtx, key); err != nil {
			c.logger.Warn("clearing attempt counter failed", "key", key, "error", err)
		}
	}
	if err := c.policy.SendToDeadLetter(sendCtx, topic, payload, cause, attempt); err != nil {
		c.metrics.EventHandled(string(c.kind), string(OutcomeDropped))
		return OutcomeDropped
	}
	c.metrics.EventHandled(string(c.kind), string(OutcomeDeadLettered))
	return OutcomeDeadLettered
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
