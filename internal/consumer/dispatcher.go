package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/transport"
)

// Dispatcher routes messages to the consumer registered for their topic.
type Dispatcher struct {
	routes map[string]*Consumer
	policy DeadLetterPolicy
	logger *slog.Logger
}

// NewDispatcher builds an empty dispatcher. Messages on unknown topics are dead-lettered through policy.
func NewDispatcher(policy DeadLetterPolicy, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		routes: make(map[string]*Consumer),
		policy: policy,
		logger: logger.With("component", "dispatcher"),
	}
}

// Register binds topic to c. Registering the same topic twice is an error.
func (d *Dispatcher) Register(topic string, c *Consumer) error {
	if topic == "" {
		return domain.NewValidationError("topic", "topic is required")
	}
	if _, exists := d.routes[topic]; exists {
		return fmt.Errorf("topic %q already registered", topic)
	}
	d.routes[topic] = c
	return nil
}

// Topics lists the registered topics in sorted order.
func (d *Dispatcher) Topics() []string {
	topics := make([]string, 0, len(d.routes))
	for topic := range d.routes {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch hands msg to its consumer.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *transport.Message) Outcome {
	c, ok := d.routes[msg.Topic]
	if !ok {
		err := domain.NewValidationError("topic", "no consumer registered for topic %q", msg.Topic)
		d.logger.Error("unroutable message", "topic", msg.Topic, "error", err)
		if sendErr := d.policy.SendToDeadLetter(ctx, msg.Topic, msg.Payload, err, 1); sendErr != nil {
			return OutcomeDropped
		}
		return OutcomeDeadLettered
	}
	return c.Handle(ctx, msg.Topic, msg.Payload)
}

// partitionKey extracts the entity key used to keep events for one entity on one worker.
// Undecodable payloads fall back to the topic.
func partitionKey(msg *transport.Message) string {
	var head struct {
		Kind     string `json:"entityKind"`
		EntityID string `json:"entityId"`
	}
	if err := json.Unmarshal(msg.Payload, &head); err != nil || head.EntityID == "" {
		return msg.Topic
	}
	return head.Kind + ":" + head.EntityID
}
