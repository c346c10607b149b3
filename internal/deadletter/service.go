// Package deadletter decides when a failing event stops retrying, computes backoff
// and publishes exhausted events to the dead-letter destination.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/vanshika/fingraph/internal/metrics"
	"github.com/vanshika/fingraph/internal/transport"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultTopic      = "fingraph.dead-letter"
)

// ErrorInfo describes the failure that exhausted an event's retries.
type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
	Name    string `json:"name"`
}

// Envelope is the payload published for every dead-lettered event.
type Envelope struct {
	OriginalTopic string          `json:"originalTopic"`
	OriginalEvent json.RawMessage `json:"originalEvent"`
	Error         ErrorInfo       `json:"error"`
	FailedAt      time.Time       `json:"failedAt"`
	AttemptCount  int             `json:"attemptCount"`
	MaxRetries    int             `json:"maxRetries"`
}

// DecodeEnvelope parses a published envelope.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode dead-letter envelope: %w", err)
	}
	if env.OriginalTopic == "" {
		return Envelope{}, errors.New("decode dead-letter envelope: originalTopic is missing")
	}
	return env, nil
}

// Service owns the retry budget and the dead-letter destination.
type Service struct {
	publisher  transport.Publisher
	topic      string
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

func WithTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.topic = topic
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.baseDelay = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for failedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service publishing to publisher.
func New(publisher transport.Publisher, opts ...Option) *Service {
	s := &Service{
		publisher:  publisher,
		topic:      DefaultTopic,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxRetries is the number of attempts an event gets before it is dead-lettered.
func (s *Service) MaxRetries() int {
	return s.maxRetries
}

// Topic is the dead-letter destination.
func (s *Service) Topic() string {
	return s.topic
}

// ShouldSendToDeadLetter reports whether attemptCount has exhausted the retry budget.
func (s *Service) ShouldSendToDeadLetter(attemptCount int) bool {
	return attemptCount >= s.maxRetries
}

// GetRetryDelay returns baseDelay * 2^(attemptCount-1). Attempts below 1 get the base delay.
func (s *Service) GetRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	// Cap the shift so a runaway counter cannot overflow.
	shift := min(attemptCount-1, 30)
	return s.baseDelay * time.Duration(1<<shift)
}

// SendToDeadLetter publishes an envelope for event. A publish failure is logged and
// returned but never retried or re-dead-lettered.
func (s *Service) SendToDeadLetter(ctx context.Context, topic string, event []byte, cause error, attemptCount int) error {
	env := Envelope{
		OriginalTopic: topic,
		OriginalEvent: rawEvent(event),
		Error:         describe(cause),
		FailedAt:      s.now().UTC(),
		AttemptCount:  attemptCount,
		MaxRetries:    s.maxRetries,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("encode dead-letter envelope", "topic", topic, "error", err)
		s.metrics.DeadLetterPublishFailed()
		return fmt.Errorf("encode dead-letter envelope: %w", err)
	}
	if err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		s.logger.Error("publish dead-letter envelope", "topic", topic, "dead_letter_topic", s.topic, "error", err)
		s.metrics.DeadLetterPublishFailed()
		return fmt.Errorf("publish dead-letter envelope: %w", err)
	}

	s.logger.Warn("event dead-lettered",
		"topic", topic,
		"attempts", attemptCount,
		"error", env.Error.Message,
	)
	s.metrics.DeadLettered(topic)
	return nil
}

func describe(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Name: "unknown", Message: "unknown error"}
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return ErrorInfo{
		Message: err.Error(),
		Stack:   string(debug.Stack()),
		Name:    fmt.Sprintf("%T", root),
	}
}

// rawEvent keeps valid JSON as-is and quotes anything else so the envelope stays valid.
func rawEvent(event []byte) json.RawMessage {
	if json.Valid(event) {
		return json.RawMessage(event)
	}
	quoted, _ := json.Marshal(string(event))
	return quoted
}
