package deadletter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vanshika/fingraph/internal/transport"
)

// ReplayStats summarises one replay run.
type ReplayStats struct {
	Replayed int
	// Skipped counts envelopes that could not be decoded or did not match the topic filter.
	Skipped int
}

// Replayer drains dead-lettered envelopes and republishes each original event to its original topic.
type Replayer struct {
	source    transport.Source
	publisher transport.Publisher
	logger    *slog.Logger
	// Only limits replay to envelopes from this original topic when set.
	Only string
	// Parking receives envelopes that are skipped, so they are not lost.
	Parking string
}

// NewReplayer builds a Replayer reading envelopes from source.
func NewReplayer(source transport.Source, publisher transport.Publisher, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{
		source:    source,
		publisher: publisher,
		logger:    logger.With("component", "replay"),
	}
}

// Run replays until the source is empty or limit envelopes were handled. A limit of zero means no limit.
func (r *Replayer) Run(ctx context.Context, limit int) (ReplayStats, error) {
	var stats ReplayStats
	for limit <= 0 || stats.Replayed+stats.Skipped < limit {
		msg, err := r.source.Receive(ctx)
		if err != nil {
			return stats, fmt.Errorf("receive dead letter: %w", err)
		}
		if msg == nil {
			return stats, nil
		}

		env, err := DecodeEnvelope(msg.Payload)
		if err != nil || (r.Only != "" && env.OriginalTopic != r.Only) {
			stats.Skipped++
			if err != nil {
				r.logger.Warn("skipping undecodable envelope", "error", err)
			}
			if err := r.park(ctx, msg); err != nil {
				return stats, err
			}
			continue
		}

		if err := r.publisher.Publish(ctx, env.OriginalTopic, env.OriginalEvent); err != nil {
			if requeueErr := r.publisher.Publish(ctx, msg.Topic, msg.Payload); requeueErr != nil {
				r.logger.Error("failed to requeue envelope", "error", requeueErr)
			}
			return stats, fmt.Errorf("republish to %s: %w", env.OriginalTopic, err)
		}
		stats.Replayed++
		r.logger.Debug("replayed event", "topic", env.OriginalTopic, "attempts", env.AttemptCount, "failed_at", env.FailedAt)
	}
	return stats, nil
}

func (r *Replayer) park(ctx context.Context, msg *transport.Message) error {
	if r.Parking == "" {
		return nil
	}
	if err := r.publisher.Publish(ctx, r.Parking, msg.Payload); err != nil {
		return fmt.Errorf("park envelope: %w", err)
	}
	return nil
}
