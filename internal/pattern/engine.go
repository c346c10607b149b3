// Package pattern mines a user's transaction graph for recurring behaviour and anomalies.
//
// Detectors run concurrently and independently: a detector that fails or panics contributes
// no patterns and is logged, while the others still report.
package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/metrics"
)

// Engine runs the detector set for one user at a time.
type Engine struct {
	source    TransactionSource
	detectors []Detector
	location  *time.Location
	logger    *slog.Logger
	metrics   *metrics.Metrics
	nowFn     func() time.Time
	cache     *expirable.LRU[string, []*domain.SpendingPattern]
}

// Option configures an Engine.
type Option func(*Engine)

// WithDetectors replaces DefaultDetectors.
func WithDetectors(detectors ...Detector) Option {
	return func(e *Engine) { e.detectors = detectors }
}

// WithLocation sets the timezone used for hour-of-day bucketing.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the engine's notion of now.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.nowFn = fn
		}
	}
}

// WithCache keeps up to size users' results for ttl. A size of zero disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(e *Engine) {
		if size <= 0 {
			e.cache = nil
			return
		}
		e.cache = expirable.NewLRU[string, []*domain.SpendingPattern](size, nil, ttl)
	}
}

// NewEngine builds an engine reading transactions from source.
func NewEngine(source TransactionSource, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		detectors: DefaultDetectors(),
		location:  time.UTC,
		logger:    slog.Default(),
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "pattern_engine")
	return e
}

// DetectPatternsForUser returns the union of every detector's findings, in detector order.
// Detector failures are logged and never surface as an error.
func (e *Engine) DetectPatternsForUser(ctx context.Context, userID string) ([]*domain.SpendingPattern, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "user id is required")
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(userID); ok {
			e.metrics.PatternCacheLookup(true)
			return cached, nil
		}
		e.metrics.PatternCacheLookup(false)
	}

	req := Request{
		UserID:   userID,
		Now:      e.nowFn(),
		Location: e.location,
		Source:   e.source,
	}
	results := make([][]*domain.SpendingPattern, len(e.detectors))

	var g errgroup.Group
	for i, d := range e.detectors {
		g.Go(func() error {
			results[i] = e.run(ctx, d, req)
			return nil
		})
	}
	_ = g.Wait()

	var patterns []*domain.SpendingPattern
	for _, found := range results {
		patterns = append(patterns, found...)
	}
	if e.cache != nil {
		e.cache.Add(userID, patterns)
	}
	return patterns, nil
}

// DetectAnomalies returns only the anomalous findings for userID.
func (e *Engine) DetectAnomalies(ctx context.Context, userID string) ([]*domain.SpendingPattern, error) {
	patterns, err := e.DetectPatternsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*domain.SpendingPattern
	for _, p := range patterns {
		if p.IsAnomalous() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Recommendations turns userID's patterns into follow-up suggestions.
func (e *Engine) Recommendations(ctx context.Context, userID string) ([]domain.Recommendation, error) {
	patterns, err := e.DetectPatternsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var recs []domain.Recommendation
	for _, p := range patterns {
		recs = append(recs, p.GenerateRecommendations()...)
	}
	return recs, nil
}

// Invalidate drops any cached result for userID.
func (e *Engine) Invalidate(userID string) {
	if e.cache != nil {
		e.cache.Remove(userID)
	}
}

func (e *Engine) run(ctx context.Context, d Detector, req Request) (found []*domain.SpendingPattern) {
	name := d.Name()
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detector panicked", "detector", name, "user_id", req.UserID, "panic", fmt.Sprint(r))
			outcome = "panic"
			found = nil
		}
		e.metrics.DetectorFinished(name, outcome, time.Since(start).Seconds(), len(found))
	}()

	patterns, err := d.Detect(ctx, req)
	if err != nil {
		e.logger.Warn("detector failed", "detector", name, "user_id", req.UserID, "error", err)
		outcome = "error"
		return nil
	}
	return patterns
}
