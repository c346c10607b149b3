package pattern

import (
	"context"
	"fmt"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
)

const (
	timeOfDayWindow     = 30 * day
	timeOfDayMinCount   = 5
	timeOfDayConfidence = 0.70
)

// TimeOfDayDetector flags hours of the day in which a user transacts repeatedly.
// Hours are taken in the request's location, UTC when unset.
type TimeOfDayDetector struct{}

func (TimeOfDayDetector) Name() string { return "time_of_day" }

func (TimeOfDayDetector) Detect(ctx context.Context, req Request) ([]*domain.SpendingPattern, error) {
	txs, err := req.window(ctx, timeOfDayWindow)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	var buckets [24][]domain.TransactionRecord
	for _, tx := range txs {
		h := tx.Date.In(loc).Hour()
		buckets[h] = append(buckets[h], tx)
	}

	var out []*domain.SpendingPattern
	for hour, members := range buckets {
		if len(members) < timeOfDayMinCount {
			continue
		}
		p, err := domain.NewSpendingPattern(domain.PatternInput{
			UserID:      req.UserID,
			Type:        domain.PatternTimeOfDay,
			NodeIDs:     ids(members),
			Confidence:  timeOfDayConfidence,
			Frequency:   len(members),
			TotalAmount: total(members),
			Timeframe:   timeframe(members),
			Metadata: map[string]any{
				"hour":         hour,
				"label":        fmt.Sprintf("%02d:00-%02d:59", hour, hour),
				"timezone":     loc.String(),
				"sharePercent": round2(float64(len(members)) / float64(len(txs)) * 100),
			},
			DetectedAt: req.Now,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
