package pattern

import (
	"context"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
)

// TransactionSource reads a user's transactions from the graph.
type TransactionSource interface {
	UserTransactions(ctx context.Context, userID string, since time.Time) ([]domain.TransactionRecord, error)
}

// Request scopes one detector run.
type Request struct {
	UserID   string
	Now      time.Time
	Location *time.Location
	Source   TransactionSource
}

// window loads the user's transactions from the lookback window ending at Now.
func (r Request) window(ctx context.Context, lookback time.Duration) ([]domain.TransactionRecord, error) {
	txs, err := r.Source.UserTransactions(ctx, r.UserID, r.Now.Add(-lookback))
	if err != nil {
		return nil, err
	}
	out := txs[:0:0]
	for _, tx := range txs {
		if tx.Date.After(r.Now) {
			continue
		}
		out = append(out, tx)
	}
	byDate(out)
	return out, nil
}

// Detector finds one kind of pattern in a user's recent activity.
type Detector interface {
	Name() string
	Detect(ctx context.Context, req Request) ([]*domain.SpendingPattern, error)
}

// DefaultDetectors returns the standard detector set in reporting order.
func DefaultDetectors() []Detector {
	return []Detector{
		RecurringPaymentDetector{},
		CategoryConcentrationDetector{},
		MerchantLoyaltyDetector{},
		TimeOfDayDetector{},
		UnusualSpendingDetector{},
	}
}
