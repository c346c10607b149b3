package pattern

import (
	"context"
	"fmt"

	"github.com/vanshika/fingraph/internal/domain"
)

const (
	loyaltyWindow     = 60 * day
	loyaltyMinVisits  = 5
	loyaltyConfidence = 0.80
)

// MerchantLoyaltyDetector flags merchants a user keeps returning to.
type MerchantLoyaltyDetector struct{}

func (MerchantLoyaltyDetector) Name() string { return "merchant_loyalty" }

func (MerchantLoyaltyDetector) Detect(ctx context.Context, req Request) ([]*domain.SpendingPattern, error) {
	txs, err := req.window(ctx, loyaltyWindow)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	var out []*domain.SpendingPattern
	order, groups := group(txs, merchantKey)
	for _, merchant := range order {
		visits := groups[merchant]
		if len(visits) < loyaltyMinVisits {
			continue
		}
		p, err := domain.NewSpendingPattern(domain.PatternInput{
			UserID:      req.UserID,
			Type:        domain.PatternMerchantLoyalty,
			NodeIDs:     withAnchor(ids(visits), visits[0].MerchantID),
			Confidence:  loyaltyConfidence,
			Frequency:   len(visits),
			TotalAmount: total(visits),
			Timeframe:   timeframe(visits),
			Metadata: map[string]any{
				domain.MetaMerchantName: visits[0].MerchantName,
				"averageAmount":         round2(mean(amounts(visits))),
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
