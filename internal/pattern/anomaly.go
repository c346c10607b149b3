package pattern

import (
	"context"
	"fmt"

	"github.com/vanshika/fingraph/internal/domain"
)

const (
	anomalyBaselineWindow = 30 * day
	anomalyRecentWindow   = 7 * day
	anomalyThresholdSD    = 2.0
	anomalyMinBaseline    = 3
	anomalyConfidence     = 0.90
)

// UnusualSpendingDetector flags recent transactions far above the user's 30-day norm.
// Each finding is a single-occurrence anomaly pattern.
type UnusualSpendingDetector struct{}

func (UnusualSpendingDetector) Name() string { return "unusual_spending" }

func (UnusualSpendingDetector) Detect(ctx context.Context, req Request) ([]*domain.SpendingPattern, error) {
	txs, err := req.window(ctx, anomalyBaselineWindow)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if len(txs) < anomalyMinBaseline {
		return nil, nil
	}

	values := amounts(txs)
	avg := mean(values)
	sd := stddev(values)
	threshold := avg + anomalyThresholdSD*sd
	recent := req.Now.Add(-anomalyRecentWindow)

	var out []*domain.SpendingPattern
	for _, tx := range txs {
		if tx.Date.Before(recent) || tx.Amount <= threshold {
			continue
		}
		z := 0.0
		if sd > 0 {
			z = (tx.Amount - avg) / sd
		}
		p, err := domain.NewAnomalyPattern(domain.PatternInput{
			UserID:      req.UserID,
			NodeIDs:     []string{tx.ID},
			Confidence:  anomalyConfidence,
			TotalAmount: tx.Amount,
			Timeframe:   domain.Timeframe{Start: tx.Date, End: tx.Date},
			Metadata: map[string]any{
				domain.MetaTransactionID: tx.ID,
				domain.MetaMerchantName:  tx.MerchantName,
				domain.MetaCategoryName:  tx.CategoryName,
				"baselineMean":           round2(avg),
				"baselineStdDev":         round2(sd),
				"threshold":              round2(threshold),
				"zScore":                 round2(z),
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
