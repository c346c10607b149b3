package pattern

import (
	"context"
	"fmt"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
)

const (
	recurringWindow      = 90 * day
	recurringMinInterval = 25.0
	recurringMaxInterval = 35.0
	recurringMaxStdDev   = 50.0
	recurringTightStdDev = 10.0
	recurringTightScore  = 0.95
	recurringLooseScore  = 0.75
)

// RecurringPaymentDetector finds subscription-like payments: at least three charges at one
// merchant, roughly monthly, for a near-constant amount.
type RecurringPaymentDetector struct{}

func (RecurringPaymentDetector) Name() string { return "recurring_payment" }

func (RecurringPaymentDetector) Detect(ctx context.Context, req Request) ([]*domain.SpendingPattern, error) {
	txs, err := req.window(ctx, recurringWindow)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	var out []*domain.SpendingPattern
	order, groups := group(txs, merchantKey)
	for _, merchant := range order {
		charges := groups[merchant]
		if len(charges) < domain.MinPatternFrequency {
			continue
		}
		avgInterval := mean(intervalDays(charges))
		if avgInterval < recurringMinInterval || avgInterval > recurringMaxInterval {
			continue
		}
		sd := stddev(amounts(charges))
		if sd >= recurringMaxStdDev {
			continue
		}
		confidence := recurringLooseScore
		if sd < recurringTightStdDev {
			confidence = recurringTightScore
		}

		automated := true
		for _, c := range charges {
			automated = automated && c.Automated
		}
		last := charges[len(charges)-1]
		p, err := domain.NewSpendingPattern(domain.PatternInput{
			UserID:      req.UserID,
			Type:        domain.PatternRecurringPayment,
			NodeIDs:     withAnchor(ids(charges), last.MerchantID),
			Confidence:  confidence,
			Frequency:   len(charges),
			TotalAmount: total(charges),
			Timeframe:   timeframe(charges),
			Metadata: map[string]any{
				domain.MetaMerchantName: last.MerchantName,
				domain.MetaAutomated:    automated,
				"averageAmount":         round2(mean(amounts(charges))),
				"amountStdDev":          round2(sd),
				"averageIntervalDays":   round2(avgInterval),
				"nextExpectedDate":      last.Date.Add(time.Duration(avgInterval * float64(day))),
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
