package pattern

import (
	"context"
	"fmt"
	"sort"

	"github.com/vanshika/fingraph/internal/domain"
)

const (
	concentrationWindow     = 30 * day
	concentrationTopN       = 5
	concentrationShare      = 0.30
	concentrationConfidence = 0.85
)

// CategoryConcentrationDetector flags top categories that take an outsized share of spend.
type CategoryConcentrationDetector struct{}

func (CategoryConcentrationDetector) Name() string { return "category_concentration" }

func (CategoryConcentrationDetector) Detect(ctx context.Context, req Request) ([]*domain.SpendingPattern, error) {
	txs, err := req.window(ctx, concentrationWindow)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	spend := txs[:0:0]
	for _, tx := range txs {
		if tx.Amount > 0 {
			spend = append(spend, tx)
		}
	}
	overall := total(spend)
	if overall <= 0 {
		return nil, nil
	}

	order, groups := group(spend, categoryKey)
	ranked := append([]string(nil), order...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return total(groups[ranked[i]]) > total(groups[ranked[j]])
	})
	if len(ranked) > concentrationTopN {
		ranked = ranked[:concentrationTopN]
	}

	var out []*domain.SpendingPattern
	for _, category := range ranked {
		members := groups[category]
		sum := total(members)
		share := sum / overall
		if share <= concentrationShare || len(members) < domain.MinPatternFrequency {
			continue
		}
		p, err := domain.NewSpendingPattern(domain.PatternInput{
			UserID:      req.UserID,
			Type:        domain.PatternCategoryConcentration,
			NodeIDs:     withAnchor(ids(members), members[0].CategoryID),
			Confidence:  concentrationConfidence,
			Frequency:   len(members),
			TotalAmount: sum,
			Timeframe:   timeframe(members),
			Metadata: map[string]any{
				domain.MetaCategoryName: members[0].CategoryName,
				"sharePercent":          round2(share * 100),
				"totalSpend":            round2(overall),
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
