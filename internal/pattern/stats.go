package pattern

import (
	"math"
	"sort"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
)

const day = 24 * time.Hour

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

func amounts(txs []domain.TransactionRecord) []float64 {
	out := make([]float64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Amount
	}
	return out
}

func total(txs []domain.TransactionRecord) float64 {
	var sum float64
	for _, tx := range txs {
		sum += tx.Amount
	}
	return sum
}

// intervalDays returns the gaps in days between consecutive transactions; txs must be date-ordered.
func intervalDays(txs []domain.TransactionRecord) []float64 {
	if len(txs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		out = append(out, txs[i].Date.Sub(txs[i-1].Date).Hours()/24)
	}
	return out
}

func ids(txs []domain.TransactionRecord) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func timeframe(txs []domain.TransactionRecord) domain.Timeframe {
	if len(txs) == 0 {
		return domain.Timeframe{}
	}
	tf := domain.Timeframe{Start: txs[0].Date, End: txs[0].Date}
	for _, tx := range txs[1:] {
		if tx.Date.Before(tf.Start) {
			tf.Start = tx.Date
		}
		if tx.Date.After(tf.End) {
			tf.End = tx.Date
		}
	}
	return tf
}

func byDate(txs []domain.TransactionRecord) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
}

// group buckets transactions by key, skipping empty keys, and returns the keys in first-seen order.
func group(txs []domain.TransactionRecord, key func(domain.TransactionRecord) string) ([]string, map[string][]domain.TransactionRecord) {
	groups := make(map[string][]domain.TransactionRecord)
	var order []string
	for _, tx := range txs {
		k := key(tx)
		if k == "" {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], tx)
	}
	return order, groups
}

func merchantKey(tx domain.TransactionRecord) string {
	if tx.MerchantID != "" {
		return tx.MerchantID
	}
	return tx.MerchantName
}

func categoryKey(tx domain.TransactionRecord) string {
	if tx.CategoryID != "" {
		return tx.CategoryID
	}
	return tx.CategoryName
}

func withAnchor(txIDs []string, anchor string) []string {
	if anchor == "" {
		return txIDs
	}
	return append([]string{anchor}, txIDs...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
