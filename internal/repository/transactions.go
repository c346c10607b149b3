package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/query"
)

// UserTransactions returns the user's transactions dated at or after since, oldest first,
// with the merchant and category they were booked against.
func (r *Repository) UserTransactions(ctx context.Context, userID string, since time.Time) ([]domain.TransactionRecord, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "user id is required")
	}
	res, err := r.client.ExecuteRead(ctx, userTransactionsCypher, map[string]any{
		"userId": userID,
		"since":  query.FormatTime(since),
	})
	if err != nil {
		return nil, fmt.Errorf("transactions for user %s: %w", userID, err)
	}

	txs := make([]domain.TransactionRecord, 0, len(res.Records))
	for _, rec := range res.Records {
		date := toTimePtr(rec["date"])
		if date == nil {
			continue
		}
		txs = append(txs, domain.TransactionRecord{
			ID:           toString(rec["id"]),
			Amount:       toFloat64(rec["amount"]),
			Date:         *date,
			MerchantID:   toString(rec["merchantId"]),
			MerchantName: toString(rec["merchantName"]),
			CategoryID:   toString(rec["categoryId"]),
			CategoryName: toString(rec["categoryName"]),
			Automated:    toBool(rec["automated"]),
		})
	}
	return txs, nil
}

// ownedTransactions matches transactions made directly by u or through one of u's accounts.
const ownedTransactions = `(u)-[:OWNS|MADE_TRANSACTION*1..2]->(t:Transaction)`

const userTransactionsCypher = `
MATCH (u:User {id: $userId})
MATCH ` + ownedTransactions + `
WITH DISTINCT t
WHERE t.date IS NOT NULL AND datetime(t.date) >= datetime($since)
OPTIONAL MATCH (t)-[:AT_MERCHANT]->(m:Merchant)
OPTIONAL MATCH (t)-[:BELONGS_TO_CATEGORY]->(c:Category)
RETURN t.id AS id,
       t.amount AS amount,
       t.date AS date,
       m.id AS merchantId,
       m.name AS merchantName,
       c.id AS categoryId,
       c.name AS categoryName,
       coalesce(t.automated, false) AS automated
ORDER BY datetime(t.date) ASC, t.id ASC`
