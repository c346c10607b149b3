package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/query"
)

// CategoryInsight aggregates a user's spend in one category.
type CategoryInsight struct {
	CategoryID       string  `json:"categoryId"`
	Name             string  `json:"name"`
	TotalSpent       float64 `json:"totalSpent"`
	TransactionCount int64   `json:"transactionCount"`
	AverageAmount    float64 `json:"averageAmount"`
	Share            float64 `json:"share"`
}

// MerchantRecommendation is a merchant popular with other users in categories the user already uses.
type MerchantRecommendation struct {
	MerchantID string `json:"merchantId"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Users      int64  `json:"users"`
}

// SimilarUser is another user ranked by Jaccard similarity of visited merchants.
type SimilarUser struct {
	UserID          string  `json:"userId"`
	Name            string  `json:"name"`
	SharedMerchants int64   `json:"sharedMerchants"`
	Score           float64 `json:"score"`
}

// CategoryInsights returns per-category spend since the given time, largest first.
func (r *Repository) CategoryInsights(ctx context.Context, userID string, since time.Time) ([]CategoryInsight, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "user id is required")
	}
	res, err := r.client.ExecuteRead(ctx, categoryInsightsCypher, map[string]any{
		"userId": userID,
		"since":  query.FormatTime(since),
	})
	if err != nil {
		return nil, fmt.Errorf("category insights for %s: %w", userID, err)
	}

	insights := make([]CategoryInsight, 0, len(res.Records))
	var total float64
	for _, rec := range res.Records {
		in := CategoryInsight{
			CategoryID:       toString(rec["categoryId"]),
			Name:             toString(rec["name"]),
			TotalSpent:       toFloat64(rec["total"]),
			TransactionCount: toInt64(rec["count"]),
		}
		if in.TransactionCount > 0 {
			in.AverageAmount = in.TotalSpent / float64(in.TransactionCount)
		}
		total += in.TotalSpent
		insights = append(insights, in)
	}
	if total > 0 {
		for i := range insights {
			insights[i].Share = insights[i].TotalSpent / total
		}
	}
	return insights, nil
}

// MerchantRecommendations suggests merchants the user has not visited.
func (r *Repository) MerchantRecommendations(ctx context.Context, userID string, limit int) ([]MerchantRecommendation, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "user id is required")
	}
	if limit <= 0 {
		limit = 10
	}
	res, err := r.client.ExecuteRead(ctx, merchantRecommendationsCypher, map[string]any{
		"userId": userID,
		"limit":  int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("merchant recommendations for %s: %w", userID, err)
	}
	recs := make([]MerchantRecommendation, 0, len(res.Records))
	for _, rec := range res.Records {
		recs = append(recs, MerchantRecommendation{
			MerchantID: toString(rec["merchantId"]),
			Name:       toString(rec["name"]),
			Category:   toString(rec["category"]),
			Users:      toInt64(rec["users"]),
		})
	}
	return recs, nil
}

// SimilarUsers ranks other users by overlap of visited merchants.
func (r *Repository) SimilarUsers(ctx context.Context, userID string, limit int) ([]SimilarUser, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "user id is required")
	}
	if limit <= 0 {
		limit = 10
	}
	res, err := r.client.ExecuteRead(ctx, similarUsersCypher, map[string]any{
		"userId": userID,
		"limit":  int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("similar users for %s: %w", userID, err)
	}
	users := make([]SimilarUser, 0, len(res.Records))
	for _, rec := range res.Records {
		users = append(users, SimilarUser{
			UserID:          toString(rec["userId"]),
			Name:            toString(rec["name"]),
			SharedMerchants: toInt64(rec["shared"]),
			Score:           toFloat64(rec["score"]),
		})
	}
	return users, nil
}

const categoryInsightsCypher = `
MATCH (u:User {id: $userId})
MATCH ` + ownedTransactions + `
WITH DISTINCT t
WHERE t.date IS NOT NULL AND datetime(t.date) >= datetime($since)
MATCH (t)-[:BELONGS_TO_CATEGORY]->(c:Category)
RETURN c.id AS categoryId,
       c.name AS name,
       sum(coalesce(t.amount, 0.0)) AS total,
       count(t) AS count
ORDER BY total DESC, name ASC`

const merchantRecommendationsCypher = `
MATCH (u:User {id: $userId})
MATCH ` + ownedTransactions + `-[:BELONGS_TO_CATEGORY]->(c:Category)
WITH u, collect(DISTINCT c) AS categories
MATCH (other:User)-[:OWNS|MADE_TRANSACTION*1..2]->(:Transaction)-[:AT_MERCHANT]->(m:Merchant)-[:BELONGS_TO_CATEGORY]->(c:Category)
WHERE other <> u
  AND c IN categories
  AND NOT EXISTS { MATCH (u)-[:OWNS|MADE_TRANSACTION*1..2]->(:Transaction)-[:AT_MERCHANT]->(m) }
RETURN m.id AS merchantId,
       m.name AS name,
       c.name AS category,
       count(DISTINCT other) AS users
ORDER BY users DESC, name ASC
LIMIT $limit`

const similarUsersCypher = `
MATCH (u:User {id: $userId})
MATCH ` + ownedTransactions + `-[:AT_MERCHANT]->(m:Merchant)
WITH u, collect(DISTINCT m) AS mine
MATCH (other:User)-[:OWNS|MADE_TRANSACTION*1..2]->(:Transaction)-[:AT_MERCHANT]->(m:Merchant)
WHERE other <> u
WITH mine, other, collect(DISTINCT m) AS theirs
WITH other, size([x IN theirs WHERE x IN mine]) AS shared, size(mine) + size(theirs) AS combined
WHERE shared > 0
RETURN other.id AS userId,
       other.name AS name,
       shared,
       toFloat(shared) / (combined - shared) AS score
ORDER BY score DESC, userId ASC
LIMIT $limit`
