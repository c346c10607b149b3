package repository

import (
	"context"
	"fmt"

	"github.com/vanshika/fingraph/internal/domain"
)

// CountNodesByType returns node counts keyed by label.
func (r *Repository) CountNodesByType(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, countNodesCypher, "label")
}

// CountRelationshipsByType returns relationship counts keyed by type.
func (r *Repository) CountRelationshipsByType(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, countRelationshipsCypher, "type")
}

// GetGraphStatistics combines per-type counts into whole-graph statistics.
func (r *Repository) GetGraphStatistics(ctx context.Context) (domain.GraphStatistics, error) {
	nodes, err := r.CountNodesByType(ctx)
	if err != nil {
		return domain.GraphStatistics{}, err
	}
	rels, err := r.CountRelationshipsByType(ctx)
	if err != nil {
		return domain.GraphStatistics{}, err
	}
	return domain.NewGraphStatistics(nodes, rels), nil
}

func (r *Repository) countBy(ctx context.Context, cypher, key string) (map[string]int64, error) {
	res, err := r.client.ExecuteRead(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", key, err)
	}
	counts := make(map[string]int64, len(res.Records))
	for _, rec := range res.Records {
		name := toString(rec[key])
		if name == "" {
			continue
		}
		counts[name] += toInt64(rec["count"])
	}
	return counts, nil
}

const countNodesCypher = `
MATCH (n)
RETURN head(labels(n)) AS label, count(*) AS count`

const countRelationshipsCypher = `
MATCH ()-[r]->()
RETURN type(r) AS type, count(*) AS count`
