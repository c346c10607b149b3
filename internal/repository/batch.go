package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/query"
)

// batchChunkSize bounds the rows sent in a single UNWIND statement.
const batchChunkSize = 500

// BatchResult summarises a best-effort bulk write.
type BatchResult struct {
	Requested int
	Written   int
	Failures  []BatchFailure
}

// BatchFailure records a chunk that could not be written.
type BatchFailure struct {
	Group string
	Count int
	Err   error
}

// Failed returns the number of requested items that were not written.
func (b BatchResult) Failed() int {
	return b.Requested - b.Written
}

// BatchCreateNodes upserts nodes grouped by type in chunks. A failing chunk is recorded
// and does not roll back or stop the others. Invalid nodes are reported as failures.
func (r *Repository) BatchCreateNodes(ctx context.Context, nodes []*domain.Node) BatchResult {
	result := BatchResult{Requested: len(nodes)}
	groups := make(map[domain.NodeType][]map[string]any)
	for _, n := range nodes {
		if n == nil || n.ID == "" || !n.Type.Valid() {
			result.Failures = append(result.Failures, BatchFailure{
				Group: "invalid",
				Count: 1,
				Err:   domain.NewValidationError("node", "node requires an id and a known type"),
			})
			continue
		}
		groups[n.Type] = append(groups[n.Type], map[string]any{
			"id":        n.ID,
			"props":     stripReserved(n.Properties),
			"createdAt": createdAtParam(n.CreatedAt),
		})
	}

	for _, t := range sortedKeys(groups) {
		cypher := fmt.Sprintf(batchNodesCypher, t)
		result.apply(ctx, r, string(t), cypher, groups[t])
	}
	return result
}

// BatchCreateRelationships upserts relationships grouped by (type, endpoint labels).
// Rows whose endpoints are missing are skipped and count as not written.
func (r *Repository) BatchCreateRelationships(ctx context.Context, rels []*domain.Relationship) BatchResult {
	result := BatchResult{Requested: len(rels)}
	type groupKey struct {
		rel      domain.RelationshipType
		from, to domain.NodeType
	}
	groups := make(map[groupKey][]map[string]any)
	for _, rel := range rels {
		if rel == nil || !rel.Type.Allows(rel.From.Type, rel.To.Type) {
			result.Failures = append(result.Failures, BatchFailure{
				Group: "invalid",
				Count: 1,
				Err:   domain.NewValidationError("relationship", "relationship violates the type whitelist"),
			})
			continue
		}
		key := groupKey{rel: rel.Type, from: rel.From.Type, to: rel.To.Type}
		groups[key] = append(groups[key], map[string]any{
			"fromId":     rel.From.ID,
			"toId":       rel.To.ID,
			"relId":      rel.ID,
			"weight":     rel.Weight,
			"frequency":  int64(rel.Frequency),
			"confidence": rel.Confidence,
			"metadata":   query.RelationshipMetadata(rel.Metadata),
			"createdAt":  createdAtParam(rel.CreatedAt),
		})
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.rel != b.rel {
			return a.rel < b.rel
		}
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	for _, k := range keys {
		cypher := fmt.Sprintf(batchRelationshipsCypher, k.from, k.to, k.rel)
		result.apply(ctx, r, fmt.Sprintf("%s:%s->%s", k.rel, k.from, k.to), cypher, groups[k])
	}
	return result
}

func (b *BatchResult) apply(ctx context.Context, r *Repository, group, cypher string, rows []map[string]any) {
	for start := 0; start < len(rows); start += batchChunkSize {
		end := min(start+batchChunkSize, len(rows))
		chunk := rows[start:end]

		res, err := r.client.ExecuteWrite(ctx, cypher, map[string]any{
			"rows": chunk,
			"now":  query.FormatTime(nowUTC()),
		})
		if err != nil {
			r.logger.Error("batch chunk failed", "group", group, "rows", len(chunk), "error", err)
			b.Failures = append(b.Failures, BatchFailure{Group: group, Count: len(chunk), Err: err})
			continue
		}
		if len(res.Records) > 0 {
			b.Written += int(toInt64(res.Records[0]["written"]))
		}
	}
}

// createdAtParam formats t for a row; rows without one fall back to $now in the statement.
func createdAtParam(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return query.FormatTime(t)
}

func sortedKeys(groups map[domain.NodeType][]map[string]any) []domain.NodeType {
	keys := make([]domain.NodeType, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

const batchNodesCypher = `
UNWIND $rows AS row
MERGE (n:%s {id: row.id})
ON CREATE SET n.createdAt = coalesce(row.createdAt, $now)
SET n += row.props, n.updatedAt = $now
RETURN count(n) AS written`

const batchRelationshipsCypher = `
UNWIND $rows AS row
MATCH (a:%s {id: row.fromId})
MATCH (b:%s {id: row.toId})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.id = row.relId, r.createdAt = coalesce(row.createdAt, $now)
SET r += row.metadata,
    r.weight = row.weight,
    r.frequency = row.frequency,
    r.confidence = row.confidence,
    r.updatedAt = $now
RETURN count(r) AS written`
