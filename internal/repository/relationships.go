package repository

import (
	"context"
	"fmt"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/query"
)

// CreateRelationship merges the edge scoped by (from, to, type). Both endpoints must exist;
// a missing endpoint is reported as domain.ErrNotFound and nothing is written.
func (r *Repository) CreateRelationship(ctx context.Context, rel *domain.Relationship) error {
	q, err := query.RelationshipUpsert(rel)
	if err != nil {
		return err
	}
	res, err := r.client.ExecuteWrite(ctx, q.Text, q.Params)
	if err != nil {
		return fmt.Errorf("upsert relationship %s %s->%s: %w", rel.Type, rel.From, rel.To, err)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("upsert relationship %s %s->%s: endpoint %w", rel.Type, rel.From, rel.To, domain.ErrNotFound)
	}
	return nil
}

// UpdateRelationship overwrites weight, frequency, confidence and metadata of the edge,
// creating it when it does not exist yet.
func (r *Repository) UpdateRelationship(ctx context.Context, rel *domain.Relationship) error {
	return r.CreateRelationship(ctx, rel)
}

// DeleteRelationship removes the edge of type t between from and to.
// It reports whether an edge was removed.
func (r *Repository) DeleteRelationship(ctx context.Context, t domain.RelationshipType, from, to domain.NodeRef) (bool, error) {
	if !t.Valid() {
		return false, domain.NewValidationError("type", "unknown relationship type %q", t)
	}
	cypher := fmt.Sprintf(deleteRelationshipCypher, labelPattern(from.Type), t, labelPattern(to.Type))
	res, err := r.client.ExecuteWrite(ctx, cypher, map[string]any{"fromId": from.ID, "toId": to.ID})
	if err != nil {
		return false, fmt.Errorf("delete relationship %s %s->%s: %w", t, from, to, err)
	}
	if len(res.Records) == 0 {
		return false, nil
	}
	return toInt64(res.Records[0]["deleted"]) > 0, nil
}

// FindRelationshipsForNode returns every edge touching ref in either direction,
// optionally restricted to types.
func (r *Repository) FindRelationshipsForNode(ctx context.Context, ref domain.NodeRef, types []domain.RelationshipType) ([]domain.Relationship, error) {
	filter, err := query.RelationshipTypeFilter(types)
	if err != nil {
		return nil, err
	}
	cypher := fmt.Sprintf(relationshipsForNodeCypher, labelPattern(ref.Type), filter)
	res, err := r.client.ExecuteRead(ctx, cypher, map[string]any{"id": ref.ID})
	if err != nil {
		return nil, fmt.Errorf("relationships for %s: %w", ref, err)
	}
	rels := make([]domain.Relationship, 0, len(res.Records))
	for _, rec := range res.Records {
		rel, err := relationshipFromRecord(rec)
		if err != nil {
			return nil, err
		}
		rels = append(rels, *rel)
	}
	return rels, nil
}

const relationshipProjection = `type(r) AS relType,
       properties(r) AS relProps,
       startNode(r).id AS fromId,
       head(labels(startNode(r))) AS fromLabel,
       endNode(r).id AS toId,
       head(labels(endNode(r))) AS toLabel`

const deleteRelationshipCypher = `
MATCH (a%s {id: $fromId})-[r:%s]->(b%s {id: $toId})
DELETE r
RETURN count(*) AS deleted`

const relationshipsForNodeCypher = `
MATCH (n%s {id: $id})-[r%s]-()
RETURN ` + relationshipProjection + `
ORDER BY relType, fromId, toId`
