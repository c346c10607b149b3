package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/graph"
	"github.com/vanshika/fingraph/internal/query"
)

const (
	// MaxPathResults bounds the number of paths returned by FindPath.
	MaxPathResults = 10
	// MaxTraversalDepth clamps variable-length patterns, which cannot be parameterized.
	MaxTraversalDepth   = 6
	shortestPathMaxHops = 15
)

// FindPath returns up to MaxPathResults paths of at most maxDepth hops between from and to,
// shortest first. Direction is ignored.
func (r *Repository) FindPath(ctx context.Context, from, to domain.NodeRef, maxDepth int) ([]domain.Path, error) {
	if from.ID == "" || to.ID == "" {
		return nil, domain.NewValidationError("endpoints", "source and target ids are required")
	}
	depth := clampDepth(maxDepth)
	cypher := fmt.Sprintf(findPathCypher, labelPattern(from.Type), labelPattern(to.Type), depth)
	params := map[string]any{
		"fromId": from.ID,
		"toId":   to.ID,
		"limit":  int64(MaxPathResults),
	}

	res, err := r.client.ExecuteRead(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("find path %s -> %s: %w", from, to, err)
	}
	paths := make([]domain.Path, 0, len(res.Records))
	for _, rec := range res.Records {
		paths = append(paths, pathFromRecord(rec))
	}
	return paths, nil
}

// FindShortestPath returns the minimum-hop path between from and to, or nil when
// the nodes are disconnected or missing.
func (r *Repository) FindShortestPath(ctx context.Context, from, to domain.NodeRef) (*domain.Path, error) {
	if from.ID == "" || to.ID == "" {
		return nil, domain.NewValidationError("endpoints", "source and target ids are required")
	}
	if from.ID == to.ID {
		node, err := r.FindNodeByID(ctx, from)
		if err != nil || node == nil {
			return nil, err
		}
		return &domain.Path{
			Nodes: []domain.PathNode{{ID: node.ID, Type: string(node.Type), Label: displayName(node)}},
		}, nil
	}

	cypher := fmt.Sprintf(shortestPathCypher, labelPattern(from.Type), labelPattern(to.Type), shortestPathMaxHops)
	res, err := r.client.ExecuteRead(ctx, cypher, map[string]any{"fromId": from.ID, "toId": to.ID})
	if err != nil {
		return nil, fmt.Errorf("shortest path %s -> %s: %w", from, to, err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	path := pathFromRecord(res.Records[0])
	return &path, nil
}

// FindNeighbors expands around center up to depth hops, optionally restricted to types.
// It prefers apoc.path.expandConfig and falls back to a plain variable-length match when
// the procedure is not installed; both return the nearest occurrence of every neighbor.
// A missing center yields nil.
func (r *Repository) FindNeighbors(ctx context.Context, center domain.NodeRef, depth int, types []domain.RelationshipType) (*domain.Neighborhood, error) {
	if center.ID == "" {
		return nil, domain.NewValidationError("id", "center node id is required")
	}
	filter, err := query.RelationshipTypeFilter(types)
	if err != nil {
		return nil, err
	}
	depth = clampDepth(depth)

	var res graph.Result
	if r.expandSupport.Load() != capabilityMissing {
		res, err = r.expandWithProcedure(ctx, center, depth, filter)
		switch {
		case err == nil:
			r.expandSupport.Store(capabilityAvailable)
		case isProcedureMissing(err):
			r.expandSupport.Store(capabilityMissing)
			r.logger.Warn("path expansion procedure unavailable, using traversal fallback", "error", err)
		default:
			return nil, fmt.Errorf("neighbors of %s: %w", center, err)
		}
	}
	if r.expandSupport.Load() == capabilityMissing {
		res, err = r.expandWithTraversal(ctx, center, depth, filter)
		if err != nil {
			return nil, fmt.Errorf("neighbors of %s: %w", center, err)
		}
	}

	return r.neighborhoodFromResult(ctx, center, res)
}

func (r *Repository) expandWithProcedure(ctx context.Context, center domain.NodeRef, depth int, filter string) (graph.Result, error) {
	cypher := fmt.Sprintf(expandNeighborsCypher, labelPattern(center.Type))
	return r.client.ExecuteRead(ctx, cypher, map[string]any{
		"id":        center.ID,
		"depth":     int64(depth),
		"relFilter": strings.TrimPrefix(filter, ":"),
	})
}

func (r *Repository) expandWithTraversal(ctx context.Context, center domain.NodeRef, depth int, filter string) (graph.Result, error) {
	cypher := fmt.Sprintf(traverseNeighborsCypher, labelPattern(center.Type), filter, depth)
	return r.client.ExecuteRead(ctx, cypher, map[string]any{"id": center.ID})
}

func (r *Repository) neighborhoodFromResult(ctx context.Context, center domain.NodeRef, res graph.Result) (*domain.Neighborhood, error) {
	if len(res.Records) == 0 {
		node, err := r.FindNodeByID(ctx, center)
		if err != nil || node == nil {
			return nil, err
		}
		return &domain.Neighborhood{Center: *node}, nil
	}

	centerNode, err := nodeFromRecord(res.Records[0], "centerProps", "centerLabel")
	if err != nil {
		return nil, err
	}
	hood := &domain.Neighborhood{
		Center:    *centerNode,
		Neighbors: make([]domain.Neighbor, 0, len(res.Records)),
	}
	for _, rec := range res.Records {
		node, err := nodeFromRecord(rec, "props", "label")
		if err != nil {
			return nil, err
		}
		rel, err := relationshipFromRecord(rec)
		if err != nil {
			return nil, err
		}
		hood.Neighbors = append(hood.Neighbors, domain.Neighbor{
			Node:         *node,
			Relationship: rel,
			Distance:     int(toInt64(rec["distance"])),
		})
	}
	return hood, nil
}

func clampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > MaxTraversalDepth {
		return MaxTraversalDepth
	}
	return depth
}

func displayName(n *domain.Node) string {
	if name := n.StringProperty("name"); name != "" {
		return name
	}
	return n.ID
}

const pathProjection = `[n IN nodes(p) | {id: n.id, type: head(labels(n)), label: coalesce(n.name, n.id)}] AS nodes,
       [rel IN relationships(p) | {type: type(rel), sourceId: startNode(rel).id, targetId: endNode(rel).id, weight: rel.weight}] AS edges,
       length(p) AS hops`

const findPathCypher = `
MATCH (a%s {id: $fromId})
MATCH (b%s {id: $toId})
MATCH p = (a)-[*1..%d]-(b)
RETURN ` + pathProjection + `
ORDER BY hops ASC
LIMIT $limit`

const shortestPathCypher = `
MATCH (a%s {id: $fromId})
MATCH (b%s {id: $toId})
MATCH p = shortestPath((a)-[*..%d]-(b))
RETURN ` + pathProjection

const neighborProjection = `properties(c) AS centerProps,
       head(labels(c)) AS centerLabel,
       properties(m) AS props,
       head(labels(m)) AS label,
       length(p) AS distance,
       ` + relationshipProjection

const expandNeighborsCypher = `
MATCH (c%s {id: $id})
CALL apoc.path.expandConfig(c, {
  relationshipFilter: $relFilter,
  minLevel: 1,
  maxLevel: $depth,
  uniqueness: 'NODE_GLOBAL',
  bfs: true
}) YIELD path
WITH c, path AS p, last(nodes(path)) AS m, last(relationships(path)) AS r
RETURN ` + neighborProjection + `
ORDER BY distance ASC, m.id ASC`

const traverseNeighborsCypher = `
MATCH (c%s {id: $id})
MATCH path = (c)-[%s*1..%d]-(m)
WHERE m <> c
WITH c, m, path
ORDER BY length(path) ASC
WITH c, m, head(collect(path)) AS p
WITH c, m, p, last(relationships(p)) AS r
RETURN ` + neighborProjection + `
ORDER BY distance ASC, m.id ASC`
