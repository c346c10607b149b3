package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/graph"
	"github.com/vanshika/fingraph/internal/query"
)

// Repository encapsulates graph persistence operations. It is the only component
// that issues statements against the graph database.
type Repository struct {
	client graph.Client
	logger *slog.Logger

	// expandSupport caches whether apoc.path.expandConfig is callable.
	expandSupport atomic.Int32
}

const (
	capabilityUnknown int32 = iota
	capabilityAvailable
	capabilityMissing
)

// Option customises a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for capability fallbacks and batch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client, opts ...Option) *Repository {
	r := &Repository{
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateNode merges the node on its id and overwrites the supplied properties.
// Repeating the call never creates a second node. node.CreatedAt is kept on first creation.
func (r *Repository) CreateNode(ctx context.Context, node *domain.Node) (*domain.Node, error) {
	if node == nil {
		return nil, domain.NewValidationError("node", "node is required")
	}
	return r.upsertNode(ctx, node.Ref(), node.Properties, node.CreatedAt)
}

// UpdateNode merges partial into the node identified by ref, creating it when missing.
func (r *Repository) UpdateNode(ctx context.Context, ref domain.NodeRef, partial map[string]any) (*domain.Node, error) {
	return r.upsertNode(ctx, ref, stripReserved(partial), time.Time{})
}

func (r *Repository) upsertNode(ctx context.Context, ref domain.NodeRef, props map[string]any, createdAt time.Time) (*domain.Node, error) {
	q, err := query.NodeUpsert(ref.Type, ref.ID, stripReserved(props), createdAt)
	if err != nil {
		return nil, err
	}

	res, err := r.client.ExecuteWrite(ctx, q.Text, q.Params)
	if err != nil {
		return nil, fmt.Errorf("upsert node %s: %w", ref, err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("upsert node %s: no record returned", ref)
	}
	return nodeFromRecord(res.Records[0], "props", "label")
}

// DeleteNode removes the node and every relationship touching it.
// It reports whether a node was deleted.
func (r *Repository) DeleteNode(ctx context.Context, ref domain.NodeRef) (bool, error) {
	if ref.ID == "" {
		return false, domain.NewValidationError("id", "node id is required")
	}
	cypher := fmt.Sprintf(deleteNodeCypher, labelPattern(ref.Type))
	res, err := r.client.ExecuteWrite(ctx, cypher, map[string]any{"id": ref.ID})
	if err != nil {
		return false, fmt.Errorf("delete node %s: %w", ref, err)
	}
	if len(res.Records) == 0 {
		return false, nil
	}
	return toInt64(res.Records[0]["deleted"]) > 0, nil
}

// FindNodeByID returns the node or nil when it does not exist.
// ref.Type may be empty to search across all labels.
func (r *Repository) FindNodeByID(ctx context.Context, ref domain.NodeRef) (*domain.Node, error) {
	if ref.ID == "" {
		return nil, domain.NewValidationError("id", "node id is required")
	}
	cypher := fmt.Sprintf(findNodeByIDCypher, labelPattern(ref.Type))
	res, err := r.client.ExecuteRead(ctx, cypher, map[string]any{"id": ref.ID})
	if err != nil {
		return nil, fmt.Errorf("find node %s: %w", ref, err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	return nodeFromRecord(res.Records[0], "props", "label")
}

// MustFindNodeByID is FindNodeByID that reports absence as domain.ErrNotFound.
func (r *Repository) MustFindNodeByID(ctx context.Context, ref domain.NodeRef) (*domain.Node, error) {
	node, err := r.FindNodeByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("node %s: %w", ref, domain.ErrNotFound)
	}
	return node, nil
}

// FindNodesByType lists nodes of one type ordered by id.
func (r *Repository) FindNodesByType(ctx context.Context, t domain.NodeType, skip, limit int) ([]domain.Node, error) {
	return r.FindNodesByProperties(ctx, t, nil, skip, limit)
}

// FindNodesByProperties lists nodes of type t whose properties equal every filter value.
func (r *Repository) FindNodesByProperties(ctx context.Context, t domain.NodeType, filters map[string]any, skip, limit int) ([]domain.Node, error) {
	if !t.Valid() {
		return nil, domain.NewValidationError("type", "unknown node type %q", t)
	}
	base, err := query.MatchProjection(string(t), "n", filters, nodeProjection)
	if err != nil {
		return nil, err
	}
	ordered, err := base.WithOrdering("n.id", false)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := ordered.WithPagination(skip, limit)

	res, err := r.client.ExecuteRead(ctx, q.Text, q.Params)
	if err != nil {
		return nil, fmt.Errorf("find %s nodes: %w", t, err)
	}
	nodes := make([]domain.Node, 0, len(res.Records))
	for _, rec := range res.Records {
		node, err := nodeFromRecord(rec, "props", "label")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

const (
	defaultListLimit = 100
	nodeProjection   = "properties(n) AS props, head(labels(n)) AS label"
)

func labelPattern(t domain.NodeType) string {
	if t == "" {
		return ""
	}
	return ":" + string(t)
}

func stripReserved(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch k {
		case domain.PropID, domain.PropType, domain.PropCreatedAt, domain.PropUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}

func isProcedureMissing(err error) bool {
	return errors.Is(err, graph.ErrProcedureNotFound)
}

const deleteNodeCypher = `
MATCH (n%s {id: $id})
DETACH DELETE n
RETURN count(*) AS deleted`

const findNodeByIDCypher = `
MATCH (n%s {id: $id})
RETURN properties(n) AS props, head(labels(n)) AS label
LIMIT 1`
