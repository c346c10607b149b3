package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/graph"
	"github.com/vanshika/fingraph/internal/query"
)

// QueryResult is the generic outcome of an ad-hoc statement.
type QueryResult struct {
	Records []graph.Record
	Elapsed time.Duration
}

// ExecuteQuery runs q as a read or a write depending on its classification.
// The text is classified again, so a hand-built Query cannot claim to be read-only.
func (r *Repository) ExecuteQuery(ctx context.Context, q query.Query) (QueryResult, error) {
	if readOnly(q) {
		return r.ExecuteReadQuery(ctx, q)
	}
	return r.ExecuteWriteQuery(ctx, q)
}

// ExecuteReadQuery runs q in a read transaction. Mutating statements are rejected.
func (r *Repository) ExecuteReadQuery(ctx context.Context, q query.Query) (QueryResult, error) {
	if !readOnly(q) {
		return QueryResult{}, domain.NewValidationError("query", "mutating statement submitted as read-only query")
	}
	return r.execute(ctx, q, r.client.ExecuteRead)
}

// ExecuteWriteQuery runs q in a write transaction.
func (r *Repository) ExecuteWriteQuery(ctx context.Context, q query.Query) (QueryResult, error) {
	return r.execute(ctx, q, r.client.ExecuteWrite)
}

func readOnly(q query.Query) bool {
	return q.ReadOnly && query.IsReadOnly(q.Text)
}

func (r *Repository) execute(ctx context.Context, q query.Query, run func(context.Context, string, map[string]any) (graph.Result, error)) (QueryResult, error) {
	if q.Text == "" {
		return QueryResult{}, domain.NewValidationError("query", "query text is required")
	}
	start := time.Now()
	res, err := run(ctx, q.Text, q.Params)
	elapsed := time.Since(start)
	if err != nil {
		return QueryResult{Elapsed: elapsed}, fmt.Errorf("execute query: %w", err)
	}
	return QueryResult{Records: res.Records, Elapsed: elapsed}, nil
}
