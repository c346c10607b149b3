package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/vanshika/fingraph/internal/domain"
)

// NameSearchIndex is the full-text index over merchant, category and tag names.
const NameSearchIndex = "entity_name_search"

var secondaryIndexes = []struct {
	name  string
	label domain.NodeType
	props []string
}{
	{"transaction_date", domain.NodeTypeTransaction, []string{"date"}},
	{"transaction_amount", domain.NodeTypeTransaction, []string{"amount"}},
	{"transaction_type", domain.NodeTypeTransaction, []string{"type"}},
	{"merchant_name", domain.NodeTypeMerchant, []string{"name"}},
	{"merchant_category", domain.NodeTypeMerchant, []string{"category"}},
	{"budget_period_status", domain.NodeTypeBudget, []string{"period", "status"}},
	{"goal_target_status", domain.NodeTypeGoal, []string{"targetDate", "status"}},
}

// SchemaStatements returns the idempotent DDL applied by EnsureSchema, in order.
func SchemaStatements() []string {
	stmts := make([]string, 0, len(domain.NodeTypes)+len(secondaryIndexes)+1)
	for _, t := range domain.NodeTypes {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			strings.ToLower(string(t)), t))
	}
	for _, idx := range secondaryIndexes {
		refs := make([]string, 0, len(idx.props))
		for _, p := range idx.props {
			refs = append(refs, "n."+p)
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (%s)",
			idx.name, idx.label, strings.Join(refs, ", ")))
	}
	stmts = append(stmts, fmt.Sprintf(
		"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:Merchant|Category|Tag) ON EACH [n.name]",
		NameSearchIndex))
	return stmts
}

// EnsureSchema applies uniqueness constraints and indexes. Every statement is idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SchemaStatements() {
		if _, err := r.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema %q: %w", stmt, err)
		}
	}
	return nil
}

// SearchHit is a node matched by full-text search.
type SearchHit struct {
	Node  domain.Node
	Score float64
}

// SearchByName runs a fuzzy full-text lookup over merchant, category and tag names.
func (r *Repository) SearchByName(ctx context.Context, text string, limit int) ([]SearchHit, error) {
	terms := fuzzyTerms(text)
	if terms == "" {
		return nil, domain.NewValidationError("query", "search text is required")
	}
	if limit <= 0 {
		limit = 20
	}
	res, err := r.client.ExecuteRead(ctx, searchByNameCypher, map[string]any{
		"index": NameSearchIndex,
		"terms": terms,
		"limit": int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search by name %q: %w", text, err)
	}
	hits := make([]SearchHit, 0, len(res.Records))
	for _, rec := range res.Records {
		node, err := nodeFromRecord(rec, "props", "label")
		if err != nil {
			return nil, err
		}
		hits = append(hits, SearchHit{Node: *node, Score: toFloat64(rec["score"])})
	}
	return hits, nil
}

// fuzzyTerms escapes Lucene syntax in each word and marks it for fuzzy matching.
func fuzzyTerms(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = luceneEscaper.Replace(w)
		if w != "" {
			out = append(out, w+"~")
		}
	}
	return strings.Join(out, " ")
}

var luceneEscaper = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `!`, `\!`, `(`, `\(`, `)`, `\)`,
	`:`, `\:`, `^`, `\^`, `[`, `\[`, `]`, `\]`, `"`, `\"`, `{`, `\{`,
	`}`, `\}`, `~`, `\~`, `*`, `\*`, `?`, `\?`, `|`, `\|`, `&`, `\&`, `/`, `\/`,
)

const searchByNameCypher = `
CALL db.index.fulltext.queryNodes($index, $terms) YIELD node, score
RETURN properties(node) AS props, head(labels(node)) AS label, score
ORDER BY score DESC
LIMIT $limit`
