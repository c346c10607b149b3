package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vanshika/fingraph/internal/domain"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NodeUpsert builds an idempotent merge on (label, id) that overwrites the supplied
// properties and maintains createdAt/updatedAt. createdAt is only written when the node
// is first created; a zero value means now.
func NodeUpsert(t domain.NodeType, id string, props map[string]any, createdAt time.Time) (Query, error) {
	if !t.Valid() {
		return Query{}, domain.NewValidationError("type", "unknown node type %q", t)
	}
	if id == "" {
		return Query{}, domain.NewValidationError("id", "node id is required")
	}
	text := fmt.Sprintf(`
MERGE (n:%s {id: $id})
ON CREATE SET n.createdAt = $createdAt
SET n += $props, n.updatedAt = $now
RETURN properties(n) AS props, head(labels(n)) AS label`, t)
	stamp := nowString()
	return New(text, map[string]any{
		"id":        id,
		"props":     flattenProperties(props),
		"createdAt": createdAtString(createdAt, stamp),
		"now":       stamp,
	})
}

// RelationshipUpsert builds an idempotent merge scoped by the endpoint pair and type.
// Both endpoints must already exist; the statement returns no rows otherwise.
func RelationshipUpsert(rel *domain.Relationship) (Query, error) {
	if rel == nil {
		return Query{}, domain.NewValidationError("relationship", "relationship is required")
	}
	if !rel.Type.Allows(rel.From.Type, rel.To.Type) {
		return Query{}, domain.NewValidationError("type", "%s cannot connect %s to %s", rel.Type, rel.From.Type, rel.To.Type)
	}
	text := fmt.Sprintf(`
MATCH (a:%s {id: $fromId})
MATCH (b:%s {id: $toId})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.id = $relId, r.createdAt = $createdAt
SET r += $metadata,
    r.weight = $weight,
    r.frequency = $frequency,
    r.confidence = $confidence,
    r.updatedAt = $now
RETURN r.id AS id`, rel.From.Type, rel.To.Type, rel.Type)
	stamp := nowString()
	return New(text, map[string]any{
		"fromId":     rel.From.ID,
		"toId":       rel.To.ID,
		"relId":      rel.ID,
		"weight":     rel.Weight,
		"frequency":  int64(rel.Frequency),
		"confidence": rel.Confidence,
		"metadata":   RelationshipMetadata(rel.Metadata),
		"createdAt":  createdAtString(rel.CreatedAt, stamp),
		"now":        stamp,
	})
}

// MatchReturn builds "MATCH (alias:Label) WHERE alias.k = $p0 ... RETURN fields".
// Filter keys are applied in sorted order so identical inputs produce identical text.
func MatchReturn(label, alias string, filters map[string]any, fields ...string) (Query, error) {
	projection := alias
	if len(fields) > 0 {
		refs := make([]string, 0, len(fields))
		for _, f := range fields {
			if !identifierPattern.MatchString(f) {
				return Query{}, domain.NewValidationError("field", "invalid field %q", f)
			}
			refs = append(refs, fmt.Sprintf("%s.%s AS %s", alias, f, f))
		}
		projection = strings.Join(refs, ", ")
	}
	return MatchProjection(label, alias, filters, projection)
}

// MatchProjection is MatchReturn with a caller-supplied RETURN projection.
// The projection is trusted statement text and must not contain user input.
func MatchProjection(label, alias string, filters map[string]any, projection string) (Query, error) {
	if !identifierPattern.MatchString(alias) {
		return Query{}, domain.NewValidationError("alias", "invalid alias %q", alias)
	}
	pattern := fmt.Sprintf("(%s)", alias)
	if label != "" {
		if !identifierPattern.MatchString(label) {
			return Query{}, domain.NewValidationError("label", "invalid label %q", label)
		}
		pattern = fmt.Sprintf("(%s:%s)", alias, label)
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !identifierPattern.MatchString(k) {
			return Query{}, domain.NewValidationError("filter", "invalid property name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("MATCH ")
	b.WriteString(pattern)

	params := make(map[string]any, len(keys))
	for i, k := range keys {
		name := fmt.Sprintf("p%d", i)
		if i == 0 {
			b.WriteString("\nWHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s.%s = $%s", alias, k, name)
		params[name] = filters[k]
	}

	b.WriteString("\nRETURN ")
	b.WriteString(projection)
	return New(b.String(), params)
}

// RelationshipTypeFilter renders types as a Cypher relationship-type alternation (":A|B").
// Unknown names are rejected; an empty slice yields "".
func RelationshipTypeFilter(types []domain.RelationshipType) (string, error) {
	if len(types) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		if !t.Valid() {
			return "", domain.NewValidationError("relationshipTypes", "unknown relationship type %q", t)
		}
		names = append(names, string(t))
	}
	return ":" + strings.Join(names, "|"), nil
}

// RelationshipMetadata flattens md and drops the keys the upsert sets itself,
// so metadata can never overwrite the validated edge fields.
func RelationshipMetadata(md map[string]any) map[string]any {
	out := flattenProperties(md)
	for _, k := range reservedRelationshipKeys {
		delete(out, k)
	}
	return out
}

var reservedRelationshipKeys = []string{domain.PropID, "weight", "frequency", "confidence", domain.PropCreatedAt, domain.PropUpdatedAt}

// flattenProperties keeps scalar and slice values and serializes nested maps,
// which the graph cannot store directly.
func flattenProperties(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		if nested, ok := v.(map[string]any); ok {
			out[k] = mustJSON(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
