package repository

import (
	"fmt"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/graph"
)

func nodeFromRecord(rec graph.Record, propsKey, labelKey string) (*domain.Node, error) {
	props, ok := rec[propsKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode node: %s is %T, want map", propsKey, rec[propsKey])
	}
	return nodeFromProps(props, toString(rec[labelKey]))
}

func nodeFromProps(props map[string]any, label string) (*domain.Node, error) {
	t, err := domain.ParseNodeType(label)
	if err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	node := &domain.Node{
		ID:         toString(props[domain.PropID]),
		Type:       t,
		Properties: make(map[string]any, len(props)),
	}
	if created := toTimePtr(props[domain.PropCreatedAt]); created != nil {
		node.CreatedAt = *created
	}
	if updated := toTimePtr(props[domain.PropUpdatedAt]); updated != nil {
		node.UpdatedAt = *updated
	}
	for k, v := range props {
		switch k {
		case domain.PropID, domain.PropType, domain.PropCreatedAt, domain.PropUpdatedAt:
			continue
		}
		node.Properties[k] = v
	}
	return node, nil
}

// relationshipFromRecord decodes the columns produced by relationshipProjection.
func relationshipFromRecord(rec graph.Record) (*domain.Relationship, error) {
	relType, err := domain.ParseRelationshipType(toString(rec["relType"]))
	if err != nil {
		return nil, fmt.Errorf("decode relationship: %w", err)
	}
	fromType, err := domain.ParseNodeType(toString(rec["fromLabel"]))
	if err != nil {
		return nil, fmt.Errorf("decode relationship: %w", err)
	}
	toType, err := domain.ParseNodeType(toString(rec["toLabel"]))
	if err != nil {
		return nil, fmt.Errorf("decode relationship: %w", err)
	}

	props, _ := rec["relProps"].(map[string]any)
	rel := &domain.Relationship{
		ID:         toString(props["id"]),
		Type:       relType,
		From:       domain.NodeRef{ID: toString(rec["fromId"]), Type: fromType},
		To:         domain.NodeRef{ID: toString(rec["toId"]), Type: toType},
		Weight:     floatOr(props["weight"], 1),
		Frequency:  int(toInt64(props["frequency"])),
		Confidence: floatOr(props["confidence"], 1),
		Metadata:   map[string]any{},
	}
	if rel.Frequency < 1 {
		rel.Frequency = 1
	}
	if created := toTimePtr(props["createdAt"]); created != nil {
		rel.CreatedAt = *created
	}
	if updated := toTimePtr(props["updatedAt"]); updated != nil {
		rel.UpdatedAt = *updated
	}
	for k, v := range props {
		switch k {
		case "id", "weight", "frequency", "confidence", "createdAt", "updatedAt":
			continue
		}
		rel.Metadata[k] = v
	}
	return rel, nil
}

func pathFromRecord(rec graph.Record) domain.Path {
	var path domain.Path

	if nodesRaw, ok := rec["nodes"].([]any); ok {
		for _, n := range nodesRaw {
			nodeMap, ok := n.(map[string]any)
			if !ok {
				continue
			}
			path.Nodes = append(path.Nodes, domain.PathNode{
				ID:    toString(nodeMap["id"]),
				Type:  toString(nodeMap["type"]),
				Label: toString(nodeMap["label"]),
			})
		}
	}

	if edgesRaw, ok := rec["edges"].([]any); ok {
		for _, e := range edgesRaw {
			edgeMap, ok := e.(map[string]any)
			if !ok {
				continue
			}
			path.Edges = append(path.Edges, domain.PathEdge{
				Type:   toString(edgeMap["type"]),
				Source: toString(edgeMap["sourceId"]),
				Target: toString(edgeMap["targetId"]),
				Weight: floatOr(edgeMap["weight"], 1),
			})
		}
	}

	path.Length = int(toInt64(rec["hops"]))
	return path
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func floatOr(val any, fallback float64) float64 {
	if val == nil {
		return fallback
	}
	return toFloat64(val)
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func toBool(val any) bool {
	b, _ := val.(bool)
	return b
}

func toTimePtr(val any) *time.Time {
	switch v := val.(type) {
	case time.Time:
		return &v
	case string:
		if v == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return &parsed
		}
	}
	return nil
}
