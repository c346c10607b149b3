package server

import "github.com/vanshika/fingraph/internal/domain"

type statisticsResponse struct {
	NodeCounts         map[string]int64 `json:"nodeCounts"`
	RelationshipCounts map[string]int64 `json:"relationshipCounts"`
	TotalNodes         int64            `json:"totalNodes"`
	TotalRelationships int64            `json:"totalRelationships"`
	AverageDegree      float64          `json:"averageDegree"`
	Density            float64          `json:"density"`
}

type nodeResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  string         `json:"createdAt,omitempty"`
	UpdatedAt  string         `json:"updatedAt,omitempty"`
}

func toNodeResponse(n domain.Node) nodeResponse {
	props := n.Properties
	if props == nil {
		props = map[string]any{}
	}
	return nodeResponse{
		ID:         n.ID,
		Type:       string(n.Type),
		Properties: props,
		CreatedAt:  formatTime(n.CreatedAt),
		UpdatedAt:  formatTime(n.UpdatedAt),
	}
}

type searchHitResponse struct {
	Node  nodeResponse `json:"node"`
	Score float64      `json:"score"`
}

type pathNodeResponse struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

type pathEdgeResponse struct {
	Type   string  `json:"type"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

type shortestPathResponse struct {
	Found bool               `json:"found"`
	Hops  int                `json:"hops"`
	Nodes []pathNodeResponse `json:"nodes"`
	Edges []pathEdgeResponse `json:"edges"`
}

type neighborResponse struct {
	Node         nodeResponse `json:"node"`
	Relationship string       `json:"relationship,omitempty"`
	Distance     int          `json:"distance"`
}

type neighborhoodResponse struct {
	Center    nodeResponse       `json:"center"`
	Neighbors []neighborResponse `json:"neighbors"`
}

type patternsResponse struct {
	UserID   string                    `json:"userId"`
	Patterns []*domain.SpendingPattern `json:"patterns"`
}

type recommendationsResponse struct {
	UserID          string                  `json:"userId"`
	Recommendations []domain.Recommendation `json:"recommendations"`
}
