package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/repository"
)

// PatternService is the pattern engine surface used by the API.
type PatternService interface {
	DetectPatternsForUser(ctx context.Context, userID string) ([]*domain.SpendingPattern, error)
	DetectAnomalies(ctx context.Context, userID string) ([]*domain.SpendingPattern, error)
	Recommendations(ctx context.Context, userID string) ([]domain.Recommendation, error)
	Invalidate(userID string)
}

// GraphReader is the read-only repository surface used by the API.
type GraphReader interface {
	GetGraphStatistics(ctx context.Context) (domain.GraphStatistics, error)
	FindShortestPath(ctx context.Context, from, to domain.NodeRef) (*domain.Path, error)
	FindNeighbors(ctx context.Context, center domain.NodeRef, depth int, types []domain.RelationshipType) (*domain.Neighborhood, error)
	SearchByName(ctx context.Context, text string, limit int) ([]repository.SearchHit, error)
	CategoryInsights(ctx context.Context, userID string, since time.Time) ([]repository.CategoryInsight, error)
	MerchantRecommendations(ctx context.Context, userID string, limit int) ([]repository.MerchantRecommendation, error)
	SimilarUsers(ctx context.Context, userID string, limit int) ([]repository.SimilarUser, error)
}

const defaultInsightDays = 30

// APIHandlers exposes the read-only analytics projections over HTTP.
type APIHandlers struct {
	logger   *slog.Logger
	patterns PatternService
	graph    GraphReader
	nowFn    func() time.Time
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, patterns PatternService, graph GraphReader) *APIHandlers {
	return &APIHandlers{
		logger:   logger,
		patterns: patterns,
		graph:    graph,
		nowFn:    time.Now,
	}
}

func (h *APIHandlers) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.graph.GetGraphStatistics(r.Context())
	if err != nil {
		h.fail(w, err, "failed to compute graph statistics")
		return
	}
	respondJSON(w, http.StatusOK, statisticsResponse{
		NodeCounts:         stats.NodeCounts,
		RelationshipCounts: stats.RelationshipCounts,
		TotalNodes:         stats.TotalNodes,
		TotalRelationships: stats.TotalRelationships,
		AverageDegree:      stats.AverageDegree,
		Density:            stats.Density,
	})
}

func (h *APIHandlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	hits, err := h.graph.SearchByName(r.Context(), q, parseInt(r.URL.Query().Get("limit"), 20))
	if err != nil {
		h.fail(w, err, "search failed")
		return
	}
	resp := make([]searchHitResponse, 0, len(hits))
	for _, hit := range hits {
		resp = append(resp, searchHitResponse{Node: toNodeResponse(hit.Node), Score: hit.Score})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) handleShortestPath(w http.ResponseWriter, r *http.Request) {
	from, err := parseRef(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := parseRef(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}

	path, err := h.graph.FindShortestPath(r.Context(), from, to)
	if err != nil {
		h.fail(w, err, "failed to compute shortest path")
		return
	}
	if path == nil {
		respondJSON(w, http.StatusOK, shortestPathResponse{Found: false})
		return
	}
	resp := shortestPathResponse{Found: true, Hops: path.Length}
	for _, n := range path.Nodes {
		resp.Nodes = append(resp.Nodes, pathNodeResponse{ID: n.ID, Type: n.Type, Label: n.Label})
	}
	for _, e := range path.Edges {
		resp.Edges = append(resp.Edges, pathEdgeResponse{Type: e.Type, Source: e.Source, Target: e.Target, Weight: e.Weight})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseNodeType(r.PathValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	center := domain.NodeRef{ID: r.PathValue("id"), Type: t}

	var types []domain.RelationshipType
	if csv := r.URL.Query().Get("types"); csv != "" {
		for _, name := range strings.Split(csv, ",") {
			rt, err := domain.ParseRelationshipType(strings.TrimSpace(name))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			types = append(types, rt)
		}
	}

	hood, err := h.graph.FindNeighbors(r.Context(), center, parseInt(r.URL.Query().Get("depth"), 1), types)
	if err != nil {
		h.fail(w, err, "failed to expand neighborhood")
		return
	}
	if hood == nil {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	resp := neighborhoodResponse{Center: toNodeResponse(hood.Center), Neighbors: []neighborResponse{}}
	for _, n := range hood.Neighbors {
		item := neighborResponse{Node: toNodeResponse(n.Node), Distance: n.Distance}
		if n.Relationship != nil {
			item.Relationship = string(n.Relationship.Type)
		}
		resp.Neighbors = append(resp.Neighbors, item)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) handlePatterns(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if r.URL.Query().Get("refresh") == "true" {
		h.patterns.Invalidate(userID)
	}
	patterns, err := h.patterns.DetectPatternsForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "failed to detect patterns")
		return
	}
	respondJSON(w, http.StatusOK, patternsResponse{UserID: userID, Patterns: nonNil(patterns)})
}

func (h *APIHandlers) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	anomalies, err := h.patterns.DetectAnomalies(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "failed to detect anomalies")
		return
	}
	respondJSON(w, http.StatusOK, patternsResponse{UserID: userID, Patterns: nonNil(anomalies)})
}

func (h *APIHandlers) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	recs, err := h.patterns.Recommendations(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "failed to build recommendations")
		return
	}
	respondJSON(w, http.StatusOK, recommendationsResponse{UserID: userID, Recommendations: nonNil(recs)})
}

func (h *APIHandlers) handleInsights(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	days := parseInt(r.URL.Query().Get("days"), defaultInsightDays)
	if days <= 0 {
		days = defaultInsightDays
	}
	since := h.nowFn().Add(-time.Duration(days) * 24 * time.Hour)

	insights, err := h.graph.CategoryInsights(r.Context(), userID, since)
	if err != nil {
		h.fail(w, err, "failed to compute category insights")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"userId": userID, "days": days, "categories": nonNil(insights)})
}

func (h *APIHandlers) handleSimilarUsers(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	users, err := h.graph.SimilarUsers(r.Context(), userID, parseInt(r.URL.Query().Get("limit"), 10))
	if err != nil {
		h.fail(w, err, "failed to find similar users")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"userId": userID, "users": nonNil(users)})
}

func (h *APIHandlers) handleMerchantRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	merchants, err := h.graph.MerchantRecommendations(r.Context(), userID, parseInt(r.URL.Query().Get("limit"), 10))
	if err != nil {
		h.fail(w, err, "failed to recommend merchants")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"userId": userID, "merchants": nonNil(merchants)})
}

// fail maps validation errors to 400 and everything else to 500.
func (h *APIHandlers) fail(w http.ResponseWriter, err error, msg string) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

// parseRef reads a "Type:id" node reference.
func parseRef(value string) (domain.NodeRef, error) {
	label, id, ok := strings.Cut(value, ":")
	if !ok || id == "" {
		return domain.NodeRef{}, errors.New(`expected "Type:id"`)
	}
	t, err := domain.ParseNodeType(label)
	if err != nil {
		return domain.NodeRef{}, err
	}
	return domain.NodeRef{ID: id, Type: t}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
