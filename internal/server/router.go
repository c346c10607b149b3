package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vanshika/fingraph/internal/metrics"
)

// RouterDependencies collects handler dependencies.
type RouterDependencies struct {
	Health  HealthService
	API     *APIHandlers
	Metrics http.Handler
	// Recorder counts requests per route; nil disables request metrics.
	Recorder         *metrics.Metrics
	AllowedOrigins   []string
	AllowCredentials bool
}

// NewRouter wires the operational and read-only analytics routes.
func NewRouter(logger *slog.Logger, deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", healthHandler(logger, deps.Health))
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	if deps.API != nil {
		mux.HandleFunc("GET /statistics", deps.API.handleStatistics)
		mux.HandleFunc("GET /search", deps.API.handleSearch)
		mux.HandleFunc("GET /graph/shortest-path", deps.API.handleShortestPath)
		mux.HandleFunc("GET /graph/neighbors/{type}/{id}", deps.API.handleNeighbors)
		mux.HandleFunc("GET /users/{id}/patterns", deps.API.handlePatterns)
		mux.HandleFunc("GET /users/{id}/anomalies", deps.API.handleAnomalies)
		mux.HandleFunc("GET /users/{id}/recommendations", deps.API.handleRecommendations)
		mux.HandleFunc("GET /users/{id}/insights", deps.API.handleInsights)
		mux.HandleFunc("GET /users/{id}/similar", deps.API.handleSimilarUsers)
		mux.HandleFunc("GET /users/{id}/merchant-recommendations", deps.API.handleMerchantRecommendations)
	}

	handler := observe(logger, deps.Recorder, mux)
	if len(deps.AllowedOrigins) > 0 {
		handler = corsMiddleware(deps.AllowedOrigins, deps.AllowCredentials)(handler)
	}
	return handler
}

// observe logs and counts each request under its route pattern, so user ids never become labels.
// Probe and scrape traffic is logged at debug.
func observe(logger *slog.Logger, m *metrics.Metrics, mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		_, route := mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		m.HTTPRequestServed(route, rec.status, elapsed.Seconds())

		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		logger.Log(r.Context(), level, "request completed",
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func corsMiddleware(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	normalized := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		normalized[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || (!containsOrigin(normalized, origin) && !containsOrigin(normalized, "*")) {
				if r.Method == http.MethodOptions {
					// Reject bare pre-flight if origin is not whitelisted.
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if allowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func containsOrigin(set map[string]struct{}, origin string) bool {
	_, ok := set[origin]
	return ok
}
