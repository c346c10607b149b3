package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vanshika/fingraph/internal/graph"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// GraphHealthService verifies graph connectivity as part of health checks.
type GraphHealthService struct {
	Client graph.Client
}

// Probe implements the HealthService interface.
func (s GraphHealthService) Probe(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.VerifyConnectivity(ctx)
}

// Pinger is satisfied by the Redis transport.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TransportHealthService verifies the event transport is reachable.
type TransportHealthService struct {
	Transport Pinger
}

func (s TransportHealthService) Probe(ctx context.Context) error {
	if s.Transport == nil {
		return nil
	}
	return s.Transport.Ping(ctx)
}

// NamedProbe labels a probe in the combined failure message.
type NamedProbe struct {
	Name  string
	Probe HealthService
}

// CompositeHealthService runs every probe and reports all failures together.
type CompositeHealthService []NamedProbe

func (c CompositeHealthService) Probe(ctx context.Context) error {
	var errs []error
	for _, p := range c {
		if err := p.Probe.Probe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Report probes each dependency and returns its status keyed by name, "ok" or the error text.
func (c CompositeHealthService) Report(ctx context.Context) map[string]string {
	out := make(map[string]string, len(c))
	for _, p := range c {
		out[p.Name] = "ok"
		if err := p.Probe.Probe(ctx); err != nil {
			out[p.Name] = err.Error()
		}
	}
	return out
}

const healthTimeout = 2 * time.Second

func healthHandler(logger *slog.Logger, health HealthService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		payload := map[string]any{"status": "ok"}
		if health == nil {
			respondJSON(w, http.StatusOK, payload)
			return
		}

		if composite, ok := health.(CompositeHealthService); ok {
			checks := composite.Report(ctx)
			payload["checks"] = checks
			for name, state := range checks {
				if state != "ok" {
					logger.Error("health probe failed", "probe", name, "error", state)
					payload["status"] = "degraded"
				}
			}
		} else if err := health.Probe(ctx); err != nil {
			logger.Error("health probe failed", "error", err)
			payload["status"] = "degraded"
			payload["error"] = err.Error()
		}

		status := http.StatusOK
		if payload["status"] != "ok" {
			status = http.StatusServiceUnavailable
		}
		respondJSON(w, status, payload)
	})
}
