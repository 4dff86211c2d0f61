package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/pkg/metrics"
)

// HealthDependencies defines the interface for health queries.
type HealthDependencies interface {
	Health(ctx context.Context) service.HealthStatus
}

// HealthHandler handles health, readiness and metrics requests.
type HealthHandler struct {
	deps    HealthDependencies
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps HealthDependencies) *HealthHandler {
	return &HealthHandler{
		deps: deps,
		// Use our custom metrics registry to serve metrics
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz requests. It always answers 200 so the
// process can be diagnosed without a model; model_loaded carries readiness.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, "api.healthz", http.MethodGet, http.MethodHead) {
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Health(r.Context()))
}

type readyResponse struct {
	Status     string `json:"status"`
	Generation uint64 `json:"generation"`
}

// HandleReady handles GET /readyz requests: 200 once a model serves, 503 before.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	const op = "api.readyz"
	if !allowMethod(w, r, op, http.MethodGet, http.MethodHead) {
		return
	}
	st := h.deps.Health(r.Context())
	if !st.ModelLoaded {
		err := NewKind(op, ErrNotReady)
		if st.Reason != "" {
			err = WrapKind(op, ErrNotReady, errors.New(st.Reason))
		}
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, readyResponse{Status: "ready", Generation: st.Generation})
}

// HandleMetrics handles GET /metrics requests with the Prometheus exposition.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
