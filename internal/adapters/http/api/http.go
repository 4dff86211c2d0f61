// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	service "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the prediction service.
type Dependencies interface {
	StatsProvider

	Predict(ctx context.Context, req *model.Request) (model.Result, error)
	PredictBatch(ctx context.Context, reqs []*model.Request) ([]service.BatchItem, error)

	// Read operations expose the serving state.
	Health(ctx context.Context) service.HealthStatus
	ModelInfo(ctx context.Context) (model.ArtifactInfo, error)
	Municipalities() []service.Municipality

	// Reload re-reads the model artifact.
	Reload(ctx context.Context) error
}

// Server wires HTTP routes for the prediction API.
type Server struct {
	predictHandler *PredictHandler
	healthHandler  *HealthHandler
	catalogHandler *CatalogHandler
	reloadHandler  *ReloadHandler
	statsHandler   *StatsHandler

	logger       logger.Logger
	limiter      *rate.Limiter
	maxBodyBytes int64
	corsOrigins  []string
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		predictHandler: NewPredictHandler(deps),
		healthHandler:  NewHealthHandler(deps),
		catalogHandler: NewCatalogHandler(deps),
		reloadHandler:  NewReloadHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		maxBodyBytes:   defaultMaxBodyBytes,
		corsOrigins:    []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	// Prediction routes go through the rate limiter; health checks never do.
	mux.Handle("/predict", s.wrap("predict", s.predictHandler.HandlePredict, true))
	mux.Handle("/predict/batch", s.wrap("predict_batch", s.predictHandler.HandleBatch, true))
	mux.Handle(LegacyPath, s.wrap("legacy_predict", s.predictHandler.HandleLegacy, true))

	mux.Handle("/healthz", s.wrap("healthz", s.healthHandler.HandleHealth, false))
	mux.Handle("/readyz", s.wrap("readyz", s.healthHandler.HandleReady, false))
	mux.Handle("/metrics", s.wrap("metrics", s.healthHandler.HandleMetrics, false))
	mux.Handle("/municipalities", s.wrap("municipalities", s.catalogHandler.HandleMunicipalities, false))
	mux.Handle("/model", s.wrap("model", s.catalogHandler.HandleModel, false))
	mux.Handle("/stats", s.wrap("stats", s.statsHandler.HandleStats, false))
	mux.Handle("/admin/reload", s.wrap("admin_reload", s.reloadHandler.HandleReload, false))
}

// wrap applies the middleware chain shared by every route. The outermost
// middleware runs first.
func (s *Server) wrap(endpoint string, h http.HandlerFunc, limited bool) http.Handler {
	mws := []Middleware{
		RequestID(),
		Recover(s.logger),
		CORS(s.corsOrigins),
	}
	if limited && s.limiter != nil {
		mws = append(mws, RateLimit(s.limiter, endpoint))
	}
	mws = append(mws, MaxBytes(s.maxBodyBytes))
	return Chain(MetricsMiddleware(h, endpoint), mws...)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps a prediction error to its status code and body.
func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), toErrorResponse(err))
}

func toErrorResponse(err error) errorResponse {
	return errorResponse{Code: model.Kind(err), Message: err.Error(), Field: model.Field(err)}
}
