package api

import (
	"context"
	"net/http"

	service "github.com/okian/crimecast/internal/app"
)

// ReloadDependencies defines the interface for reload operations.
type ReloadDependencies interface {
	Reload(ctx context.Context) error
	Health(ctx context.Context) service.HealthStatus
}

// ReloadHandler handles explicit model reloads.
type ReloadHandler struct {
	deps ReloadDependencies
}

// NewReloadHandler creates a new reload handler.
func NewReloadHandler(deps ReloadDependencies) *ReloadHandler {
	return &ReloadHandler{deps: deps}
}

// HandleReload handles POST /admin/reload requests. On failure the body still
// reports whether a previous model keeps serving.
func (h *ReloadHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_reload"
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	if err := h.deps.Reload(r.Context()); err != nil {
		st := h.deps.Health(r.Context())
		writeJSON(w, http.StatusInternalServerError, reloadFailure{
			errorResponse: errorResponse{Code: "reload_failed", Message: WrapKind(op, ErrReloadFailed, err).Error()},
			ModelLoaded:   st.ModelLoaded,
			Generation:    st.Generation,
		})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Health(r.Context()))
}

type reloadFailure struct {
	errorResponse
	ModelLoaded bool   `json:"model_loaded"`
	Generation  uint64 `json:"generation"`
}
