package api

import (
	"context"
	"net/http"

	service "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/model"
)

// CatalogDependencies defines the interface for vocabulary and model queries.
type CatalogDependencies interface {
	ModelInfo(ctx context.Context) (model.ArtifactInfo, error)
	Municipalities() []service.Municipality
}

// CatalogHandler handles read-only lookups.
type CatalogHandler struct {
	deps CatalogDependencies
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps CatalogDependencies) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

type municipalitiesResponse struct {
	Count int                    `json:"count"`
	Items []service.Municipality `json:"items"`
}

// HandleMunicipalities handles GET /municipalities requests.
func (h *CatalogHandler) HandleMunicipalities(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, "api.municipalities", http.MethodGet) {
		return
	}
	items := h.deps.Municipalities()
	writeJSON(w, http.StatusOK, municipalitiesResponse{Count: len(items), Items: items})
}

// HandleModel handles GET /model requests.
func (h *CatalogHandler) HandleModel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, "api.model", http.MethodGet) {
		return
	}
	info, err := h.deps.ModelInfo(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
