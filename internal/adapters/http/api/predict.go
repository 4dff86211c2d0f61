package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/model"
)

// LegacyPath is the route of the legacy form-compatible endpoint.
const LegacyPath = "/previsao-total-crimes/"

// PredictDependencies defines the interface for prediction operations.
type PredictDependencies interface {
	Predict(ctx context.Context, req *model.Request) (model.Result, error)
	PredictBatch(ctx context.Context, reqs []*model.Request) ([]service.BatchItem, error)
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps PredictDependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandlePredict handles POST /predict (JSON body) and GET /predict (query string).
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if !allowMethod(w, r, op, http.MethodPost, http.MethodGet) {
		return
	}
	req, ok := h.readRequest(w, r, op)
	if !ok {
		return
	}
	res, err := h.deps.Predict(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PredictHandler) readRequest(w http.ResponseWriter, r *http.Request, op string) (*model.Request, bool) {
	var (
		req *model.Request
		err error
	)
	if r.Method == http.MethodGet {
		req, err = ParseQuery(r.URL.Query())
	} else {
		var obj map[string]json.RawMessage
		if !decodeBody(w, r, op, &obj) {
			return nil, false
		}
		req, err = requestFromObject(obj)
	}
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return req, true
}

type batchRequest struct {
	Requests []map[string]json.RawMessage `json:"requests"`
}

type batchItemResponse struct {
	Index int            `json:"index"`
	Value *float64       `json:"predicted_value,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type batchResponse struct {
	Results   []batchItemResponse `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// HandleBatch handles POST /predict/batch requests. Items fail independently;
// the response is 200 whenever the batch itself was accepted.
func (h *PredictHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_batch"
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	var body batchRequest
	if !decodeBody(w, r, op, &body) {
		return
	}

	// Items that cannot be decoded still take their slot in the response.
	reqs := make([]*model.Request, 0, len(body.Requests))
	index := make([]int, 0, len(body.Requests))
	results := make([]batchItemResponse, len(body.Requests))
	for i, obj := range body.Requests {
		results[i].Index = i
		req, err := requestFromObject(obj)
		if err != nil {
			e := toErrorResponse(err)
			results[i].Error = &e
			continue
		}
		reqs = append(reqs, req)
		index = append(index, i)
	}

	if len(body.Requests) == 0 || len(reqs) > 0 {
		items, err := h.deps.PredictBatch(r.Context(), reqs)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		for _, it := range items {
			out := &results[index[it.Index]]
			if it.Err != nil {
				e := toErrorResponse(it.Err)
				out.Error = &e
				continue
			}
			v := it.Result.Value
			out.Value = &v
		}
	}

	resp := batchResponse{Results: results}
	for _, res := range results {
		if res.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type legacyResponse struct {
	Total float64 `json:"TotalCrimesPrevisto"`
}

type legacyError struct {
	Detail string `json:"detail"`
}

// HandleLegacy handles POST /previsao-total-crimes/ with the Portuguese
// payload and response shape of the first version of the service.
func (h *PredictHandler) HandleLegacy(w http.ResponseWriter, r *http.Request) {
	const op = "api.legacy_predict"
	if r.URL.Path != LegacyPath {
		http.NotFound(w, r)
		return
	}
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	var obj map[string]json.RawMessage
	if !decodeBody(w, r, op, &obj) {
		return
	}
	req, err := requestFromObject(obj)
	if err == nil {
		var res model.Result
		res, err = h.deps.Predict(r.Context(), req)
		if err == nil {
			writeJSON(w, http.StatusOK, legacyResponse{Total: res.Value})
			return
		}
	}
	writeJSON(w, StatusFor(err), legacyError{Detail: err.Error()})
}
