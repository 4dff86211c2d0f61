package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// allowMethod writes a 405 and returns false when r.Method is not listed.
func allowMethod(w http.ResponseWriter, r *http.Request, op string, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
	return false
}

// decodeBody decodes the JSON body into v and writes the error response on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", WrapKind(op, ErrPayloadTooLarge, err))
		return false
	}
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	return false
}
