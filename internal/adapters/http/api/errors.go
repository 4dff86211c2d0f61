package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/crimecast/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrNotReady         = errors.New("model not loaded")
	ErrReloadFailed     = errors.New("reload failed")
	ErrPanic            = errors.New("internal error")
)

// kindError ties an operation name to a sentinel kind and an optional cause.
type kindError struct {
	op   string
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.err)
}

func (e *kindError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// WrapKind annotates err with op and kind. errors.Is matches both kind and err.
func WrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, err: err}
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind}
}

// StatusFor maps a prediction error to its HTTP status.
func StatusFor(err error) int {
	switch model.Kind(err) {
	case "":
		return http.StatusOK
	case model.KindModelUnavailable:
		return http.StatusServiceUnavailable
	case model.KindInvalidInput:
		return http.StatusBadRequest
	default:
		// schema mismatch, inference and internal errors are server faults
		return http.StatusInternalServerError
	}
}
