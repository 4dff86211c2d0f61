package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds of the prediction path. These allow errors.Is from callers.
var (
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrInference        = errors.New("inference error")

	// Causes carried by FieldError.
	ErrMissingValue = errors.New("value is required")
	ErrNotFinite    = errors.New("value must be a finite number")
)

// Error kinds as reported to clients.
const (
	KindModelUnavailable = "model_unavailable"
	KindInvalidInput     = "invalid_input"
	KindSchemaMismatch   = "schema_mismatch"
	KindInference        = "inference_error"
	KindInternal         = "internal"
)

// FieldError reports an invalid request field. It matches ErrInvalidInput
// and whatever cause it wraps.
type FieldError struct {
	Field string
	Err   error
}

// NewFieldError returns a FieldError for field caused by err.
func NewFieldError(field string, err error) *FieldError {
	return &FieldError{Field: field, Err: err}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid input: field %s: %v", e.Field, e.Err)
}

// Unwrap exposes both the invalid input kind and the cause.
func (e *FieldError) Unwrap() []error {
	return []error{ErrInvalidInput, e.Err}
}

// InferenceError wraps a failure raised by the artifact itself.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference error: %v", e.Err)
}

// Unwrap exposes both the inference kind and the cause.
func (e *InferenceError) Unwrap() []error {
	return []error{ErrInference, e.Err}
}

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownCategory):
		return KindInvalidInput
	case errors.Is(err, ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, ErrInference):
		return KindInference
	default:
		return KindInternal
	}
}

// Field returns the offending field name when err is a FieldError.
func Field(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}
