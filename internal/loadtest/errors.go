package loadtest

import "errors"

var (
	// ErrInvalidConfig is returned when the run configuration cannot be used.
	ErrInvalidConfig = errors.New("invalid load test config")
	// ErrNotReady is returned when the service has no model to serve.
	ErrNotReady = errors.New("service not ready")
	// ErrVerification is returned when answers disagree with expectations.
	ErrVerification = errors.New("verification failed")
)
