package metrics

import "errors"

var (
	// ErrCollectorUnavailable is returned when process statistics cannot be read at all.
	ErrCollectorUnavailable = errors.New("system collector unavailable")
	// ErrObserveFailed wraps a failed sample; earlier gauges keep their values.
	ErrObserveFailed = errors.New("system metrics sample failed")
)
