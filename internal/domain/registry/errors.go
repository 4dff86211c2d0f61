package registry

import "errors"

// Sentinel errors for registry operations.
var (
	ErrNoPath     = errors.New("no model path configured")
	ErrNoLoader   = errors.New("no artifact loader configured")
	ErrLoadFailed = errors.New("artifact load failed")
)
