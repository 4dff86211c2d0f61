package registry

import (
	"time"

	"github.com/okian/crimecast/pkg/logger"
)

const defaultDebounce = 250 * time.Millisecond

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithLogger sets a custom logger for the registry.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDebounce sets how long Watch waits for file events to settle before reloading.
func WithDebounce(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// WithKeepLastGood keeps the previous artifact serving when a reload fails.
// Watch always behaves this way.
func WithKeepLastGood(keep bool) Option {
	return func(r *Registry) {
		r.keepLastGood = keep
	}
}
