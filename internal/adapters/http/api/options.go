package api

import (
	"golang.org/x/time/rate"

	"github.com/okian/crimecast/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the logger used by the recovery middleware.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimit limits prediction routes to rps requests per second with the
// given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxBodyBytes caps request bodies. Zero disables the cap.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n >= 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithCORSOrigins sets the allowed origins. "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}
