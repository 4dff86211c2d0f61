package service

import (
	"github.com/okian/crimecast/internal/domain/features"
	"github.com/okian/crimecast/internal/domain/vocabulary"
	"github.com/okian/crimecast/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry sets the registry that provides the serving artifact.
func WithRegistry(r ModelRegistry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithEncoder replaces the default municipality vocabulary.
func WithEncoder(enc *vocabulary.Encoder) Option {
	return func(s *Service) {
		if enc != nil {
			s.encoder = enc
		}
	}
}

// WithBuilder replaces the feature builder. It overrides WithStrictSchema and WithFillValue.
func WithBuilder(b *features.Builder) Option {
	return func(s *Service) {
		s.builder = b
	}
}

// WithStrictSchema makes a missing expected column an error instead of a fill.
func WithStrictSchema(strict bool) Option {
	return func(s *Service) {
		s.strictSchema = strict
	}
}

// WithFillValue sets the value used for missing expected columns.
func WithFillValue(v float64) Option {
	return func(s *Service) {
		s.fillValue = v
	}
}

// WithClampNegative enables the ClampNegative post-processing step.
func WithClampNegative(enabled bool) Option {
	return func(s *Service) {
		s.clampNegative = enabled
	}
}

// WithCacheSize sets the number of cached results. Zero disables the cache.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.cacheSize = size
		}
	}
}

// WithBatchWorkers sets the number of batch worker goroutines.
func WithBatchWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.batchWorkers = count
		}
	}
}

// WithMaxBatchSize caps the number of requests in one batch.
func WithMaxBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.maxBatchSize = size
		}
	}
}
