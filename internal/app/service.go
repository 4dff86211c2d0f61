// Package service provides the prediction service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	workerpool "github.com/okian/crimecast/internal/adapters/worker"
	"github.com/okian/crimecast/internal/domain/features"
	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/internal/domain/registry"
	"github.com/okian/crimecast/internal/domain/vocabulary"
	"github.com/okian/crimecast/pkg/logger"
	"github.com/okian/crimecast/pkg/metrics"
)

// Default service configuration.
const (
	defaultCacheSize    = 4096
	defaultMaxBatchSize = 500
	roundingPlaces      = 2
	mantissaBits        = 53
	maxFractionDigits   = 1074
)

// ModelRegistry is the part of the registry the service depends on.
type ModelRegistry interface {
	Current() *registry.Snapshot
	Reload(ctx context.Context) error
	Path() string
}

// Service turns prediction requests into rounded model outputs.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry ModelRegistry
	encoder  *vocabulary.Encoder
	builder  *features.Builder
	cache    *lru.Cache[string, float64]
	pool     *workerpool.Pool

	// Configuration
	clampNegative bool
	strictSchema  bool
	fillValue     float64
	cacheSize     int
	batchWorkers  int
	maxBatchSize  int

	// State
	started     bool
	predictions atomic.Uint64
	failures    atomic.Uint64
	cacheHits   atomic.Uint64

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		encoder:      vocabulary.Default(),
		cacheSize:    defaultCacheSize,
		batchWorkers: runtime.NumCPU(),
		maxBatchSize: defaultMaxBatchSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.builder == nil {
		s.builder = features.NewBuilder(
			features.WithStrict(s.strictSchema),
			features.WithFillValue(s.fillValue),
		)
	}
	if s.cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		s.cache, _ = lru.New[string, float64](s.cacheSize)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	return s
}

// Start launches the batch worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.pool = workerpool.NewPool(s.batchWorkers, s, workerpool.WithPoolLogger(s.logger.Named("batch")))
	s.pool.Start(ctx)
	s.started = true

	s.logger.Info(ctx, "prediction service started",
		logger.Int("batchWorkers", s.pool.Size()),
		logger.Int("maxBatchSize", s.maxBatchSize),
		logger.Int("cacheSize", s.cacheSize),
		logger.Bool("clampNegative", s.clampNegative),
		logger.Bool("strictSchema", s.strictSchema),
	)
	return nil
}

// Stop shuts the worker pool down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.pool.Stop()
	s.started = false
	s.logger.Info(context.Background(), "prediction service stopped")
}

// Predict validates req, runs the serving artifact and returns the rounded value.
//
// Checks run in a fixed order: model availability, municipality, numeric
// fields, row shape, inference. The first failure is returned; nothing is retried.
func (s *Service) Predict(ctx context.Context, req *model.Request) (model.Result, error) {
	start := time.Now()
	res, err := s.predict(ctx, req)
	metrics.RecordPredictionLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordPrediction(outcome(err))
	s.predictions.Add(1)
	if err != nil {
		s.failures.Add(1)
		if kind := model.Kind(err); kind != model.KindInvalidInput {
			metrics.RecordErrorByComponent("service", kind)
			s.logger.Warn(ctx, "prediction failed", logger.String("kind", kind), logger.Error(err))
		}
	}
	return res, err
}

func (s *Service) predict(ctx context.Context, req *model.Request) (model.Result, error) {
	snap := s.snapshot()
	if !snap.Ready() {
		return model.Result{}, unavailable(snap)
	}
	if req == nil {
		return model.Result{}, model.NewFieldError("request", model.ErrMissingValue)
	}

	code, err := s.encoder.Encode(req.Municipality)
	if err != nil {
		return model.Result{}, model.NewFieldError("municipality", err)
	}
	if err := validateNumbers(req); err != nil {
		return model.Result{}, err
	}

	row, al, err := s.builder.Shape(snap.Artifact, s.builder.Build(req, code))
	if err != nil {
		return model.Result{}, err
	}
	metrics.RecordAlignment(len(al.Filled), len(al.Dropped))
	if len(al.Filled) > 0 {
		s.logger.Debug(ctx, "expected columns filled with default value", logger.Any("columns", al.Filled))
	}

	raw, err := s.infer(ctx, snap, row)
	if err != nil {
		return model.Result{}, err
	}
	return model.Result{Value: s.postProcess(raw)}, nil
}

func (s *Service) snapshot() *registry.Snapshot {
	if s.registry == nil {
		return nil
	}
	return s.registry.Current()
}

func unavailable(snap *registry.Snapshot) error {
	switch {
	case snap == nil:
		return fmt.Errorf("%w: no registry configured", model.ErrModelUnavailable)
	case snap.Reason != "":
		return fmt.Errorf("%w: %s", model.ErrModelUnavailable, snap.Reason)
	default:
		return fmt.Errorf("%w: model %s", model.ErrModelUnavailable, snap.State)
	}
}

// validateNumbers returns a FieldError for the first missing or non-finite
// numeric field in canonical order, then for extras in name order.
func validateNumbers(req *model.Request) error {
	for _, f := range req.NumericFields() {
		if f.Value == nil {
			return model.NewFieldError(f.Name, model.ErrMissingValue)
		}
		if !isFinite(*f.Value) {
			return model.NewFieldError(f.Name, model.ErrNotFinite)
		}
	}
	var bad string
	for name, v := range req.Extra {
		if !isFinite(v) && (bad == "" || name < bad) {
			bad = name
		}
	}
	if bad != "" {
		return model.NewFieldError("extra."+bad, model.ErrNotFinite)
	}
	return nil
}

// infer calls the artifact, consulting the cache first. Inference is pure, so
// a result is reusable for the same artifact generation and row.
func (s *Service) infer(ctx context.Context, snap *registry.Snapshot, row *model.Row) (float64, error) {
	var key string
	if s.cache != nil {
		key = strconv.FormatUint(snap.Generation, 10) + "|" + row.Key()
		if v, ok := s.cache.Get(key); ok {
			metrics.RecordCacheHit()
			s.cacheHits.Add(1)
			return v, nil
		}
		metrics.RecordCacheMiss()
	}

	start := time.Now()
	v, err := safePredict(ctx, snap.Artifact, row)
	metrics.RecordInferenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		return 0, &model.InferenceError{Err: err}
	}
	if !isFinite(v) {
		return 0, &model.InferenceError{Err: fmt.Errorf("non-finite output %v", v)}
	}

	if s.cache != nil {
		s.cache.Add(key, v)
	}
	return v, nil
}

func safePredict(ctx context.Context, a model.Artifact, row *model.Row) (v float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("artifact panicked: %v", p)
		}
	}()
	return a.Predict(ctx, row)
}

// postProcess applies the optional clamp, then rounds to two decimals.
func (s *Service) postProcess(v float64) float64 {
	if s.clampNegative {
		v = ClampNegative(v)
	}
	out := Round(v)
	if out == 0 {
		return 0 // no negative zero
	}
	return out
}

// Round rounds v to two decimals, half to even, on the exact binary value of
// v. 0.125 is a true tie and becomes 0.12; 2.675 is stored slightly below the
// tie and becomes 2.67.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return exactDecimal(v).RoundBank(roundingPlaces).InexactFloat64()
}

// exactDecimal expands v without the shortest-representation shortcut
// NewFromFloat takes.
func exactDecimal(v float64) decimal.Decimal {
	_, exp := math.Frexp(v)
	digits := min(max(mantissaBits-exp, 0), maxFractionDigits)
	return decimal.RequireFromString(strconv.FormatFloat(v, 'f', digits, 64))
}

// ClampNegative maps negative predictions to zero. Counts cannot be negative,
// but a linear model can extrapolate below zero.
func ClampNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func outcome(err error) string {
	switch model.Kind(err) {
	case "":
		return metrics.OutcomeSuccess
	case model.KindModelUnavailable:
		return metrics.OutcomeModelUnavailable
	case model.KindInvalidInput:
		return metrics.OutcomeInvalidInput
	case model.KindSchemaMismatch:
		return metrics.OutcomeSchemaMismatch
	case model.KindInference:
		return metrics.OutcomeInferenceError
	default:
		return metrics.OutcomeInternal
	}
}

// Sentinel errors of batch predictions. Both are client errors.
var (
	ErrEmptyBatch    = fmt.Errorf("%w: batch is empty", model.ErrInvalidInput)
	ErrBatchTooLarge = fmt.Errorf("%w: batch too large", model.ErrInvalidInput)
)

// BatchItem is the outcome of one request of a batch.
type BatchItem struct {
	Index  int
	Result model.Result
	Err    error
}

// PredictBatch predicts every request, spreading the work over the worker
// pool. Items fail independently; the returned error covers the batch as a whole.
func (s *Service) PredictBatch(ctx context.Context, reqs []*model.Request) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(reqs) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: %d requests, limit %d", ErrBatchTooLarge, len(reqs), s.maxBatchSize)
	}
	if snap := s.snapshot(); !snap.Ready() {
		return nil, unavailable(snap)
	}
	metrics.RecordBatchSize(len(reqs))

	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()

	items := make([]BatchItem, len(reqs))
	if pool == nil {
		for i, req := range reqs {
			res, err := s.Predict(ctx, req)
			items[i] = BatchItem{Index: i, Result: res, Err: err}
		}
		return items, nil
	}
	for i, o := range pool.Predict(ctx, reqs) {
		err := o.Err
		if errors.Is(err, workerpool.ErrPoolStopped) {
			err = fmt.Errorf("%w: %w", model.ErrModelUnavailable, err)
		}
		items[i] = BatchItem{Index: o.Index, Result: o.Result, Err: err}
	}
	return items, nil
}

// Reload asks the registry to load the artifact again and drops cached results.
func (s *Service) Reload(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("%w: no registry configured", model.ErrModelUnavailable)
	}
	err := s.registry.Reload(ctx)
	if s.cache != nil {
		s.cache.Purge()
	}
	return err
}

// HealthStatus describes the serving state. Computing it never loads anything.
type HealthStatus struct {
	Status      string              `json:"status"`
	ModelLoaded bool                `json:"model_loaded"`
	ModelPath   string              `json:"model_path"`
	State       string              `json:"state"`
	Reason      string              `json:"reason,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	Generation  uint64              `json:"generation"`
	LoadedAt    *time.Time          `json:"loaded_at,omitempty"`
	Model       *model.ArtifactInfo `json:"model,omitempty"`
	// Vocabulary fingerprints the municipality list requests are encoded with.
	Vocabulary string `json:"vocabulary_fingerprint"`
}

// Health reports the registry state. The process is "ok" even without a model
// so that it can be diagnosed; readiness is ModelLoaded.
func (s *Service) Health(_ context.Context) HealthStatus {
	h := HealthStatus{Status: "ok", State: registry.Unloaded.String(), Vocabulary: s.encoder.Fingerprint()}
	if s.registry == nil {
		h.Reason = "no registry configured"
		return h
	}
	h.ModelPath = s.registry.Path()
	snap := s.registry.Current()
	if snap == nil {
		return h
	}
	h.ModelLoaded = snap.Ready()
	h.State = snap.State.String()
	h.Reason = snap.Reason
	h.LastError = snap.LastError
	h.Generation = snap.Generation
	if h.ModelLoaded {
		at := snap.LoadedAt
		info := snap.Info
		h.LoadedAt = &at
		h.Model = &info
	}
	return h
}

// ModelInfo describes the serving artifact.
func (s *Service) ModelInfo(_ context.Context) (model.ArtifactInfo, error) {
	snap := s.snapshot()
	if !snap.Ready() {
		return model.ArtifactInfo{}, unavailable(snap)
	}
	return snap.Info, nil
}

// Municipality is one vocabulary entry.
type Municipality struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// Municipalities lists the vocabulary in code order.
func (s *Service) Municipalities() []Municipality {
	names := s.encoder.Names()
	out := make([]Municipality, len(names))
	for i, n := range names {
		out[i] = Municipality{Code: i, Name: n}
	}
	return out
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"predictions":   s.predictions.Load(),
		"failures":      s.failures.Load(),
		"cacheHits":     s.cacheHits.Load(),
		"maxBatchSize":  s.maxBatchSize,
		"clampNegative": s.clampNegative,
		"strictSchema":  s.strictSchema,
		"vocabulary":    s.encoder.Len(),
	}
	if s.cache != nil {
		stats["cacheLength"] = s.cache.Len()
	}
	if s.pool != nil {
		stats["batchWorkers"] = s.pool.Size()
		stats["busyWorkers"] = s.pool.Busy()
	}
	if snap := s.snapshot(); snap != nil {
		stats["modelState"] = snap.State.String()
		stats["modelGeneration"] = snap.Generation
	}
	return stats
}
