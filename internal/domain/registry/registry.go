// Package registry owns the lifecycle of the serving model artifact.
//
// A Registry publishes an immutable Snapshot through an atomic pointer, so
// readers never block on a load in progress and never observe a half-loaded
// artifact. Loads are serialized. A failed load is logged and recorded in the
// snapshot; it never aborts the process. By default a failed load moves the
// registry to Failed; WithKeepLastGood keeps the previous artifact instead.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/pkg/logger"
	"github.com/okian/crimecast/pkg/metrics"
)

// State is the registry lifecycle state.
type State int

const (
	Unloaded State = iota
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loader reads an artifact from path.
type Loader interface {
	Load(ctx context.Context, path string) (model.Artifact, model.ArtifactInfo, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (model.Artifact, model.ArtifactInfo, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (model.Artifact, model.ArtifactInfo, error) {
	return f(ctx, path)
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	State    State
	Artifact model.Artifact
	Info     model.ArtifactInfo
	Path     string
	// Reason explains a Failed state.
	Reason string
	// LastError is the most recent failed reload while a previous artifact
	// kept serving (keep-last-good only). Cleared by the next load.
	LastError  string
	Generation uint64
	LoadedAt   time.Time
	// Attempts counts load attempts, successful or not.
	Attempts uint64
}

// Ready reports whether an artifact is available for inference.
func (s *Snapshot) Ready() bool {
	return s != nil && s.State == Loaded && s.Artifact != nil
}

// Registry holds the serving artifact.
type Registry struct {
	path         string
	loader       Loader
	logger       logger.Logger
	debounce     time.Duration
	keepLastGood bool

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes loads
}

// New creates a registry in the Unloaded state. Nothing is read until Load.
func New(path string, loader Loader, opts ...Option) *Registry {
	r := &Registry{
		path:     path,
		loader:   loader,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("registry")
	}
	r.current.Store(&Snapshot{State: Unloaded, Path: path})
	return r
}

// Path returns the configured artifact location.
func (r *Registry) Path() string { return r.path }

// Current returns the latest snapshot. It never triggers a load.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Load performs the initial load. It is equivalent to Reload and exists so
// start-up code reads naturally.
func (r *Registry) Load(ctx context.Context) error {
	return r.Reload(ctx)
}

// Reload reads the artifact again and swaps the result in atomically. A
// failure moves the registry to Failed, so every request fails the same way
// until a later load succeeds. With WithKeepLastGood a previous artifact keeps
// serving instead and the failure is recorded in Snapshot.LastError.
func (r *Registry) Reload(ctx context.Context) error {
	return r.reload(ctx, r.keepLastGood)
}

func (r *Registry) reload(ctx context.Context, keepLastGood bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	start := time.Now()
	artifact, info, err := r.load(ctx)
	metrics.RecordModelLoadDuration(float64(time.Since(start).Microseconds()) / 1000)

	next := *prev
	next.Attempts++
	if err != nil {
		metrics.RecordModelReload("failure")
		metrics.RecordErrorByComponent("registry", "load_failed")
		if keepLastGood && prev.Ready() {
			next.LastError = err.Error()
			r.current.Store(&next)
			r.logger.Error(ctx, "artifact reload failed, previous artifact keeps serving",
				logger.String("path", r.path),
				logger.Int("generation", int(prev.Generation)),
				logger.Error(err),
			)
			return err
		}
		next.State = Failed
		next.Artifact = nil
		next.Info = model.ArtifactInfo{}
		next.Reason = err.Error()
		next.LastError = ""
		r.current.Store(&next)
		metrics.UpdateModelLoaded(false)
		r.logger.Error(ctx, "artifact load failed", logger.String("path", r.path), logger.Error(err))
		return err
	}

	next.State = Loaded
	next.Artifact = artifact
	next.Info = info
	next.Reason = ""
	next.LastError = ""
	next.Generation = prev.Generation + 1
	next.LoadedAt = time.Now()
	r.current.Store(&next)

	metrics.RecordModelReload("success")
	metrics.UpdateModelLoaded(true)
	metrics.UpdateModelGeneration(next.Generation)
	metrics.UpdateModelLoadedTime(next.LoadedAt.Unix())
	r.logger.Info(ctx, "artifact loaded",
		logger.String("path", r.path),
		logger.String("name", info.Name),
		logger.String("version", info.Version),
		logger.String("kind", info.Kind),
		logger.String("checksum", info.Checksum),
		logger.Int("generation", int(next.Generation)),
	)
	return nil
}

func (r *Registry) load(ctx context.Context) (artifact model.Artifact, info model.ArtifactInfo, err error) {
	if r.path == "" {
		return nil, info, ErrNoPath
	}
	if r.loader == nil {
		return nil, info, ErrNoLoader
	}
	if err := ctx.Err(); err != nil {
		return nil, info, err
	}
	defer func() {
		if p := recover(); p != nil {
			artifact = nil
			err = fmt.Errorf("%w: loader panicked: %v", ErrLoadFailed, p)
		}
	}()
	artifact, info, err = r.loader.Load(ctx, r.path)
	if err != nil {
		return nil, info, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if artifact == nil {
		return nil, info, fmt.Errorf("%w: loader returned no artifact", ErrLoadFailed)
	}
	return artifact, info, nil
}

// IsLoadError reports whether err came from a failed artifact load.
func IsLoadError(err error) bool {
	return errors.Is(err, ErrLoadFailed) || errors.Is(err, ErrNoPath) || errors.Is(err, ErrNoLoader)
}
