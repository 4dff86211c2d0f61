package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/crimecast/internal/adapters/artifact"
	"github.com/okian/crimecast/internal/adapters/http/api"
	"github.com/okian/crimecast/internal/adapters/http/site"
	"github.com/okian/crimecast/internal/adapters/http/swagger"
	app "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/config"
	"github.com/okian/crimecast/internal/domain/registry"
	"github.com/okian/crimecast/pkg/logger"
	"github.com/okian/crimecast/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := initLogging(cfg); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "server exited with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) error {
	opts := []logger.Option{
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
	}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(logger.FileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		}))
	}
	return logger.Init(opts...)
}

// run serves until ctx is cancelled. A missing or broken model artifact does
// not stop the process: the server starts and reports the failure on /healthz.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	reg := registry.New(cfg.ModelPath, artifact.NewFileLoader(),
		registry.WithLogger(log.Named("registry")),
		registry.WithKeepLastGood(cfg.KeepLastGood),
	)
	if err := reg.Load(ctx); err != nil {
		if !registry.IsLoadError(err) {
			return err
		}
		log.Warn(ctx, "starting without a model", logger.String("path", cfg.ModelPath), logger.Error(err))
	}

	svc := newService(cfg, reg, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if cfg.WatchModel {
		go func() {
			if err := reg.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, "artifact watch stopped", logger.Error(err))
			}
		}()
	}
	go reloadOnHangup(ctx, svc, log)
	go startSystemMetricsUpdater(ctx, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("modelPath", cfg.ModelPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}

	log.Info(ctx, "server stopped")
	return nil
}

func newService(cfg *config.Config, reg *registry.Registry, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithRegistry(reg),
		app.WithClampNegative(cfg.ClampNegative),
		app.WithStrictSchema(cfg.StrictSchema),
		app.WithCacheSize(cfg.CacheSize),
		app.WithBatchWorkers(cfg.BatchWorkers),
		app.WithMaxBatchSize(cfg.MaxBatchSize),
	)
}

// newHandler registers every route on a fresh mux.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service) http.Handler {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)
	site.Register(ctx, mux, svc)

	apiServer := api.NewServer(svc,
		api.WithLogger(logger.Get().Named("http")),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithCORSOrigins(cfg.CORSOrigins),
	)
	apiServer.Register(ctx, mux)
	return mux
}

// reloadOnHangup reloads the model on SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, svc *app.Service, log logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info(ctx, "SIGHUP received, reloading model")
			if err := svc.Reload(ctx); err != nil {
				log.Error(ctx, "model reload failed", logger.Error(err))
			}
		}
	}
}

// startSystemMetricsUpdater updates runtime and process metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context, log logger.Logger) {
	collector, err := metrics.NewSystemCollector()
	if err != nil {
		log.Warn(ctx, "system metrics disabled", logger.Error(err))
		return
	}

	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := collector.Collect(); err != nil {
				log.Debug(ctx, "system metrics collection incomplete", logger.Error(err))
			}
		}
	}
}
