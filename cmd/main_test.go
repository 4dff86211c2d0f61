package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/crimecast/internal/adapters/artifact"
	"github.com/okian/crimecast/internal/config"
	"github.com/okian/crimecast/internal/domain/registry"
	"github.com/okian/crimecast/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const recifeBody = `{"year":2024,"municipality":"Recife","ideb":5.2,
"ef_docentes":1000,"ef_escolas":200,"ef_matriculas":30000,
"ei_docentes":500,"ei_escolas":100,"ei_matriculas":15000,
"em_docentes":800,"em_escolas":150,"em_matriculas":25000}`

func init() {
	_ = logger.Init(logger.WithLevel("error"))
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("CRIMECAST_ADDR", ":8080")
			_ = os.Setenv("CRIMECAST_BATCH_WORKERS", "4")
			_ = os.Setenv("CRIMECAST_CLAMP_NEGATIVE", "true")
			defer func() {
				_ = os.Unsetenv("CRIMECAST_ADDR")
				_ = os.Unsetenv("CRIMECAST_BATCH_WORKERS")
				_ = os.Unsetenv("CRIMECAST_CLAMP_NEGATIVE")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BatchWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.ClampNegative, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When initializing logging with a file", func() {
			cfg := config.New()
			cfg.LogLevel = "error"
			cfg.LogFile = filepath.Join(t.TempDir(), "logs", "crimecast.log")
			defer func() { _ = logger.Init(logger.WithLevel("error")) }()

			convey.Convey("Then the log directory is created", func() {
				convey.So(initLogging(cfg), convey.ShouldBeNil)
				logger.Get().Error(context.Background(), "written to file")
				convey.So(logger.Sync(), convey.ShouldBeNil)

				data, err := os.ReadFile(cfg.LogFile)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(data), convey.ShouldContainSubstring, "written to file")
			})
		})

		convey.Convey("When initializing logging with an unknown format", func() {
			cfg := config.New()
			cfg.LogFormat = "xml"
			defer func() { _ = logger.Init(logger.WithLevel("error")) }()

			convey.Convey("Then it fails", func() {
				convey.So(initLogging(cfg), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestHandlerWiring(t *testing.T) {
	convey.Convey("Given a service serving the bundled model", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.ModelPath = filepath.Join("..", "models", "model.json")
		cfg.BatchWorkers = 2

		reg := registry.New(cfg.ModelPath, artifact.NewFileLoader(), registry.WithLogger(logger.Nop()))
		convey.So(reg.Load(ctx), convey.ShouldBeNil)

		svc := newService(cfg, reg, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		handler := newHandler(ctx, cfg, svc)

		convey.Convey("When predicting through the mux", func() {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(recifeBody))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			convey.Convey("Then the scenario value is returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var body map[string]float64
				convey.So(json.Unmarshal(w.Body.Bytes(), &body), convey.ShouldBeNil)
				convey.So(body["predicted_value"], convey.ShouldEqual, 881.9)
			})
		})

		convey.Convey("When calling the legacy route", func() {
			legacy := strings.NewReplacer(`"year"`, `"ano"`, `"municipality"`, `"municipio"`).Replace(recifeBody)
			req := httptest.NewRequest(http.MethodPost, "/previsao-total-crimes/", strings.NewReader(legacy))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			convey.Convey("Then the legacy body is returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "TotalCrimesPrevisto")
			})
		})

		convey.Convey("When probing the other routes", func() {
			for _, path := range []string{"/healthz", "/readyz", "/metrics", "/municipalities", "/model", "/stats", "/", "/ui", "/api-docs", "/openapi.yaml"} {
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should return when the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx, logger.Nop())
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing the SIGHUP reloader", func() {
			cfg := config.New()
			reg := registry.New(filepath.Join("..", "models", "model.json"), artifact.NewFileLoader(), registry.WithLogger(logger.Nop()))
			svc := newService(cfg, reg, logger.Nop())

			convey.Convey("Then it should return when the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				defer cancel()

				convey.So(func() {
					reloadOnHangup(ctx, svc, logger.Nop())
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When running the server without a model", func() {
			cfg := config.New()
			cfg.Addr = "127.0.0.1:0"
			cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")
			cfg.ShutdownTimeout = time.Second

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then it starts anyway and shuts down cleanly", func() {
				convey.So(run(ctx, cfg), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is already cancelled before the model loads", func() {
			cfg := config.New()
			cfg.Addr = "127.0.0.1:0"
			cfg.ModelPath = filepath.Join("..", "models", "model.json")

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			convey.Convey("Then run returns the cancellation instead of serving", func() {
				convey.So(errors.Is(run(ctx, cfg), context.Canceled), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the listen address is unusable", func() {
			cfg := config.New()
			cfg.Addr = "256.0.0.1:99999"
			cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			convey.Convey("Then run returns the listen error", func() {
				convey.So(run(ctx, cfg), convey.ShouldNotBeNil)
			})
		})
	})
}
