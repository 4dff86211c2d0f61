package loadtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/crimecast/internal/adapters/artifact"
	"github.com/okian/crimecast/internal/adapters/http/api"
	app "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/registry"
	"github.com/okian/crimecast/internal/domain/vocabulary"
	"github.com/okian/crimecast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithLevel("error"))
}

// newTestServer serves the api routes backed by the artifact at path.
func newTestServer(path string) (*httptest.Server, *app.Service) {
	ctx := context.Background()
	reg := registry.New(path, artifact.NewFileLoader(), registry.WithLogger(logger.Nop()))
	_ = reg.Load(ctx)

	svc := app.New(app.WithRegistry(reg), app.WithLogger(logger.Nop()), app.WithBatchWorkers(2))
	_ = svc.Start(ctx)

	mux := http.NewServeMux()
	api.NewServer(svc, api.WithLogger(logger.Nop())).Register(ctx, mux)
	return httptest.NewServer(mux), svc
}

func TestRun(t *testing.T) {
	Convey("Given a running service with the bundled model", t, func() {
		srv, svc := newTestServer(filepath.Join("..", "..", "models", "model.json"))
		Reset(func() {
			srv.Close()
			svc.Stop()
		})

		cfg := &Config{
			BaseURL:      srv.URL + "/",
			NumRequests:  40,
			Workers:      4,
			Timeout:      5 * time.Second,
			BatchSize:    8,
			InvalidEvery: 5,
			OutputFile:   filepath.Join(t.TempDir(), "out", "cases.json"),
		}

		Convey("When the load test runs", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then every answer matches its case", func() {
				So(err, ShouldBeNil)
				So(stats.Generated, ShouldEqual, 40)
				So(stats.Submitted, ShouldEqual, 40)
				So(stats.Succeeded, ShouldEqual, 32)
				So(stats.Rejected, ShouldEqual, 8)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Mismatches, ShouldEqual, 0)
				So(stats.RequestIDMismatches, ShouldEqual, 0)
			})

			Convey("And batch answers agree with single predictions", func() {
				So(stats.BatchChecked, ShouldEqual, 32)
				So(stats.BatchMismatches, ShouldEqual, 0)
			})

			Convey("And the cases are saved", func() {
				info, statErr := os.Stat(cfg.OutputFile)
				So(statErr, ShouldBeNil)
				So(info.Size(), ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given a service without a model", t, func() {
		srv, svc := newTestServer(filepath.Join(t.TempDir(), "missing.json"))
		Reset(func() {
			srv.Close()
			svc.Stop()
		})

		Convey("Then the run stops before sending predictions", func() {
			stats, err := Run(context.Background(), &Config{
				BaseURL: srv.URL, NumRequests: 1, Workers: 1, Timeout: time.Second,
			})
			So(errors.Is(err, ErrNotReady), ShouldBeTrue)
			So(stats, ShouldBeNil)
		})
	})

	Convey("Given an invalid config", t, func() {
		_, err := Run(context.Background(), &Config{BaseURL: "http://localhost", Workers: 1, Timeout: time.Second})
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)

		_, err = Run(context.Background(), nil)
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestGenerateCases(t *testing.T) {
	Convey("Given a generator config", t, func() {
		stats := &Stats{}
		cases, err := generateCases(context.Background(), &Config{NumRequests: 20, InvalidEvery: 4}, vocabulary.Default(), stats)

		So(err, ShouldBeNil)
		So(stats.Generated, ShouldEqual, 20)

		Convey("Then every fourth case is invalid", func() {
			invalid := 0
			for i, c := range cases {
				if (i+1)%4 == 0 {
					So(c.WantOK, ShouldBeFalse)
					So(c.Request.Municipality, ShouldEqual, UnknownMunicipality)
					invalid++
					continue
				}
				So(c.WantOK, ShouldBeTrue)
				_, encErr := vocabulary.Default().Encode(c.Request.Municipality)
				So(encErr, ShouldBeNil)
			}
			So(invalid, ShouldEqual, 5)
		})

		Convey("And requests are complete with unique ids", func() {
			seen := map[string]bool{}
			for _, c := range cases {
				So(api.Complete(&c.Request), ShouldBeTrue)
				So(seen[c.ID], ShouldBeFalse)
				seen[c.ID] = true
				So(*c.Request.Year, ShouldBeBetweenOrEqual, 2015.0, 2024.0)
			}
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := generateCases(ctx, &Config{NumRequests: 3}, vocabulary.Default(), &Stats{})
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestVerification(t *testing.T) {
	Convey("Given outcomes", t, func() {
		cases := []Case{{ID: "a", WantOK: true}, {ID: "b", WantOK: false}}

		Convey("When they match", func() {
			stats := &Stats{}
			err := verifyOutcomes(context.Background(), cases, []Outcome{
				{Status: http.StatusOK, RequestID: "a", Latency: time.Millisecond},
				{Status: http.StatusBadRequest, Code: codeInvalidInput, RequestID: "b", Latency: 3 * time.Millisecond},
			}, stats)
			So(err, ShouldBeNil)
			So(stats.P50, ShouldEqual, time.Millisecond)
			So(stats.P99, ShouldEqual, 3*time.Millisecond)
		})

		Convey("When a valid case fails and an id is lost", func() {
			stats := &Stats{}
			err := verifyOutcomes(context.Background(), cases, []Outcome{
				{Status: http.StatusServiceUnavailable, RequestID: "a"},
				{Status: http.StatusBadRequest, Code: codeInvalidInput, RequestID: "other"},
			}, stats)
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
			So(stats.Mismatches, ShouldEqual, 1)
			So(stats.RequestIDMismatches, ShouldEqual, 1)
		})
	})

	Convey("Given latencies", t, func() {
		durs := make([]time.Duration, 100)
		for i := range durs {
			durs[i] = time.Duration(100-i) * time.Millisecond
		}
		So(percentile(durs, p50), ShouldEqual, 50*time.Millisecond)
		So(percentile(durs, p95), ShouldEqual, 95*time.Millisecond)
		So(percentile(nil, p95), ShouldEqual, time.Duration(0))
	})
}
