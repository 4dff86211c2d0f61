package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))
			manager.predictions.WithLabelValues(OutcomeSuccess).Inc()

			Convey("Then metrics use the default namespace", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "crimecast_predictor_predictions_total")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.cacheHits.Inc()

			Convey("Then names and labels follow the options", func() {
				count, err := testutil.GatherAndCount(registry, "test_unit_cache_hits_total")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the duplicate registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})

		Convey("When passing empty option values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "crimecast")
				So(manager.subsystem, ShouldEqual, "predictor")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording predictions", func() {
			before := testutil.ToFloat64(globalManager.predictions.WithLabelValues(OutcomeInvalidInput))
			RecordPrediction(OutcomeInvalidInput)
			RecordPrediction(OutcomeInvalidInput)

			Convey("Then the outcome counter grows", func() {
				after := testutil.ToFloat64(globalManager.predictions.WithLabelValues(OutcomeInvalidInput))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording alignment", func() {
			filled := testutil.ToFloat64(globalManager.filledColumns)
			dropped := testutil.ToFloat64(globalManager.droppedColumns)
			RecordAlignment(3, 0)
			RecordAlignment(0, 2)

			Convey("Then filled and dropped columns are counted apart", func() {
				So(testutil.ToFloat64(globalManager.filledColumns)-filled, ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.droppedColumns)-dropped, ShouldEqual, 2)
			})
		})

		Convey("When toggling the model gauges", func() {
			UpdateModelLoaded(true)
			UpdateModelGeneration(7)
			loaded := testutil.ToFloat64(globalManager.modelLoaded)
			UpdateModelLoaded(false)

			Convey("Then they hold the last value", func() {
				So(loaded, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.modelLoaded), ShouldEqual, 0)
				So(testutil.ToFloat64(globalManager.modelGeneration), ShouldEqual, 7)
			})
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordPredictionLatency(1.5)
				RecordInferenceLatency(0.2)
				RecordCacheHit()
				RecordCacheMiss()
				RecordBatchSize(10)
				RecordModelReload("success")
				RecordModelLoadDuration(12)
				UpdateModelLoadedTime(1700000000)
				UpdateWorkerActiveCount(2)
				UpdateWorkerIdleCount(6)
				UpdateWorkerQueueSize(4)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordHTTPRequest("/predict", "POST", "200")
				RecordHTTPRequestDuration("/predict", "POST", "200", 4.2)
				RecordRateLimited("/predict")
				RecordErrorByComponent("service", "inference_error")
				RecordErrorByType("inference_error", "high")
				RecordErrorByEndpoint("/predict", "POST", "invalid_input")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
				UpdateProcessStats(12.5, 1<<24, 9)
				UpdateHostMemoryPercent(40)
			}, ShouldNotPanic)
		})
	})
}

func TestSystemCollector(t *testing.T) {
	Convey("Given a collector bound to this process", t, func() {
		c, err := NewSystemCollector()
		So(err, ShouldBeNil)

		Convey("When sampling", func() {
			_ = c.Collect()

			Convey("Then the runtime gauges are populated", func() {
				So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldBeGreaterThan, 0)
				So(testutil.ToFloat64(globalManager.systemMemoryUsage), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.cacheMisses)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordCacheMiss()
					RecordHTTPRequest("/healthz", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then no increment is lost", func() {
			So(testutil.ToFloat64(globalManager.cacheMisses)-before, ShouldEqual, 800)
		})
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordPrediction(OutcomeSuccess)

		Convey("Then it exposes crimecast series and no default Go collectors", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "crimecast_"), ShouldBeTrue)
			}
		})
	})
}
