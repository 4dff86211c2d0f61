package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/internal/domain/registry"
	"github.com/okian/crimecast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type constArtifact float64

func (c constArtifact) Predict(context.Context, *model.Row) (float64, error) { return float64(c), nil }

// scriptedLoader returns queued results in order and then repeats the last one.
type scriptedLoader struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (l *scriptedLoader) Load(_ context.Context, path string) (model.Artifact, model.ArtifactInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.calls
	if i >= len(l.results) {
		i = len(l.results) - 1
	}
	l.calls++
	if err := l.results[i]; err != nil {
		return nil, model.ArtifactInfo{}, err
	}
	return constArtifact(l.calls), model.ArtifactInfo{Name: "test", Version: "v" + path}, nil
}

func (l *scriptedLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh registry", t, func() {
		loader := &scriptedLoader{results: []error{nil}}
		reg := registry.New("model.json", loader, registry.WithLogger(logger.Nop()))

		Convey("Then it starts Unloaded and reading it never loads", func() {
			snap := reg.Current()
			So(snap.State, ShouldEqual, registry.Unloaded)
			So(snap.Ready(), ShouldBeFalse)
			So(snap.Path, ShouldEqual, "model.json")
			So(loader.Calls(), ShouldEqual, 0)
		})

		Convey("When the load succeeds", func() {
			err := reg.Load(ctx)
			snap := reg.Current()

			Convey("Then the artifact is Loaded at generation 1", func() {
				So(err, ShouldBeNil)
				So(snap.State, ShouldEqual, registry.Loaded)
				So(snap.Ready(), ShouldBeTrue)
				So(snap.Generation, ShouldEqual, 1)
				So(snap.Info.Name, ShouldEqual, "test")
				So(snap.LoadedAt.IsZero(), ShouldBeFalse)
				So(snap.State.String(), ShouldEqual, "loaded")
			})
		})
	})

	Convey("Given a registry whose artifact is missing", t, func() {
		loader := &scriptedLoader{results: []error{os.ErrNotExist}}
		reg := registry.New("missing.json", loader, registry.WithLogger(logger.Nop()))

		Convey("When loading", func() {
			err := reg.Load(ctx)
			snap := reg.Current()

			Convey("Then the registry is Failed with a reason", func() {
				So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
				So(registry.IsLoadError(err), ShouldBeTrue)
				So(snap.State, ShouldEqual, registry.Failed)
				So(snap.Ready(), ShouldBeFalse)
				So(snap.Reason, ShouldContainSubstring, "file does not exist")
				So(snap.Generation, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a registry with a loaded artifact", t, func() {
		broken := errors.New("truncated artifact")
		loader := &scriptedLoader{results: []error{nil, broken, nil}}
		reg := registry.New("model.json", loader, registry.WithLogger(logger.Nop()))
		So(reg.Load(ctx), ShouldBeNil)
		first := reg.Current()

		Convey("When a reload fails", func() {
			err := reg.Reload(ctx)
			snap := reg.Current()

			Convey("Then the registry is Failed and serves nothing", func() {
				So(errors.Is(err, broken), ShouldBeTrue)
				So(snap.State, ShouldEqual, registry.Failed)
				So(snap.Ready(), ShouldBeFalse)
				So(snap.Artifact, ShouldBeNil)
				So(snap.Reason, ShouldContainSubstring, "truncated artifact")
				So(snap.LastError, ShouldBeEmpty)
				So(snap.Attempts, ShouldEqual, 2)
			})

			Convey("And the next successful reload recovers with a new generation", func() {
				So(reg.Reload(ctx), ShouldBeNil)
				snap := reg.Current()
				So(snap.State, ShouldEqual, registry.Loaded)
				So(snap.Reason, ShouldBeEmpty)
				So(snap.Generation, ShouldEqual, 2)
			})

			Convey("And the snapshot read before the reload is untouched", func() {
				So(first.Ready(), ShouldBeTrue)
				So(first.Attempts, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a registry that keeps the last good artifact", t, func() {
		broken := errors.New("truncated artifact")
		loader := &scriptedLoader{results: []error{nil, broken, nil}}
		reg := registry.New("model.json", loader, registry.WithLogger(logger.Nop()), registry.WithKeepLastGood(true))
		So(reg.Load(ctx), ShouldBeNil)
		first := reg.Current()

		Convey("When a reload fails", func() {
			err := reg.Reload(ctx)
			snap := reg.Current()

			Convey("Then the previous artifact keeps serving and the failure is recorded", func() {
				So(errors.Is(err, broken), ShouldBeTrue)
				So(snap.State, ShouldEqual, registry.Loaded)
				So(snap.Artifact, ShouldEqual, first.Artifact)
				So(snap.Generation, ShouldEqual, 1)
				So(snap.LastError, ShouldContainSubstring, "truncated artifact")
				So(snap.Attempts, ShouldEqual, 2)
			})

			Convey("And the next successful reload swaps in a new generation", func() {
				So(reg.Reload(ctx), ShouldBeNil)
				snap := reg.Current()
				So(snap.Generation, ShouldEqual, 2)
				So(snap.LastError, ShouldBeEmpty)
				So(snap.Artifact, ShouldNotEqual, first.Artifact)
			})
		})
	})

	Convey("Given a keep-last-good registry that never loaded", t, func() {
		loader := &scriptedLoader{results: []error{errors.New("no such file")}}
		reg := registry.New("model.json", loader, registry.WithLogger(logger.Nop()), registry.WithKeepLastGood(true))

		Convey("Then a failed load still moves it to Failed", func() {
			So(reg.Load(ctx), ShouldNotBeNil)
			So(reg.Current().State, ShouldEqual, registry.Failed)
		})
	})

	Convey("Given misconfigured registries", t, func() {
		Convey("When the path is empty", func() {
			reg := registry.New("", &scriptedLoader{results: []error{nil}}, registry.WithLogger(logger.Nop()))
			err := reg.Load(ctx)

			Convey("Then the load fails without calling the loader", func() {
				So(errors.Is(err, registry.ErrNoPath), ShouldBeTrue)
				So(reg.Current().State, ShouldEqual, registry.Failed)
			})
		})

		Convey("When the loader panics", func() {
			reg := registry.New("model.json", registry.LoaderFunc(func(context.Context, string) (model.Artifact, model.ArtifactInfo, error) {
				panic("corrupt header")
			}), registry.WithLogger(logger.Nop()))
			err := reg.Load(ctx)

			Convey("Then the panic becomes a load failure", func() {
				So(errors.Is(err, registry.ErrLoadFailed), ShouldBeTrue)
				So(reg.Current().Reason, ShouldContainSubstring, "corrupt header")
			})
		})

		Convey("When the loader returns nothing", func() {
			reg := registry.New("model.json", registry.LoaderFunc(func(context.Context, string) (model.Artifact, model.ArtifactInfo, error) {
				return nil, model.ArtifactInfo{}, nil
			}), registry.WithLogger(logger.Nop()))

			Convey("Then the registry is Failed", func() {
				So(reg.Load(ctx), ShouldNotBeNil)
				So(reg.Current().State, ShouldEqual, registry.Failed)
			})
		})
	})
}

func TestRegistryConcurrentReload(t *testing.T) {
	Convey("Given a slow loader", t, func() {
		var inFlight, maxInFlight int32
		loader := registry.LoaderFunc(func(context.Context, string) (model.Artifact, model.ArtifactInfo, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return constArtifact(1), model.ArtifactInfo{}, nil
		})
		reg := registry.New("model.json", loader, registry.WithLogger(logger.Nop()))

		Convey("When many reloads and reads race", func() {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_ = reg.Reload(context.Background())
				}()
				go func() {
					defer wg.Done()
					snap := reg.Current()
					if snap.State == registry.Loaded && snap.Artifact == nil {
						t.Error("torn snapshot")
					}
				}()
			}
			wg.Wait()

			Convey("Then loads never overlap and every success bumps the generation", func() {
				So(atomic.LoadInt32(&maxInFlight), ShouldEqual, 1)
				So(reg.Current().Generation, ShouldEqual, 10)
			})
		})
	})
}

func TestRegistryWatch(t *testing.T) {
	Convey("Given a registry watching a file on disk", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "model.json")
		So(os.WriteFile(path, []byte("v1"), 0o600), ShouldBeNil)

		loader := registry.LoaderFunc(func(_ context.Context, p string) (model.Artifact, model.ArtifactInfo, error) {
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, model.ArtifactInfo{}, err
			}
			version := strings.TrimSpace(string(data))
			if version == "" {
				return nil, model.ArtifactInfo{}, errors.New("empty artifact")
			}
			return constArtifact(1), model.ArtifactInfo{Version: version}, nil
		})
		reg := registry.New(path, loader, registry.WithLogger(logger.Nop()), registry.WithDebounce(20*time.Millisecond))
		So(reg.Load(context.Background()), ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- reg.Watch(ctx) }()
		// Give the watcher time to register the directory.
		time.Sleep(100 * time.Millisecond)

		Convey("When the file is rewritten", func() {
			So(os.WriteFile(path, []byte("v2"), 0o600), ShouldBeNil)

			Convey("Then the new version is picked up", func() {
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) && reg.Current().Info.Version != "v2" {
					time.Sleep(10 * time.Millisecond)
				}
				So(reg.Current().Info.Version, ShouldEqual, "v2")
				So(reg.Current().Generation, ShouldBeGreaterThanOrEqualTo, 2)

				cancel()
				So(<-done, ShouldBeNil)
			})
		})

		Convey("When the file is replaced with garbage", func() {
			So(os.WriteFile(path, []byte(""), 0o600), ShouldBeNil)

			Convey("Then the last good artifact keeps serving", func() {
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) && reg.Current().LastError == "" {
					time.Sleep(10 * time.Millisecond)
				}
				snap := reg.Current()
				So(snap.LastError, ShouldContainSubstring, "empty artifact")
				So(snap.State, ShouldEqual, registry.Loaded)
				So(snap.Info.Version, ShouldEqual, "v1")

				cancel()
				So(<-done, ShouldBeNil)
			})
		})

		Reset(cancel)
	})

	Convey("Given a registry without a path", t, func() {
		reg := registry.New("", nil, registry.WithLogger(logger.Nop()))

		Convey("Then Watch refuses to start", func() {
			So(errors.Is(reg.Watch(context.Background()), registry.ErrNoPath), ShouldBeTrue)
		})
	})
}
