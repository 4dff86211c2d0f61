package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/crimecast/internal/adapters/artifact"
	"github.com/okian/crimecast/internal/adapters/http/api"
	app "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/cli"
	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/internal/domain/registry"
	"github.com/okian/crimecast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var bundledModel = filepath.Join("..", "..", "models", "model.json")

var recifeSet = []string{
	"--set", "municipality=Recife",
	"--set", "year=2024",
	"--set", "ideb=5.2",
	"--set", "ef_docentes=1000",
	"--set", "ef_escolas=200",
	"--set", "ef_matriculas=30000",
	"--set", "ei_docentes=500",
	"--set", "ei_escolas=100",
	"--set", "ei_matriculas=15000",
	"--set", "em_docentes=800",
	"--set", "em_escolas=150",
	"--set", "em_matriculas=25000",
}

const recifeJSON = `{"year":2024,"municipality":"Recife","ideb":5.2,
"ef_docentes":1000,"ef_escolas":200,"ef_matriculas":30000,
"ei_docentes":500,"ei_escolas":100,"ei_matriculas":15000,
"em_docentes":800,"em_escolas":150,"em_matriculas":25000}`

func execute(stdin string, args ...string) (string, error) {
	cmd := cli.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newTestServer(path string) *httptest.Server {
	_ = logger.Init(logger.WithLevel("error"), logger.WithOutput(io.Discard))
	ctx := context.Background()
	reg := registry.New(path, artifact.NewFileLoader(), registry.WithLogger(logger.Nop()))
	_ = reg.Load(ctx)
	svc := app.New(app.WithRegistry(reg), app.WithLogger(logger.Nop()))

	mux := http.NewServeMux()
	api.NewServer(svc, api.WithLogger(logger.Nop())).Register(ctx, mux)
	return httptest.NewServer(mux)
}

func TestPredictCommand(t *testing.T) {
	Convey("Given the predict command with a local artifact", t, func() {
		local := append([]string{"predict", "--model", bundledModel}, recifeSet...)

		Convey("When predicting the Recife scenario", func() {
			out, err := execute("", local...)

			Convey("Then the rounded value is printed", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "881.90\n")
			})
		})

		Convey("When JSON output is requested", func() {
			out, err := execute("", append(local, "--json")...)

			Convey("Then the result body is printed", func() {
				So(err, ShouldBeNil)
				var res model.Result
				So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
				So(res.Value, ShouldEqual, 881.9)
			})
		})

		Convey("When the Portuguese keys are used", func() {
			args := []string{"predict", "--model", bundledModel}
			for i := 0; i < len(recifeSet); i += 2 {
				kv := strings.Replace(recifeSet[i+1], "municipality=", "municipio=", 1)
				kv = strings.Replace(kv, "year=", "ano=", 1)
				args = append(args, "--set", kv)
			}
			out, err := execute("", args...)

			Convey("Then they are accepted", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "881.90\n")
			})
		})

		Convey("When the municipality is unknown", func() {
			args := append(append([]string{}, local...), "--set", "municipality=Atlantis")
			_, err := execute("", args...)

			Convey("Then it fails as invalid input", func() {
				So(err, ShouldNotBeNil)
				So(model.Kind(err), ShouldEqual, model.KindInvalidInput)
			})
		})

		Convey("When a field is missing", func() {
			_, err := execute("", "predict", "--model", bundledModel, "--set", "municipality=Recife")

			Convey("Then the command fails", func() {
				So(err, ShouldNotBeNil)
				So(model.Kind(err), ShouldEqual, model.KindInvalidInput)
			})
		})

		Convey("When a --set value is malformed", func() {
			_, err := execute("", "predict", "--model", bundledModel, "--set", "year")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "key=value")
		})

		Convey("When the request comes from stdin", func() {
			out, err := execute(recifeJSON, "predict", "--model", bundledModel, "--file", "-")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "881.90\n")
		})

		Convey("When the request file uses the Portuguese keys", func() {
			path := filepath.Join(t.TempDir(), "pedido.json")
			body := `{"ano":2024,"municipio":"Recife","ideb":5.2,
"ensino_fundamental_docentes":1000,"ensino_fundamental_escolas":200,"ensino_fundamental_matriculas":30000,
"ensino_infantil_docentes":500,"ensino_infantil_escolas":100,"ensino_infantil_matriculas":15000,
"ensino_medio_docentes":800,"ensino_medio_escolas":150,"ensino_medio_matriculas":25000}`
			So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
			out, err := execute("", "predict", "--model", bundledModel, "--file", path)

			Convey("Then it predicts the same value as the English keys", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "881.90\n")
			})
		})

		Convey("When the request file is not a JSON object", func() {
			_, err := execute("[]", "predict", "--model", bundledModel, "--file", "-")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "decode request")
		})

		Convey("When both --file and --set are given", func() {
			_, err := execute("", append([]string{"predict", "--file", "-"}, recifeSet...)...)
			So(err, ShouldNotBeNil)
		})

		Convey("When no input is given", func() {
			_, err := execute("", "predict", "--model", bundledModel)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given the predict command against a server", t, func() {
		srv := newTestServer(bundledModel)
		Reset(srv.Close)

		Convey("When the request comes from a file", func() {
			path := filepath.Join(t.TempDir(), "request.json")
			So(os.WriteFile(path, []byte(recifeJSON), 0o600), ShouldBeNil)
			out, err := execute("", "predict", "--server", srv.URL, "--file", path)

			Convey("Then the server's answer is printed", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "881.90\n")
			})
		})

		Convey("When the server rejects the request", func() {
			args := append(append([]string{"predict", "--server", srv.URL}, recifeSet...), "--set", "municipality=Atlantis")
			_, err := execute("", args...)

			Convey("Then the server's code is reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "400")
				So(err.Error(), ShouldContainSubstring, "invalid_input")
			})
		})
	})
}

func TestInspectCommand(t *testing.T) {
	Convey("Given the bundled artifact", t, func() {
		Convey("When inspecting it", func() {
			out, err := execute("", "inspect", bundledModel)

			Convey("Then its description is printed", func() {
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "crimes-pe-linear")
				So(out, ShouldContainSubstring, "Columns (12)")
				So(out, ShouldContainSubstring, "Municipio")
				So(out, ShouldNotContainSubstring, "Trees:")
			})
		})

		Convey("When inspecting it as JSON", func() {
			out, err := execute("", "inspect", bundledModel, "--json")
			So(err, ShouldBeNil)
			var info model.ArtifactInfo
			So(json.Unmarshal([]byte(out), &info), ShouldBeNil)
			So(info.Checksum, ShouldHaveLength, 64)
		})

		Convey("When the path does not exist", func() {
			_, err := execute("", "inspect", filepath.Join(t.TempDir(), "none.json"))
			So(err, ShouldNotBeNil)
		})

		Convey("When no path is given", func() {
			_, err := execute("", "inspect")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestServerCommands(t *testing.T) {
	Convey("Given a server with a model", t, func() {
		srv := newTestServer(bundledModel)
		Reset(srv.Close)

		Convey("When asking for health", func() {
			out, err := execute("", "health", "--server", srv.URL, "--ready")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "loaded")
			So(out, ShouldContainSubstring, "crimes-pe-linear")
			So(out, ShouldContainSubstring, "Vocabulary: ")
		})

		Convey("When reloading", func() {
			out, err := execute("", "reload", "--server", srv.URL)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Reloaded")
		})

		Convey("When listing municipalities remotely", func() {
			out, err := execute("", "municipalities", "--server", srv.URL, "--remote", "--json")
			So(err, ShouldBeNil)
			var items []app.Municipality
			So(json.Unmarshal([]byte(out), &items), ShouldBeNil)
			So(items, ShouldHaveLength, 116)
		})

		Convey("When running a small load test", func() {
			out, err := execute("", "loadtest", "--server", srv.URL,
				"-n", "10", "-w", "2", "--batch-size", "5", "--invalid-every", "5")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "10 sent, 8 ok, 2 rejected, 0 failed")
		})
	})

	Convey("Given a server without a model", t, func() {
		srv := newTestServer(filepath.Join(t.TempDir(), "missing.json"))
		Reset(srv.Close)

		Convey("Then health succeeds but readiness fails", func() {
			out, err := execute("", "health", "--server", srv.URL)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "failed")

			_, err = execute("", "health", "--server", srv.URL, "--ready")
			So(err, ShouldNotBeNil)
		})

		Convey("Then reload reports the failure", func() {
			_, err := execute("", "reload", "--server", srv.URL)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "reload_failed")
		})

		Convey("Then the load test refuses to start", func() {
			_, err := execute("", "loadtest", "--server", srv.URL, "-n", "1")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given no server", t, func() {
		_, err := execute("", "health", "--server", "http://127.0.0.1:1")
		So(err, ShouldNotBeNil)
	})
}

func TestLocalCommands(t *testing.T) {
	Convey("Given the built-in vocabulary", t, func() {
		Convey("When listing it", func() {
			out, err := execute("", "municipalities")
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(out), "\n")
			So(lines, ShouldHaveLength, 117)
			So(lines[0], ShouldStartWith, "CODE")
		})

		Convey("When filtering it", func() {
			out, err := execute("", "municipalities", "--filter", "  RECIFE ")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "84")
			So(out, ShouldContainSubstring, "recife")
		})
	})

	Convey("Given a reload by PID file", t, func() {
		Convey("When the file is missing", func() {
			_, err := execute("", "reload", "--pid-file", filepath.Join(t.TempDir(), "crimecast.pid"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "PID file not found")
		})

		Convey("When the file is not a PID", func() {
			path := filepath.Join(t.TempDir(), "crimecast.pid")
			So(os.WriteFile(path, []byte("abc\n"), 0o600), ShouldBeNil)
			_, err := execute("", "reload", "--pid-file", path)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "invalid PID")
		})
	})
}
