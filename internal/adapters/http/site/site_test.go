package site

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	service "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	calls int
	err   error
}

func (m *mockDeps) Predict(_ context.Context, req *model.Request) (model.Result, error) {
	m.calls++
	if m.err != nil {
		return model.Result{}, m.err
	}
	return model.Result{Value: 881.9}, nil
}

func (m *mockDeps) Municipalities() []service.Municipality {
	return []service.Municipality{{Code: 0, Name: "abreu e lima"}, {Code: 84, Name: "recife"}}
}

func get(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSiteHandler(t *testing.T) {
	Convey("Given a registered form", t, func() {
		deps := &mockDeps{}
		mux := http.NewServeMux()
		Register(context.Background(), mux, deps)

		Convey("When opening the form without parameters", func() {
			w := get(mux, FormPath)

			Convey("Then the empty form is rendered with a sample link", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "text/html; charset=utf-8")
				body := w.Body.String()
				So(body, ShouldContainSubstring, "Previsão de Crimes")
				So(body, ShouldContainSubstring, `<option value="Abreu E Lima">`)
				So(body, ShouldContainSubstring, "usar valores de exemplo")
				So(body, ShouldContainSubstring, "municipio=Recife")
				So(deps.calls, ShouldEqual, 0)
			})
		})

		Convey("When every field is filled", func() {
			w := get(mux, FormPath+"?"+sampleQuery.Encode())

			Convey("Then the prediction is shown with the badge", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := w.Body.String()
				So(body, ShouldContainSubstring, "Recife · 2024")
				So(body, ShouldContainSubstring, "881.9")
				So(body, ShouldContainSubstring, `value="25000"`)
				So(deps.calls, ShouldEqual, 1)
			})
		})

		Convey("When the prediction fails", func() {
			deps.err = fmt.Errorf("%w: model failed", model.ErrModelUnavailable)
			w := get(mux, "/ui?"+sampleQuery.Encode())

			Convey("Then the error is shown in the page", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "Erro ao calcular: model unavailable")
			})
		})

		Convey("When a value is not a number", func() {
			w := get(mux, "/ui?ano=soon")

			Convey("Then the parse error is shown", func() {
				So(w.Body.String(), ShouldContainSubstring, "Erro ao calcular")
				So(w.Body.String(), ShouldContainSubstring, "year")
				So(deps.calls, ShouldEqual, 0)
			})
		})

		Convey("When opening the root page", func() {
			w := get(mux, "/")

			Convey("Then the form is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `action="/"`)
			})
		})

		Convey("When requesting an unknown path", func() {
			So(get(mux, "/some-asset").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When requesting the stylesheet", func() {
			w := get(mux, "/static/site.css")

			Convey("Then it is served from the embedded assets", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(w.Body.String(), ".badge"), ShouldBeTrue)
			})
		})

		Convey("When posting to the form", func() {
			req := httptest.NewRequest(http.MethodPost, "/ui", http.NoBody)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestSiteErrors(t *testing.T) {
	Convey("Given site error constants", t, func() {
		So(ErrRender, ShouldNotBeNil)
		So(ErrRender.Error(), ShouldEqual, "form render failed")
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		So(func() { Register(context.Background(), nil, &mockDeps{}) }, ShouldPanic)
	})
}

func TestDisplayName(t *testing.T) {
	Convey("Display names are title cased", t, func() {
		So(displayName("cabo de santo agostinho"), ShouldEqual, "Cabo De Santo Agostinho")
		So(displayName("recife"), ShouldEqual, "Recife")
	})
}
