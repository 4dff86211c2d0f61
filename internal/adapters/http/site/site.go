// Package site serves the HTML prediction form.
package site

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/crimecast/internal/adapters/http/api"
	service "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/model"
)

// Error constants
var (
	ErrRender = errors.New("form render failed")
)

// FormPath is the form route kept from the first version of the service.
const FormPath = "/previsao-total-crimes/ui"

// Dependencies required by the form.
type Dependencies interface {
	Predict(ctx context.Context, req *model.Request) (model.Result, error)
	Municipalities() []service.Municipality
}

// Register attaches the form routes and static assets to mux.
func Register(_ context.Context, mux *http.ServeMux, deps Dependencies) {
	if mux == nil {
		panic("mux is nil")
	}
	h := NewFormHandler(deps)
	mux.HandleFunc("/", api.MetricsMiddleware(h.HandleRoot, "ui"))
	mux.HandleFunc("/ui", api.MetricsMiddleware(h.HandleForm, "ui"))
	mux.HandleFunc(FormPath, api.MetricsMiddleware(h.HandleForm, "ui"))
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(FS())))
}

// formField is one input of the form. Names are the Portuguese keys the
// legacy form used; the api package accepts them as aliases.
type formField struct {
	Name  string
	Label string
	Step  string
	List  bool
	Value string
}

var formFields = []formField{
	{Name: "ano", Label: "Ano", Step: "1"},
	{Name: "municipio", Label: "Município", List: true},
	{Name: "ideb", Label: "IDEB", Step: "0.01"},
	{Name: "ensino_fundamental_docentes", Label: "EF - Docentes", Step: "0.01"},
	{Name: "ensino_fundamental_escolas", Label: "EF - Escolas", Step: "0.01"},
	{Name: "ensino_fundamental_matriculas", Label: "EF - Matrículas", Step: "0.01"},
	{Name: "ensino_infantil_docentes", Label: "EI - Docentes", Step: "0.01"},
	{Name: "ensino_infantil_escolas", Label: "EI - Escolas", Step: "0.01"},
	{Name: "ensino_infantil_matriculas", Label: "EI - Matrículas", Step: "0.01"},
	{Name: "ensino_medio_docentes", Label: "EM - Docentes", Step: "0.01"},
	{Name: "ensino_medio_escolas", Label: "EM - Escolas", Step: "0.01"},
	{Name: "ensino_medio_matriculas", Label: "EM - Matrículas", Step: "0.01"},
}

// sampleQuery fills every field with plausible values for Recife.
var sampleQuery = url.Values{
	"ano": {"2024"}, "municipio": {"Recife"}, "ideb": {"5.2"},
	"ensino_fundamental_docentes": {"1000"}, "ensino_fundamental_escolas": {"200"}, "ensino_fundamental_matriculas": {"30000"},
	"ensino_infantil_docentes": {"500"}, "ensino_infantil_escolas": {"100"}, "ensino_infantil_matriculas": {"15000"},
	"ensino_medio_docentes": {"800"}, "ensino_medio_escolas": {"150"}, "ensino_medio_matriculas": {"25000"},
}

type pageResult struct {
	Badge string
	Total string
}

type pageData struct {
	Action    string
	Fields    []formField
	Options   []string
	Result    *pageResult
	Error     string
	SampleURL string
}

// FormHandler renders the prediction form and its result.
type FormHandler struct {
	deps    Dependencies
	options []string
}

// NewFormHandler creates a new form handler. Display names are computed once.
func NewFormHandler(deps Dependencies) *FormHandler {
	h := &FormHandler{deps: deps}
	for _, m := range deps.Municipalities() {
		h.options = append(h.options, displayName(m.Name))
	}
	return h
}

// displayName title-cases a vocabulary entry for display. A Caser is not safe
// for concurrent use, so one is made per call.
func displayName(name string) string {
	return cases.Title(language.BrazilianPortuguese).String(name)
}

// HandleRoot serves the form at / and 404s every other unmatched path.
func (h *FormHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.HandleForm(w, r)
}

// HandleForm handles GET requests of the form. When every field is present
// the prediction runs and its result or error is shown under the form.
func (h *FormHandler) HandleForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	data := pageData{
		Action:    r.URL.Path,
		Fields:    make([]formField, len(formFields)),
		Options:   h.options,
		SampleURL: r.URL.Path + "?" + sampleQuery.Encode(),
	}
	for i, f := range formFields {
		f.Value = q.Get(f.Name)
		data.Fields[i] = f
	}

	req, err := api.ParseQuery(q)
	switch {
	case err != nil:
		data.Error = err.Error()
	case api.Complete(req):
		res, err := h.deps.Predict(r.Context(), req)
		if err != nil {
			data.Error = err.Error()
			break
		}
		data.Result = &pageResult{
			Badge: displayName(req.Municipality) + " · " + strconv.Itoa(int(*req.Year)),
			Total: strconv.FormatFloat(res.Value, 'f', -1, 64),
		}
	}

	// Render to a buffer first so a template failure can still become a 500.
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, data); err != nil {
		http.Error(w, errors.Join(ErrRender, err).Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
