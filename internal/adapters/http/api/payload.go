package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/crimecast/internal/domain/model"
)

// numericKey binds a request field to its wire name and the Portuguese alias
// accepted by the legacy form and legacy endpoint.
type numericKey struct {
	name  string
	alias string
	field func(*model.Request) **float64
}

var numericKeys = []numericKey{
	{"year", "ano", func(r *model.Request) **float64 { return &r.Year }},
	{"ideb", "", func(r *model.Request) **float64 { return &r.IDEB }},
	{"ef_docentes", "ensino_fundamental_docentes", func(r *model.Request) **float64 { return &r.EFTeachers }},
	{"ef_escolas", "ensino_fundamental_escolas", func(r *model.Request) **float64 { return &r.EFSchools }},
	{"ef_matriculas", "ensino_fundamental_matriculas", func(r *model.Request) **float64 { return &r.EFEnrollments }},
	{"ei_docentes", "ensino_infantil_docentes", func(r *model.Request) **float64 { return &r.EITeachers }},
	{"ei_escolas", "ensino_infantil_escolas", func(r *model.Request) **float64 { return &r.EISchools }},
	{"ei_matriculas", "ensino_infantil_matriculas", func(r *model.Request) **float64 { return &r.EIEnrollments }},
	{"em_docentes", "ensino_medio_docentes", func(r *model.Request) **float64 { return &r.EMTeachers }},
	{"em_escolas", "ensino_medio_escolas", func(r *model.Request) **float64 { return &r.EMSchools }},
	{"em_matriculas", "ensino_medio_matriculas", func(r *model.Request) **float64 { return &r.EMEnrollments }},
}

const (
	keyMunicipality      = "municipality"
	keyMunicipalityAlias = "municipio"
	keyExtra             = "extra"
	extraQueryPrefix     = "extra."
)

// lookup returns the value stored under name, falling back to alias.
func lookup[V any](m map[string]V, name, alias string) (V, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	if alias != "" {
		if v, ok := m[alias]; ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// requestFromObject builds a Request from a decoded JSON object. Absent keys
// and nulls stay nil so the service can report them as missing. Unknown keys
// are ignored.
func requestFromObject(obj map[string]json.RawMessage) (*model.Request, error) {
	req := &model.Request{}
	if raw, ok := lookup(obj, keyMunicipality, keyMunicipalityAlias); ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.Municipality); err != nil {
			return nil, model.NewFieldError(keyMunicipality, fmt.Errorf("must be a string"))
		}
	}
	for _, k := range numericKeys {
		raw, ok := lookup(obj, k.name, k.alias)
		if !ok {
			continue
		}
		var v *float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, model.NewFieldError(k.name, fmt.Errorf("must be a number"))
		}
		*k.field(req) = v
	}
	if raw, ok := obj[keyExtra]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.Extra); err != nil {
			return nil, model.NewFieldError(keyExtra, fmt.Errorf("must be an object of numbers"))
		}
	}
	return req, nil
}

// ParseJSON builds a Request from a JSON object, accepting the same keys and
// aliases as the prediction body.
func ParseJSON(data []byte) (*model.Request, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrBadRequest)
	}
	return requestFromObject(obj)
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// ParseQuery builds a Request from URL query values, accepting the same keys
// as the JSON body. Extra columns are passed as extra.<column>=<value>.
// Values strconv cannot parse are reported as invalid input; NaN and Inf
// parse and are rejected later by the service.
func ParseQuery(q url.Values) (*model.Request, error) {
	req := &model.Request{}
	if v, ok := lookup(q, keyMunicipality, keyMunicipalityAlias); ok && len(v) > 0 {
		req.Municipality = v[0]
	}
	for _, k := range numericKeys {
		v, ok := lookup(q, k.name, k.alias)
		if !ok || len(v) == 0 || strings.TrimSpace(v[0]) == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64)
		if err != nil {
			return nil, model.NewFieldError(k.name, fmt.Errorf("must be a number"))
		}
		*k.field(req) = &f
	}
	for key, v := range q {
		col, ok := strings.CutPrefix(key, extraQueryPrefix)
		if !ok || col == "" || len(v) == 0 {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64)
		if err != nil {
			return nil, model.NewFieldError(key, fmt.Errorf("must be a number"))
		}
		if req.Extra == nil {
			req.Extra = make(map[string]float64)
		}
		req.Extra[col] = f
	}
	return req, nil
}

// Complete reports whether every field of req is present.
func Complete(req *model.Request) bool {
	if req == nil || strings.TrimSpace(req.Municipality) == "" {
		return false
	}
	for _, f := range req.NumericFields() {
		if f.Value == nil {
			return false
		}
	}
	return true
}
