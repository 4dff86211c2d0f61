// Package model contains domain models passed between layers.
package model

// Request carries the inputs of a single prediction. Numeric fields are
// pointers so that a missing value can be told apart from zero.
// Fields mirror the JSON schema accepted by POST /predict.
type Request struct {
	Year         *float64 `json:"year"`
	Municipality string   `json:"municipality"`
	IDEB         *float64 `json:"ideb"`

	// Ensino fundamental
	EFTeachers    *float64 `json:"ef_docentes"`
	EFSchools     *float64 `json:"ef_escolas"`
	EFEnrollments *float64 `json:"ef_matriculas"`

	// Ensino infantil
	EITeachers    *float64 `json:"ei_docentes"`
	EISchools     *float64 `json:"ei_escolas"`
	EIEnrollments *float64 `json:"ei_matriculas"`

	// Ensino médio
	EMTeachers    *float64 `json:"em_docentes"`
	EMSchools     *float64 `json:"em_escolas"`
	EMEnrollments *float64 `json:"em_matriculas"`

	// Extra holds additional training columns used by variant schemas,
	// keyed by their literal column name.
	Extra map[string]float64 `json:"extra,omitempty"`
}

// NumericField names one numeric input of a Request.
type NumericField struct {
	Name  string
	Value *float64
}

// NumericFields lists the numeric inputs in canonical order. Validation
// reports the first offending field in this order.
func (r *Request) NumericFields() []NumericField {
	return []NumericField{
		{Name: "year", Value: r.Year},
		{Name: "ideb", Value: r.IDEB},
		{Name: "ef_docentes", Value: r.EFTeachers},
		{Name: "ef_escolas", Value: r.EFSchools},
		{Name: "ef_matriculas", Value: r.EFEnrollments},
		{Name: "ei_docentes", Value: r.EITeachers},
		{Name: "ei_escolas", Value: r.EISchools},
		{Name: "ei_matriculas", Value: r.EIEnrollments},
		{Name: "em_docentes", Value: r.EMTeachers},
		{Name: "em_escolas", Value: r.EMSchools},
		{Name: "em_matriculas", Value: r.EMEnrollments},
	}
}

// Float returns a pointer to v. Handy for building requests in code.
func Float(v float64) *float64 { return &v }

// Result is the outcome of a successful prediction.
type Result struct {
	// Value is rounded to two decimal places.
	Value float64 `json:"predicted_value"`
}
