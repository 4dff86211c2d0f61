// Package features assembles model input rows from prediction requests.
package features

import (
	"fmt"
	"sort"

	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/internal/domain/vocabulary"
)

// Training column names. These are literal schema keys of the trained
// artifact, accents and spacing included.
const (
	ColYear            = "Ano"
	ColMunicipality    = vocabulary.Column
	ColIDEB            = "IDEB"
	ColEFTeachers      = "Ensino fundamental_docentes"
	ColEFSchools       = "Ensino fundamental_escolas"
	ColEFEnrollments   = "Ensino fundamental_matrículas"
	ColEITeachers      = "Ensino infantil_docentes"
	ColEISchools       = "Ensino infantil_escolas"
	ColEIEnrollments   = "Ensino infantil_matrículas"
	ColEMTeachers      = "Ensino médio_docentes"
	ColEMSchools       = "Ensino médio_escolas"
	ColEMEnrollments   = "Ensino médio_matrículas"
	defaultFillValue   = 0.0
	canonicalRowLength = 12
)

// CanonicalColumns returns the training columns in training order.
func CanonicalColumns() []string {
	return []string{
		ColYear, ColMunicipality, ColIDEB,
		ColEFTeachers, ColEFSchools, ColEFEnrollments,
		ColEITeachers, ColEISchools, ColEIEnrollments,
		ColEMTeachers, ColEMSchools, ColEMEnrollments,
	}
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithStrict makes Align fail on missing expected columns instead of filling them.
func WithStrict(strict bool) Option {
	return func(b *Builder) {
		b.strict = strict
	}
}

// WithFillValue sets the value inserted for missing expected columns.
func WithFillValue(v float64) Option {
	return func(b *Builder) {
		b.fill = v
	}
}

// Builder turns validated requests into rows shaped like the artifact's training data.
type Builder struct {
	strict bool
	fill   float64
}

// NewBuilder creates a Builder. By default missing columns are filled with zero.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{fill: defaultFillValue}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the canonical row for req with the municipality replaced by
// its code. Extra columns follow the canonical ones in name order, so the
// result does not depend on how the request was put together.
// Numeric fields must have been validated already; absent ones are written as zero.
func (b *Builder) Build(req *model.Request, code int) *model.Row {
	row := model.NewRow(canonicalRowLength + len(req.Extra))
	row.Set(ColYear, deref(req.Year))
	row.Set(ColMunicipality, float64(code))
	row.Set(ColIDEB, deref(req.IDEB))
	row.Set(ColEFTeachers, deref(req.EFTeachers))
	row.Set(ColEFSchools, deref(req.EFSchools))
	row.Set(ColEFEnrollments, deref(req.EFEnrollments))
	row.Set(ColEITeachers, deref(req.EITeachers))
	row.Set(ColEISchools, deref(req.EISchools))
	row.Set(ColEIEnrollments, deref(req.EIEnrollments))
	row.Set(ColEMTeachers, deref(req.EMTeachers))
	row.Set(ColEMSchools, deref(req.EMSchools))
	row.Set(ColEMEnrollments, deref(req.EMEnrollments))

	extras := make([]string, 0, len(req.Extra))
	for name := range req.Extra {
		if !row.Has(name) {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		row.Set(name, req.Extra[name])
	}
	return row
}

// Alignment reports what Align did to a row.
type Alignment struct {
	Filled  []string
	Dropped []string
}

// Align reshapes row to exactly the expected columns in the expected order.
// Missing columns are filled (or rejected in strict mode) and extra columns
// are dropped.
//
// Filling hides missing inputs from the model, which is an accuracy risk
// rather than a correctness bug; Alignment.Filled lets callers observe it.
func (b *Builder) Align(row *model.Row, expected []string) (*model.Row, Alignment, error) {
	var al Alignment
	if len(expected) == 0 {
		return nil, al, fmt.Errorf("%w: artifact declares no columns", model.ErrSchemaMismatch)
	}

	out := model.NewRow(len(expected))
	for _, col := range expected {
		if out.Has(col) {
			return nil, al, fmt.Errorf("%w: column %q declared twice", model.ErrSchemaMismatch, col)
		}
		v, ok := row.Get(col)
		if !ok {
			if b.strict {
				return nil, al, fmt.Errorf("%w: missing column %q", model.ErrSchemaMismatch, col)
			}
			al.Filled = append(al.Filled, col)
			v = b.fill
		}
		out.Set(col, v)
	}
	for _, col := range row.Columns() {
		if !out.Has(col) {
			al.Dropped = append(al.Dropped, col)
		}
	}
	return out, al, nil
}

// Shape produces the row handed to artifact. When the artifact exposes its
// training columns the row is aligned to them. Otherwise only the canonical
// row can be passed through: with variant-schema extras there is no way to
// know the order the artifact wants.
func (b *Builder) Shape(artifact model.Artifact, row *model.Row) (*model.Row, Alignment, error) {
	if expected, ok := model.ExpectedColumns(artifact); ok {
		return b.Align(row, expected)
	}
	if row.Len() != canonicalRowLength {
		return nil, Alignment{}, fmt.Errorf("%w: artifact does not expose its columns and the row has %d extra columns",
			model.ErrSchemaMismatch, row.Len()-canonicalRowLength)
	}
	return row, Alignment{}, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
