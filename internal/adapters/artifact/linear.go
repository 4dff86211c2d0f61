package artifact

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/crimecast/internal/domain/model"
)

// Linear evaluates intercept + sum(weight * value).
type Linear struct {
	columns   []string
	intercept float64
	terms     []Coefficient
}

func newLinear(doc *Document) (*Linear, error) {
	if doc.Linear == nil {
		return nil, fmt.Errorf("%w: kind %q without linear section", ErrInvalidArtifact, doc.Kind)
	}
	declared := make(map[string]struct{}, len(doc.FeatureNames))
	for _, f := range doc.FeatureNames {
		declared[f] = struct{}{}
	}
	seen := make(map[string]struct{}, len(doc.Linear.Coefficients))
	for _, c := range doc.Linear.Coefficients {
		if _, ok := declared[c.Feature]; !ok {
			return nil, fmt.Errorf("%w: coefficient for undeclared feature %q", ErrInvalidArtifact, c.Feature)
		}
		if _, dup := seen[c.Feature]; dup {
			return nil, fmt.Errorf("%w: feature %q has two coefficients", ErrInvalidArtifact, c.Feature)
		}
		if !finite(c.Weight) {
			return nil, fmt.Errorf("%w: weight of %q is not finite", ErrInvalidArtifact, c.Feature)
		}
		seen[c.Feature] = struct{}{}
	}
	if !finite(doc.Linear.Intercept) {
		return nil, fmt.Errorf("%w: intercept is not finite", ErrInvalidArtifact)
	}
	terms := make([]Coefficient, len(doc.Linear.Coefficients))
	copy(terms, doc.Linear.Coefficients)
	return &Linear{
		columns:   cloneStrings(doc.FeatureNames),
		intercept: doc.Linear.Intercept,
		terms:     terms,
	}, nil
}

// ExpectedColumns returns the training columns in training order.
func (l *Linear) ExpectedColumns() []string { return cloneStrings(l.columns) }

// Predict implements model.Artifact.
func (l *Linear) Predict(ctx context.Context, row *model.Row) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sum := l.intercept
	for _, t := range l.terms {
		v, ok := row.Get(t.Feature)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, t.Feature)
		}
		sum += t.Weight * v
	}
	if !finite(sum) {
		return 0, ErrNonFinite
	}
	return sum, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
