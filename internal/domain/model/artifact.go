package model

import "context"

// Artifact is a trained regressor loaded from disk. Implementations are
// immutable once constructed and safe for concurrent use.
type Artifact interface {
	// Predict returns the model output for a single row.
	Predict(ctx context.Context, row *Row) (float64, error)
}

// ColumnProvider is implemented by artifacts that know the columns they were
// trained on, in training order.
type ColumnProvider interface {
	ExpectedColumns() []string
}

// ExpectedColumns returns the artifact's training columns when it exposes them.
func ExpectedColumns(a Artifact) ([]string, bool) {
	cp, ok := a.(ColumnProvider)
	if !ok {
		return nil, false
	}
	return cp.ExpectedColumns(), true
}

// ArtifactInfo describes a loaded artifact for diagnostics.
type ArtifactInfo struct {
	Name     string   `json:"name,omitempty"`
	Version  string   `json:"version,omitempty"`
	Kind     string   `json:"kind"`
	Target   string   `json:"target,omitempty"`
	Checksum string   `json:"checksum"`
	Columns  []string `json:"columns,omitempty"`
	// Trees is the ensemble size; zero for other kinds.
	Trees int `json:"trees,omitempty"`
}
