// Package artifact reads exported regressors from disk and evaluates them.
//
// Two kinds are supported: a linear model (intercept plus one weight per
// column) and a tree ensemble (regression trees combined by sum or mean,
// which covers both gradient boosting and random forests). Both are stored
// as a single JSON or YAML document.
package artifact

// Supported artifact kinds.
const (
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"

	AggregationSum  = "sum"
	AggregationMean = "mean"
)

// Document is the on-disk representation of an artifact.
type Document struct {
	Name         string              `json:"name" yaml:"name"`
	Version      string              `json:"version" yaml:"version"`
	Kind         string              `json:"kind" yaml:"kind"`
	Target       string              `json:"target,omitempty" yaml:"target,omitempty"`
	FeatureNames []string            `json:"feature_names" yaml:"feature_names"`
	Vocabulary   *VocabularyDocument `json:"vocabulary,omitempty" yaml:"vocabulary,omitempty"`
	Linear       *LinearDocument     `json:"linear,omitempty" yaml:"linear,omitempty"`
	Ensemble     *EnsembleDocument   `json:"ensemble,omitempty" yaml:"ensemble,omitempty"`
}

// VocabularyDocument records the label encoding the artifact was trained with.
type VocabularyDocument struct {
	Column string   `json:"column" yaml:"column"`
	Values []string `json:"values" yaml:"values"`
}

// LinearDocument holds the parameters of a linear regressor.
type LinearDocument struct {
	Intercept    float64       `json:"intercept" yaml:"intercept"`
	Coefficients []Coefficient `json:"coefficients" yaml:"coefficients"`
}

// Coefficient is the weight of one column.
type Coefficient struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// EnsembleDocument holds a set of regression trees.
type EnsembleDocument struct {
	Aggregation  string         `json:"aggregation" yaml:"aggregation"`
	BaseScore    float64        `json:"base_score" yaml:"base_score"`
	LearningRate float64        `json:"learning_rate" yaml:"learning_rate"`
	Trees        []TreeDocument `json:"trees" yaml:"trees"`
}

// TreeDocument is a flattened binary tree. Node 0 is the root.
type TreeDocument struct {
	Nodes []NodeDocument `json:"nodes" yaml:"nodes"`
}

// NodeDocument is one tree node. Split nodes send rows whose feature value is
// less than or equal to Threshold to Left, the rest to Right. Feature indexes
// into Document.FeatureNames.
type NodeDocument struct {
	Leaf      bool    `json:"leaf,omitempty" yaml:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Feature   int     `json:"feature,omitempty" yaml:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Left      int     `json:"left,omitempty" yaml:"left,omitempty"`
	Right     int     `json:"right,omitempty" yaml:"right,omitempty"`
}
