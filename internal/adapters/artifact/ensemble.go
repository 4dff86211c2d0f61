package artifact

import (
	"context"
	"fmt"

	"github.com/okian/crimecast/internal/domain/model"
)

// Ensemble evaluates a set of regression trees.
//
// With aggregation "sum" the output is base_score + learning_rate * sum(trees),
// the gradient boosting form. With "mean" it is base_score + mean(trees), the
// random forest form (base_score is usually 0 there).
type Ensemble struct {
	columns      []string
	aggregation  string
	baseScore    float64
	learningRate float64
	trees        [][]NodeDocument
}

func newEnsemble(doc *Document) (*Ensemble, error) {
	e := doc.Ensemble
	if e == nil {
		return nil, fmt.Errorf("%w: kind %q without ensemble section", ErrInvalidArtifact, doc.Kind)
	}
	agg := e.Aggregation
	if agg == "" {
		agg = AggregationSum
	}
	if agg != AggregationSum && agg != AggregationMean {
		return nil, fmt.Errorf("%w: unknown aggregation %q", ErrInvalidArtifact, e.Aggregation)
	}
	lr := e.LearningRate
	if lr == 0 {
		lr = 1
	}
	if !finite(lr) || !finite(e.BaseScore) {
		return nil, fmt.Errorf("%w: base_score and learning_rate must be finite", ErrInvalidArtifact)
	}
	if len(e.Trees) == 0 {
		return nil, fmt.Errorf("%w: ensemble has no trees", ErrInvalidArtifact)
	}

	trees := make([][]NodeDocument, len(e.Trees))
	for ti, t := range e.Trees {
		if err := validateTree(t.Nodes, len(doc.FeatureNames)); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %w", ErrInvalidArtifact, ti, err)
		}
		nodes := make([]NodeDocument, len(t.Nodes))
		copy(nodes, t.Nodes)
		trees[ti] = nodes
	}
	return &Ensemble{
		columns:      cloneStrings(doc.FeatureNames),
		aggregation:  agg,
		baseScore:    e.BaseScore,
		learningRate: lr,
		trees:        trees,
	}, nil
}

// validateTree checks that every split points forward to existing nodes.
// Children always have a larger index than their parent, which rules out
// cycles and bounds a walk by len(nodes).
func validateTree(nodes []NodeDocument, features int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range nodes {
		if n.Leaf {
			if !finite(n.Value) {
				return fmt.Errorf("leaf %d value is not finite", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= features {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
			return fmt.Errorf("node %d: children %d/%d must follow the node and exist", i, n.Left, n.Right)
		}
		if !finite(n.Threshold) {
			return fmt.Errorf("node %d threshold is not finite", i)
		}
	}
	return nil
}

// ExpectedColumns returns the training columns in training order.
func (e *Ensemble) ExpectedColumns() []string { return cloneStrings(e.columns) }

// Trees returns the number of trees.
func (e *Ensemble) Trees() int { return len(e.trees) }

// Predict implements model.Artifact.
func (e *Ensemble) Predict(ctx context.Context, row *model.Row) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	values := make([]float64, len(e.columns))
	for i, c := range e.columns {
		v, ok := row.Get(c)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, c)
		}
		values[i] = v
	}

	var sum float64
	for _, nodes := range e.trees {
		sum += walk(nodes, values)
	}

	var out float64
	switch e.aggregation {
	case AggregationMean:
		out = e.baseScore + sum/float64(len(e.trees))
	default:
		out = e.baseScore + e.learningRate*sum
	}
	if !finite(out) {
		return 0, ErrNonFinite
	}
	return out, nil
}

func walk(nodes []NodeDocument, values []float64) float64 {
	i := 0
	for !nodes[i].Leaf {
		n := nodes[i]
		if values[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return nodes[i].Value
}
