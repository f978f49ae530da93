// internal/evaluate/evaluator.go
package evaluate

import (
	"fmt"
	"math"

	"semtree/internal/errors"
	"semtree/internal/tree"
)

// Evaluator turns a fingerprint comparison into a verdict. It is a pure
// function of its inputs: no state beyond the configured engine and
// threshold, no side effects.
type Evaluator struct {
	engine    Engine
	threshold float64
}

// NewEvaluator validates the threshold once, at configuration time. A
// threshold outside [0,1] is a ConfigError, never silently clamped.
func NewEvaluator(engine Engine, threshold float64) (*Evaluator, error) {
	if engine == nil {
		return nil, errors.Config("similarity engine is required")
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, errors.Config("threshold must be in [0,1], got %v", threshold)
	}
	return &Evaluator{engine: engine, threshold: threshold}, nil
}

func (e *Evaluator) Threshold() float64 {
	return e.threshold
}

// Evaluate compares the old (last accepted) fingerprint against the current
// one and returns the verdict together with the raw difference score.
//
// Content is unchanged when difference < threshold. With threshold 0 any
// measurable difference triggers Changed, which degenerates to classic
// Merkle behavior; with threshold 1 every evaluated leaf is Unchanged. Both
// extremes are intended.
func (e *Evaluator) Evaluate(old, current tree.Fingerprint) (tree.Verdict, float64, error) {
	diff, err := e.engine.Difference(old, current)
	if err != nil {
		return tree.VerdictUnevaluated, 0, err
	}
	if math.IsNaN(diff) || diff < 0 || diff > 1 {
		return tree.VerdictUnevaluated, 0, fmt.Errorf("difference score %v out of [0,1] range", diff)
	}
	if diff < e.threshold {
		return tree.VerdictUnchanged, diff, nil
	}
	return tree.VerdictChanged, diff, nil
}
