package evaluate

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semtree/internal/errors"
	"semtree/internal/tree"
)

// fixedEngine always reports the same difference score.
type fixedEngine struct {
	diff float64
	err  error
}

func (e *fixedEngine) Difference(a, b tree.Fingerprint) (float64, error) {
	return e.diff, e.err
}

// fixedSimilarity reports similarity, the opposite convention.
type fixedSimilarity struct {
	sim float64
}

func (e *fixedSimilarity) Similarity(a, b tree.Fingerprint) (float64, error) {
	return e.sim, nil
}

func TestNewEvaluator(t *testing.T) {
	t.Run("RejectsNilEngine", func(t *testing.T) {
		_, err := NewEvaluator(nil, 0.3)
		require.Error(t, err)
		assert.Equal(t, errors.ErrorTypeConfig, errors.TypeOf(err))
	})

	t.Run("RejectsThresholdOutOfRange", func(t *testing.T) {
		for _, bad := range []float64{-0.01, 1.01, math.NaN()} {
			_, err := NewEvaluator(&fixedEngine{}, bad)
			assert.Error(t, err, "threshold %v", bad)
			assert.Equal(t, errors.ErrorTypeConfig, errors.TypeOf(err))
		}
	})

	t.Run("AcceptsBoundaries", func(t *testing.T) {
		for _, ok := range []float64{0, 0.5, 1} {
			_, err := NewEvaluator(&fixedEngine{}, ok)
			assert.NoError(t, err, "threshold %v", ok)
		}
	})
}

func TestEvaluateVerdicts(t *testing.T) {
	a := tree.Fingerprint{1, 0, 0}
	b := tree.Fingerprint{0, 1, 0}

	cases := []struct {
		name      string
		diff      float64
		threshold float64
		want      tree.Verdict
	}{
		{"BelowThreshold", 0.10, 0.30, tree.VerdictUnchanged},
		{"ExactlyAtThreshold", 0.30, 0.30, tree.VerdictChanged},
		{"AboveThreshold", 0.80, 0.30, tree.VerdictChanged},
		{"ZeroThresholdZeroDiff", 0.00, 0.00, tree.VerdictChanged},
		{"ThresholdOneAnyDiff", 0.99, 1.00, tree.VerdictUnchanged},
		{"ThresholdOneMaxDiff", 1.00, 1.00, tree.VerdictChanged},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval, err := NewEvaluator(&fixedEngine{diff: tc.diff}, tc.threshold)
			require.NoError(t, err)

			verdict, score, err := eval.Evaluate(a, b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, verdict)
			assert.Equal(t, tc.diff, score)
		})
	}
}

// A higher threshold can only move verdicts from Changed toward Unchanged,
// never the other way.
func TestEvaluateMonotonicity(t *testing.T) {
	a := tree.Fingerprint{1, 0}
	b := tree.Fingerprint{0, 1}

	for _, diff := range []float64{0, 0.25, 0.5, 0.75, 1} {
		prevChanged := true
		for _, threshold := range []float64{0, 0.25, 0.5, 0.75, 1} {
			eval, err := NewEvaluator(&fixedEngine{diff: diff}, threshold)
			require.NoError(t, err)

			verdict, _, err := eval.Evaluate(a, b)
			require.NoError(t, err)

			changed := verdict == tree.VerdictChanged
			if changed {
				assert.True(t, prevChanged,
					"diff %v flipped back to changed at threshold %v", diff, threshold)
			}
			prevChanged = changed
		}
	}
}

func TestEvaluateEngineFailures(t *testing.T) {
	a := tree.Fingerprint{1, 0}
	b := tree.Fingerprint{0, 1}

	t.Run("EngineError", func(t *testing.T) {
		eval, err := NewEvaluator(&fixedEngine{err: fmt.Errorf("model unavailable")}, 0.3)
		require.NoError(t, err)

		verdict, _, err := eval.Evaluate(a, b)
		assert.Error(t, err)
		assert.Equal(t, tree.VerdictUnevaluated, verdict)
	})

	t.Run("ScoreOutOfRange", func(t *testing.T) {
		for _, bad := range []float64{-0.5, 1.5, math.NaN()} {
			eval, err := NewEvaluator(&fixedEngine{diff: bad}, 0.3)
			require.NoError(t, err)

			verdict, _, err := eval.Evaluate(a, b)
			assert.Error(t, err, "score %v", bad)
			assert.Equal(t, tree.VerdictUnevaluated, verdict)
		}
	})
}

func TestInvert(t *testing.T) {
	a := tree.Fingerprint{1, 0}
	b := tree.Fingerprint{0, 1}

	t.Run("FlipsConvention", func(t *testing.T) {
		engine := Invert(&fixedSimilarity{sim: 0.85})
		diff, err := engine.Difference(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 0.15, diff, 1e-9)
	})

	t.Run("ClampsOvershoot", func(t *testing.T) {
		engine := Invert(&fixedSimilarity{sim: 1.2})
		diff, err := engine.Difference(a, b)
		require.NoError(t, err)
		assert.Equal(t, 0.0, diff)
	})

	// Same engine, two conventions: the verdict must come out the same
	// whether it reports similarity wrapped in Invert or difference
	// directly.
	t.Run("MatchesDirectDifference", func(t *testing.T) {
		for _, sim := range []float64{0, 0.3, 0.69, 0.7, 0.71, 1} {
			wrapped := Invert(&fixedSimilarity{sim: sim})
			direct := &fixedEngine{diff: 1 - sim}

			evalW, err := NewEvaluator(wrapped, 0.3)
			require.NoError(t, err)
			evalD, err := NewEvaluator(direct, 0.3)
			require.NoError(t, err)

			vw, _, err := evalW.Evaluate(a, b)
			require.NoError(t, err)
			vd, _, err := evalD.Evaluate(a, b)
			require.NoError(t, err)
			assert.Equal(t, vd, vw, "similarity %v", sim)
		}
	})
}

func TestCosineEngine(t *testing.T) {
	engine := NewCosineEngine()

	t.Run("IdenticalVectors", func(t *testing.T) {
		v := tree.Fingerprint{0.5, 0.5, 0.7}
		diff, err := engine.Difference(v, v)
		require.NoError(t, err)
		assert.InDelta(t, 0, diff, 1e-6)
	})

	t.Run("OrthogonalVectors", func(t *testing.T) {
		diff, err := engine.Difference(tree.Fingerprint{1, 0}, tree.Fingerprint{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 1, diff, 1e-6)
	})

	t.Run("ScaleInvariant", func(t *testing.T) {
		diff, err := engine.Difference(tree.Fingerprint{1, 2, 3}, tree.Fingerprint{2, 4, 6})
		require.NoError(t, err)
		assert.InDelta(t, 0, diff, 1e-6)
	})

	t.Run("RejectsEmpty", func(t *testing.T) {
		_, err := engine.Difference(nil, tree.Fingerprint{1})
		assert.Error(t, err)
	})

	t.Run("RejectsDimensionMismatch", func(t *testing.T) {
		_, err := engine.Difference(tree.Fingerprint{1, 2}, tree.Fingerprint{1, 2, 3})
		assert.Error(t, err)
	})

	t.Run("RejectsZeroMagnitude", func(t *testing.T) {
		_, err := engine.Difference(tree.Fingerprint{0, 0}, tree.Fingerprint{1, 1})
		assert.Error(t, err)
	})
}
