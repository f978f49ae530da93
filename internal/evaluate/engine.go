// internal/evaluate/engine.go
package evaluate

import (
	"fmt"
	"math"

	"semtree/internal/tree"
)

// Engine scores how different two fingerprints are. Scores live in [0,1]:
// 0 means identical meaning, 1 means maximally dissimilar.
type Engine interface {
	Difference(a, b tree.Fingerprint) (float64, error)
}

// SimilarityEngine is the opposite convention: 1 means identical meaning.
// Engines that natively report similarity must be wrapped with Invert before
// they reach an Evaluator; the threshold is a difference ceiling, not a
// similarity floor.
type SimilarityEngine interface {
	Similarity(a, b tree.Fingerprint) (float64, error)
}

type invertingEngine struct {
	inner SimilarityEngine
}

// Invert adapts a similarity-reporting engine to the difference convention.
func Invert(e SimilarityEngine) Engine {
	return &invertingEngine{inner: e}
}

func (e *invertingEngine) Difference(a, b tree.Fingerprint) (float64, error) {
	sim, err := e.inner.Similarity(a, b)
	if err != nil {
		return 0, err
	}
	return clamp01(1 - sim), nil
}

// CosineEngine reports 1 minus the cosine similarity of two vectors,
// clamped into [0,1].
type CosineEngine struct{}

func NewCosineEngine() *CosineEngine {
	return &CosineEngine{}
}

func (e *CosineEngine) Similarity(a, b tree.Fingerprint) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("empty fingerprint")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("fingerprint dimensions differ: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude fingerprint")
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0, fmt.Errorf("cosine similarity is NaN")
	}
	return sim, nil
}

func (e *CosineEngine) Difference(a, b tree.Fingerprint) (float64, error) {
	sim, err := e.Similarity(a, b)
	if err != nil {
		return 0, err
	}
	return clamp01(1 - sim), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
