// internal/embed/embedder.go
package embed

import (
	"context"
	"math"

	"semtree/internal/tree"
)

// Embedder produces a semantic fingerprint for a piece of content.
type Embedder interface {
	Embed(ctx context.Context, text string) (tree.Fingerprint, error)
}

// Normalize scales a fingerprint to unit length. Comparing unit vectors
// keeps cosine scores stable across embedding providers.
func Normalize(fp tree.Fingerprint) tree.Fingerprint {
	var norm float64
	for _, v := range fp {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return fp
	}
	scale := 1 / math.Sqrt(norm)
	out := make(tree.Fingerprint, len(fp))
	for i, v := range fp {
		out[i] = float32(float64(v) * scale)
	}
	return out
}
