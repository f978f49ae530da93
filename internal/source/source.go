// internal/source/source.go
package source

import (
	"context"

	"semtree/internal/tree"
)

// Content is what a source yields for one leaf: the raw bytes and the
// semantic fingerprint they embed to.
type Content struct {
	Raw         []byte
	Fingerprint tree.Fingerprint
}

// ContentSource enumerates the current leaves and reads their content.
// Sources carry no decision logic; they only provide data.
type ContentSource interface {
	ListIDs(ctx context.Context) ([]string, error)
	Read(ctx context.Context, id string) (*Content, error)
}
