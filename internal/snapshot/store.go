// internal/snapshot/store.go
package snapshot

import (
	"semtree/internal/tree"
)

// Store persists tree snapshots between passes. The format is opaque to the
// core: the only requirement is an exact round-trip of ids, hashes,
// fingerprints and children order.
type Store interface {
	// Load returns the latest snapshot, or nil if none has been saved.
	Load() (*tree.Snapshot, error)

	// Save persists a snapshot as the new latest.
	Save(snap *tree.Snapshot) error
}
