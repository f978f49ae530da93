// internal/tree/snapshot.go
package tree

import (
	"sort"
	"time"

	"semtree/internal/errors"
)

// Snapshot is a full materialized tree at a point in time. A verify pass
// reads the prior snapshot and produces a new one; it never mutates the
// prior in place.
type Snapshot struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	RootID    string           `json:"root_id"`
	RootHash  string           `json:"root_hash"`
	Nodes     map[string]*Node `json:"nodes"`
}

// Leaves returns the snapshot's leaf nodes keyed by id.
func (s *Snapshot) Leaves() map[string]*Node {
	leaves := make(map[string]*Node)
	for id, n := range s.Nodes {
		if n.IsLeaf() {
			leaves[id] = n
		}
	}
	return leaves
}

// NodeIDs returns all node ids in sorted order.
func (s *Snapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks the snapshot's structural invariants. A snapshot that
// fails here must not be used as the prior of a pass.
func (s *Snapshot) Validate() error {
	if len(s.Nodes) == 0 {
		if s.RootID != "" || s.RootHash != "" {
			return errors.SnapshotCorrupt("empty snapshot references root %q", s.RootID)
		}
		return nil
	}

	root, ok := s.Nodes[s.RootID]
	if !ok {
		return errors.SnapshotCorrupt("root id %q not present in node set", s.RootID)
	}
	if root.Hash != s.RootHash {
		return errors.SnapshotCorrupt("root_hash does not match hash of root node %q", s.RootID)
	}

	parentOf := make(map[string]string)
	for id, n := range s.Nodes {
		if n.ID != id {
			return errors.SnapshotCorrupt("node keyed %q carries id %q", id, n.ID)
		}
		if n.IsLeaf() {
			if len(n.Children) > 0 {
				return errors.SnapshotCorrupt("leaf %q has children", id)
			}
			continue
		}

		seen := make(map[string]bool, len(n.Children))
		for _, child := range n.Children {
			if _, ok := s.Nodes[child]; !ok {
				return errors.SnapshotCorrupt("node %q references dangling child %q", id, child)
			}
			if seen[child] {
				return errors.SnapshotCorrupt("node %q lists child %q twice", id, child)
			}
			seen[child] = true
			if prev, ok := parentOf[child]; ok {
				return errors.SnapshotCorrupt("node %q claimed by parents %q and %q", child, prev, id)
			}
			parentOf[child] = id
		}
		if !sort.StringsAreSorted(n.Children) {
			return errors.SnapshotCorrupt("node %q children are not in sorted order", id)
		}
	}

	if _, ok := parentOf[s.RootID]; ok {
		return errors.SnapshotCorrupt("root %q is a child of %q", s.RootID, parentOf[s.RootID])
	}

	// Walking parent links upward from every node must terminate at the
	// root; a cycle would loop past the node count.
	for id := range s.Nodes {
		cur, steps := id, 0
		for {
			parent, ok := parentOf[cur]
			if !ok {
				break
			}
			cur = parent
			steps++
			if steps > len(s.Nodes) {
				return errors.SnapshotCorrupt("cycle detected through node %q", id)
			}
		}
		if cur != s.RootID {
			return errors.SnapshotCorrupt("node %q is not reachable from root %q", id, s.RootID)
		}
	}

	return nil
}
