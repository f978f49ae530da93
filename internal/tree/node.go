// internal/tree/node.go
package tree

// Fingerprint is a semantic representation of a leaf's content (an
// embedding vector). It is compared, never hashed.
type Fingerprint []float32

type Kind string

const (
	KindLeaf     Kind = "leaf"
	KindInternal Kind = "internal"
)

// Verdict is the per-pass outcome of change evaluation. It is recomputed on
// every pass and carried on nodes for reporting only.
type Verdict string

const (
	VerdictUnevaluated Verdict = "unevaluated"
	VerdictUnchanged   Verdict = "unchanged"
	VerdictChanged     Verdict = "changed"
)

// Node is the persistent unit of the tree.
//
// For a leaf, Hash is the digest of the last accepted content version and
// Fingerprint is the embedding that content was accepted with. An unchanged
// leaf keeps both: the fingerprint stays the comparison baseline so that
// below-threshold drift cannot accumulate unnoticed across passes.
//
// For an internal node, Hash is derived from the sorted-by-id sequence of its
// children's hashes and Fingerprint is always nil.
type Node struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Hash        string      `json:"hash"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	Children    []string    `json:"children,omitempty"`
	Verdict     Verdict     `json:"verdict,omitempty"`
}

func (n *Node) IsLeaf() bool {
	return n.Kind == KindLeaf
}

func (n *Node) GetID() string {
	return n.ID
}
