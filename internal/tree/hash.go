// internal/tree/hash.go
package tree

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashContent returns the hex SHA-256 digest of raw content.
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// HashChildren derives an internal node's hash from its children's hashes.
// The caller must pass the hashes in the node's child order (sorted by id);
// the digest is a pure function of that sequence, never of fingerprints.
func HashChildren(childHashes []string) string {
	combined := strings.Join(childHashes, "")
	h := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(h[:])
}
