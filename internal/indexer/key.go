package indexer

import (
	"crypto/sha256"
	"encoding/hex"
)

// DocumentKey returns the stable key of the file at the given relative,
// slash-separated path. It depends on the path only, never on content.
func DocumentKey(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}
