package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// NamespaceKey returns a path-safe, stable directory name for a namespace
// such as an admin id.
func NamespaceKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:32]
}
