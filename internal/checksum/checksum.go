// Package checksum fingerprints note content so that saves can detect files
// edited on disk after they were loaded.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether data still has the given digest.
func Matches(data []byte, sum string) bool {
	return Sum(data) == sum
}
