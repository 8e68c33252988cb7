package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the SHA-256 digest of b as 64 lowercase hex characters.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashString returns the SHA-256 digest of s as 64 lowercase hex characters.
func HashString(s string) string {
	return HashBytes([]byte(s))
}
