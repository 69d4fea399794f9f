package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex digests the input to lowercase hex. Used for cache and
// idempotency key derivation.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
