package canon

import (
	"encoding/hex"
	"strings"

	"lukechampine.com/blake3"
)

// HashPrefix is prepended to every event hash's hex digest.
const HashPrefix = "blake3:"

// Hash returns the engine's content hash of preimage, formatted
// "blake3:<64 lowercase hex>" (spec §4.A).
func Hash(preimage []byte) string {
	sum := blake3.Sum256(preimage)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// ValidHashFormat reports whether s has the shape "blake3:<64 hex>".
func ValidHashFormat(s string) bool {
	if !strings.HasPrefix(s, HashPrefix) {
		return false
	}
	hexPart := s[len(HashPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHex {
			return false
		}
	}
	return true
}
