// Package fingerprint derives the cache key for a generation request.
//
// The fingerprint covers both the endpoint path and the prompt, so the same
// prompt on different endpoints never collides. The prompt is trimmed of
// leading and trailing whitespace before hashing; internal whitespace and
// case are left alone because they change generation semantics.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded sha256 fingerprint for an endpoint+prompt pair.
func Sum(endpointPath, prompt string) string {
	h := sha256.New()
	h.Write([]byte(endpointPath))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(prompt)))
	return hex.EncodeToString(h.Sum(nil))
}
