package envelope

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign returns the lowercase hex SHA1 of the four values sorted and concatenated.
func Sign(token, timestamp, nonce, payload string) string {
	parts := []string{token, timestamp, nonce, payload}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether signature matches the recomputed digest.
func Verify(signature, token, timestamp, nonce, payload string) bool {
	expected := Sign(token, timestamp, nonce, payload)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expected)) == 1
}
