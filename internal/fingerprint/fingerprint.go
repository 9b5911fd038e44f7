// Package fingerprint computes the content identity used for integrity checks.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the number of hex characters shown as the commit hash.
const ShortLen = 12

// Of returns the lowercase hex SHA-256 digest of content. It depends on the
// bytes only and is total over all inputs, including empty ones.
func Of(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Short truncates a fingerprint to its display form.
func Short(fp string) string {
	if len(fp) <= ShortLen {
		return fp
	}
	return fp[:ShortLen]
}
