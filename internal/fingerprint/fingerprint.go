// Package fingerprint computes content fingerprints used for change
// detection. Two byte sequences compare equal iff their fingerprints do,
// independent of file timestamps.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
