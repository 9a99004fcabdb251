// Copyright 2025 James Ross
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Hash computes the SHA-256 digest of r, streaming in fixed-size chunks so
// large objects never need to be buffered whole in memory.
func Hash(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the SHA-256 digest of b directly.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
