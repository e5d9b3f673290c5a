package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 32-char hex string.
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}
