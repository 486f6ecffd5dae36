package krypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Expand derives outLen bytes of subkey material from key using
// HKDF-SHA256 (RFC 5869). Distinct info strings keep subkeys for
// different purposes independent of each other.
func Expand(key, info []byte, outLen int) ([]byte, error) {
	if outLen <= 0 {
		return nil, errors.New("krypto: invalid hkdf length")
	}
	if len(key) == 0 {
		return nil, errors.New("krypto: empty hkdf key")
	}

	out := make([]byte, outLen)
	stream := hkdf.New(sha256.New, key, nil, info)
	if _, err := io.ReadFull(stream, out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}
