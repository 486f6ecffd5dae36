package krypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// ErrWeakParameters is returned when derivation parameters fall below the
// safe floor. Deriving anyway would silently weaken every secret in the
// vault, so the caller gets a hard refusal instead.
var ErrWeakParameters = errors.New("krypto: derivation parameters below safe floor")

const (
	// MinSaltBytes is the smallest salt accepted for key derivation.
	MinSaltBytes = 16
	// DefaultSaltBytes is the salt length generated for new vaults.
	DefaultSaltBytes = 16

	// Floors below which Argon2id offers too little brute-force resistance.
	minMemoryMB = 8
	minTime     = 1

	// VaultKeyLen is the only key length the vault ciphers accept.
	VaultKeyLen = 32
)

// Argon2Params captures tunable cost parameters for Argon2id.
type Argon2Params struct {
	MemoryMB    uint32
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2Params returns the cost settings used for new vaults:
// 64 MiB, three passes, one lane, 256-bit key.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryMB:    64,
		Time:        3,
		Parallelism: 1,
		KeyLen:      VaultKeyLen,
	}
}

// Validate checks the parameters against the safe floor without deriving.
func (p Argon2Params) Validate() error {
	if p.MemoryMB < minMemoryMB {
		return fmt.Errorf("%w: memory %d MiB below %d MiB", ErrWeakParameters, p.MemoryMB, minMemoryMB)
	}
	if p.Time < minTime {
		return fmt.Errorf("%w: time cost %d below %d", ErrWeakParameters, p.Time, minTime)
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be at least 1", ErrWeakParameters)
	}
	if p.KeyLen != VaultKeyLen {
		return fmt.Errorf("%w: key length must be %d bytes", ErrWeakParameters, VaultKeyLen)
	}
	return nil
}

// DeriveKey derives a vault key from a passphrase using Argon2id.
// Identical inputs always produce the identical key; degenerate cost
// parameters or short salts are rejected, never clamped.
func DeriveKey(passphrase, salt []byte, p Argon2Params) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("krypto: passphrase is required")
	}
	if len(salt) < MinSaltBytes {
		return nil, fmt.Errorf("%w: salt %d bytes below %d", ErrWeakParameters, len(salt), MinSaltBytes)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	memoryKB := p.MemoryMB * 1024
	return argon2.IDKey(passphrase, salt, p.Time, memoryKB, p.Parallelism, p.KeyLen), nil
}

// NewRandomSalt returns n cryptographically random bytes, n >= MinSaltBytes.
func NewRandomSalt(n int) ([]byte, error) {
	if n < MinSaltBytes {
		n = DefaultSaltBytes
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
