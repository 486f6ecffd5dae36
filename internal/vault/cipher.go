package vault

import (
	"fmt"

	"github.com/ncontiero/password-manager/krypto"
)

// Envelope format versions. Nonce and tag lengths are fixed per version so
// old envelopes stay decryptable after a format upgrade.
const (
	// FormatAESGCM is the original record format: AES-256-GCM, 12-byte nonce.
	FormatAESGCM = 1
	// FormatXChaCha is the current format: XChaCha20-Poly1305, 24-byte nonce.
	FormatXChaCha = 2

	// CurrentFormat is used for every new seal.
	CurrentFormat = FormatXChaCha
)

// Per-version HKDF info strings. Each format encrypts under its own subkey
// expanded from the vault key, so a format upgrade never reuses key/nonce
// pairs across constructions.
var formatInfo = map[int][]byte{
	FormatAESGCM:  []byte("vault/record/v1"),
	FormatXChaCha: []byte("vault/record/v2"),
}

// recordAAD binds the format version and record id into the authentication
// tag. An envelope moved to another record slot fails to open.
func recordAAD(version int, id int64) []byte {
	return fmt.Appendf(nil, "record:%d|v%d", id, version)
}

// Seal encrypts a record's canonical plaintext under the vault key,
// generating a fresh random nonce for every call.
func Seal(key []byte, id int64, plaintext []byte) (Envelope, error) {
	if id <= 0 {
		return Envelope{}, fmt.Errorf("%w: non-positive record id", ErrIntegrity)
	}

	subKey, err := krypto.Expand(key, formatInfo[CurrentFormat], krypto.VaultKeyLen)
	if err != nil {
		return Envelope{}, fmt.Errorf("derive record key: %w", err)
	}
	defer krypto.Zero(subKey)

	nonce, ciphertext, err := krypto.EncryptXChaCha(subKey, plaintext, recordAAD(CurrentFormat, id))
	if err != nil {
		return Envelope{}, fmt.Errorf("seal record %d: %w", id, err)
	}

	return Envelope{
		ID:            id,
		FormatVersion: CurrentFormat,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
	}, nil
}

// Open verifies and decrypts an envelope. It never returns partial or
// unauthenticated plaintext: a bad tag, an unrecognized format version, or
// a wrong nonce length all fail with ErrIntegrity.
func Open(key []byte, env Envelope) ([]byte, error) {
	info, ok := formatInfo[env.FormatVersion]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized format version %d", ErrIntegrity, env.FormatVersion)
	}

	subKey, err := krypto.Expand(key, info, krypto.VaultKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive record key: %w", err)
	}
	defer krypto.Zero(subKey)

	aad := recordAAD(env.FormatVersion, env.ID)

	var plaintext []byte
	switch env.FormatVersion {
	case FormatAESGCM:
		plaintext, err = krypto.DecryptAESGCM(subKey, env.Nonce, env.Ciphertext, aad)
	case FormatXChaCha:
		plaintext, err = krypto.DecryptXChaCha(subKey, env.Nonce, env.Ciphertext, aad)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: record %d", ErrIntegrity, env.ID)
	}
	return plaintext, nil
}

// SealV1 seals under the original AES-256-GCM format. Kept for writing
// fixtures that exercise the version fallback in Open.
func SealV1(key []byte, id int64, plaintext []byte) (Envelope, error) {
	if id <= 0 {
		return Envelope{}, fmt.Errorf("%w: non-positive record id", ErrIntegrity)
	}

	subKey, err := krypto.Expand(key, formatInfo[FormatAESGCM], krypto.VaultKeyLen)
	if err != nil {
		return Envelope{}, fmt.Errorf("derive record key: %w", err)
	}
	defer krypto.Zero(subKey)

	nonce, ciphertext, err := krypto.EncryptAESGCM(subKey, plaintext, recordAAD(FormatAESGCM, id))
	if err != nil {
		return Envelope{}, fmt.Errorf("seal record %d: %w", id, err)
	}

	return Envelope{
		ID:            id,
		FormatVersion: FormatAESGCM,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
	}, nil
}
