package vault

import (
	"time"

	"github.com/google/uuid"
)

// KDFConfig describes the key-derivation cost settings persisted with the vault.
type KDFConfig struct {
	Name        string `json:"name"`
	MemoryMB    uint32 `json:"memoryMB"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"keyLen"`
}

// Params are the public derivation parameters stored alongside the vault.
// They are generated once at vault creation and replaced only by a rekey.
type Params struct {
	VaultID uuid.UUID `json:"vaultId"`
	KDF     KDFConfig `json:"kdf"`
	Salt    []byte    `json:"salt"`
}

// PlainRecord is a decrypted credential entry. It exists only transiently
// in memory and is never persisted in this form.
type PlainRecord struct {
	ID        int64     `json:"id"`
	Site      string    `json:"site"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Envelope is the only on-disk representation of a record's sensitive
// content. Ciphertext carries the AEAD tag; nonce length is fixed by the
// format version and the nonce never repeats under the same key.
type Envelope struct {
	ID            int64  `json:"id"`
	FormatVersion int    `json:"formatVersion"`
	Nonce         []byte `json:"nonce"`
	Ciphertext    []byte `json:"ciphertext"`
}

// ListEntry is the metadata surfaced by bulk listing. Passwords and notes
// are deliberately absent.
type ListEntry struct {
	ID        int64
	Site      string
	Username  string
	UpdatedAt time.Time
}
