package vault

import "errors"

var (
	// ErrVaultLocked is returned when an operation requires an unlocked session.
	ErrVaultLocked = errors.New("vault: locked")
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("vault: record not found")
	// ErrIntegrity signals an authentication failure: a tampered or corrupted
	// envelope, an unrecognized format version, or a record bound to a
	// different id. Distinct from ErrNotFound so "wrong id" and "vault may be
	// tampered with" stay distinguishable.
	ErrIntegrity = errors.New("vault: integrity violation")
	// ErrMalformedRecord is returned when authenticated plaintext fails to
	// decode. It indicates a format bug rather than an attack.
	ErrMalformedRecord = errors.New("vault: malformed record")
	// ErrStoreFull is returned when the record identifier space is exhausted.
	ErrStoreFull = errors.New("vault: record id space exhausted")
	// ErrParamsNotFound is returned by storage when the vault has not been
	// initialised with derivation parameters.
	ErrParamsNotFound = errors.New("vault: derivation parameters not found")
)
