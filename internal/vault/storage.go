package vault

// Storage is the narrow persistence contract the cryptographic core depends
// on. Implementations only ever see opaque Params and Envelope values, never
// a passphrase, a derived key, or decrypted record fields.
type Storage interface {
	// LoadParams returns the persisted derivation parameters, or
	// ErrParamsNotFound when the vault has not been initialised.
	LoadParams() (Params, error)
	SaveParams(Params) error

	// LoadEnvelopes returns every stored envelope ordered by record id.
	LoadEnvelopes() ([]Envelope, error)
	// UpsertEnvelope inserts or replaces the envelope for its record id.
	UpsertEnvelope(Envelope) error
	// DeleteEnvelope removes an envelope, returning ErrNotFound when the id
	// was never present.
	DeleteEnvelope(id int64) error

	// ReplaceAll atomically swaps the derivation parameters and the entire
	// envelope set. Either everything is replaced or nothing is; a rekey
	// relies on this to stay all-or-nothing.
	ReplaceAll(Params, []Envelope) error
}
