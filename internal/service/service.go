// Package service exposes high-level vault operations for the CLI and GUI.
// A Service owns one session: Unlock derives the vault key once, every
// record operation reuses it, and Lock wipes it.
package service

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ncontiero/password-manager/auth"
	"github.com/ncontiero/password-manager/internal/vault"
	"github.com/ncontiero/password-manager/krypto"
)

const kdfName = "argon2id"

// Service orchestrates key derivation, record encryption, and persistence.
// It is the single shared mutable resource of the process: mutations are
// serialized for their whole read-modify-write cycle, reads may run
// concurrently with each other.
type Service struct {
	mu      sync.RWMutex
	storage vault.Storage

	key    []byte // derived vault key; nil while locked
	params vault.Params
	envs   map[int64]vault.Envelope
	nextID int64
}

// New returns a locked service bound to a storage backend.
func New(storage vault.Storage) *Service {
	return &Service{storage: storage}
}

// Init creates the vault: fresh derivation parameters, a vault id, and an
// empty record set. It refuses to run twice and does not unlock.
func (s *Service) Init(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(passphrase) == 0 {
		return errors.New("master passphrase cannot be empty")
	}
	if err := auth.ValidateMasterPassword(string(passphrase)); err != nil {
		return fmt.Errorf("validate master passphrase: %w", err)
	}

	_, err := s.storage.LoadParams()
	switch {
	case err == nil:
		return errors.New("vault already initialised; unlock instead")
	case !errors.Is(err, vault.ErrParamsNotFound):
		return fmt.Errorf("load params: %w", err)
	}

	params, err := newParams()
	if err != nil {
		return err
	}
	if err := s.storage.SaveParams(params); err != nil {
		return fmt.Errorf("persist params: %w", err)
	}
	return nil
}

// newParams generates fresh public derivation parameters with the default
// cost settings. The vault id survives rekeys; the salt does not.
func newParams() (vault.Params, error) {
	cost := krypto.DefaultArgon2Params()
	salt, err := krypto.NewRandomSalt(krypto.DefaultSaltBytes)
	if err != nil {
		return vault.Params{}, fmt.Errorf("generate salt: %w", err)
	}
	return vault.Params{
		VaultID: uuid.New(),
		KDF: vault.KDFConfig{
			Name:        kdfName,
			MemoryMB:    cost.MemoryMB,
			Time:        cost.Time,
			Parallelism: cost.Parallelism,
			KeyLen:      cost.KeyLen,
		},
		Salt: salt,
	}, nil
}

func kdfFromParams(p vault.Params) (krypto.Argon2Params, error) {
	if p.KDF.Name != kdfName {
		return krypto.Argon2Params{}, fmt.Errorf("unsupported kdf %q", p.KDF.Name)
	}
	return krypto.Argon2Params{
		MemoryMB:    p.KDF.MemoryMB,
		Time:        p.KDF.Time,
		Parallelism: p.KDF.Parallelism,
		KeyLen:      p.KDF.KeyLen,
	}, nil
}

// Unlock derives the session key from the passphrase and caches it until
// Lock. A wrong passphrase is not detected here; the first Read fails
// with an integrity violation instead.
func (s *Service) Unlock(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := s.storage.LoadParams()
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}
	kdf, err := kdfFromParams(params)
	if err != nil {
		return err
	}

	key, err := krypto.DeriveKey(passphrase, params.Salt, kdf)
	if err != nil {
		return fmt.Errorf("derive vault key: %w", err)
	}

	envelopes, err := s.storage.LoadEnvelopes()
	if err != nil {
		krypto.Zero(key)
		return fmt.Errorf("load envelopes: %w", err)
	}

	s.wipeKeyLocked()
	s.key = key
	s.params = params
	s.envs = make(map[int64]vault.Envelope, len(envelopes))
	s.nextID = 1
	for _, e := range envelopes {
		s.envs[e.ID] = e
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}
	return nil
}

// Lock wipes the session key and returns the service to the locked state.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipeKeyLocked()
	s.envs = nil
}

// Close is Lock under a name that reads well in a defer.
func (s *Service) Close() {
	s.Lock()
}

// IsUnlocked reports whether a session key is currently held.
func (s *Service) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

func (s *Service) wipeKeyLocked() {
	if s.key != nil {
		krypto.Zero(s.key)
		s.key = nil
	}
}

// Create encrypts a new credential record and returns its id. Ids are
// allocated monotonically and never reused after a delete.
func (s *Service) Create(site, username, password, notes string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		return 0, vault.ErrVaultLocked
	}
	if site == "" || username == "" {
		return 0, errors.New("site and username are required")
	}
	if password == "" {
		return 0, errors.New("password cannot be empty")
	}
	if s.nextID == math.MaxInt64 {
		return 0, vault.ErrStoreFull
	}

	id := s.nextID
	rec := vault.PlainRecord{
		ID:        id,
		Site:      site,
		Username:  username,
		Password:  password,
		Notes:     notes,
		UpdatedAt: time.Now().UTC(),
	}

	env, err := s.sealRecord(rec)
	if err != nil {
		return 0, err
	}
	if err := s.storage.UpsertEnvelope(env); err != nil {
		return 0, fmt.Errorf("store envelope: %w", err)
	}

	s.envs[id] = env
	s.nextID++
	return id, nil
}

func (s *Service) sealRecord(rec vault.PlainRecord) (vault.Envelope, error) {
	plaintext, err := vault.EncodeRecord(rec)
	if err != nil {
		return vault.Envelope{}, err
	}
	defer krypto.Zero(plaintext)

	env, err := vault.Seal(s.key, rec.ID, plaintext)
	if err != nil {
		return vault.Envelope{}, err
	}
	return env, nil
}

func (s *Service) openRecord(id int64) (vault.PlainRecord, error) {
	env, ok := s.envs[id]
	if !ok {
		return vault.PlainRecord{}, vault.ErrNotFound
	}

	plaintext, err := vault.Open(s.key, env)
	if err != nil {
		return vault.PlainRecord{}, err
	}
	defer krypto.Zero(plaintext)

	rec, err := vault.DecodeRecord(plaintext)
	if err != nil {
		return vault.PlainRecord{}, err
	}
	if rec.ID != id {
		return vault.PlainRecord{}, fmt.Errorf("%w: record id %d inside envelope %d", vault.ErrIntegrity, rec.ID, id)
	}
	return rec, nil
}

// Read decrypts and returns a single record. The envelope is authenticated
// before any plaintext is released.
func (s *Service) Read(id int64) (vault.PlainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return vault.PlainRecord{}, vault.ErrVaultLocked
	}
	return s.openRecord(id)
}

// Changes carries optional field updates; nil means keep the stored value.
type Changes struct {
	Site     *string
	Username *string
	Password *string
	Notes    *string
}

// Update applies field changes to a record and re-seals it with a fresh
// nonce, bumping its timestamp. The read-modify-write cycle holds the
// mutation lock throughout.
func (s *Service) Update(id int64, ch Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		return vault.ErrVaultLocked
	}

	rec, err := s.openRecord(id)
	if err != nil {
		return err
	}

	if ch.Site != nil {
		rec.Site = *ch.Site
	}
	if ch.Username != nil {
		rec.Username = *ch.Username
	}
	if ch.Password != nil {
		rec.Password = *ch.Password
	}
	if ch.Notes != nil {
		rec.Notes = *ch.Notes
	}
	rec.UpdatedAt = time.Now().UTC()

	env, err := s.sealRecord(rec)
	if err != nil {
		return err
	}
	if err := s.storage.UpsertEnvelope(env); err != nil {
		return fmt.Errorf("store envelope: %w", err)
	}
	s.envs[id] = env
	return nil
}

// Delete removes a record. Deleting an id that was never present fails
// with ErrNotFound; silent idempotence would hide caller mistakes.
func (s *Service) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		return vault.ErrVaultLocked
	}
	if _, ok := s.envs[id]; !ok {
		return vault.ErrNotFound
	}
	if err := s.storage.DeleteEnvelope(id); err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	delete(s.envs, id)
	return nil
}

// List returns display metadata for every record, sorted by id. Passwords
// and notes are dropped before returning.
func (s *Service) List() ([]vault.ListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return nil, vault.ErrVaultLocked
	}

	ids := make([]int64, 0, len(s.envs))
	for id := range s.envs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]vault.ListEntry, 0, len(ids))
	for _, id := range ids {
		rec, err := s.openRecord(id)
		if err != nil {
			return nil, err
		}
		out = append(out, vault.ListEntry{
			ID:        rec.ID,
			Site:      rec.Site,
			Username:  rec.Username,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

// Rekey derives a brand-new vault key from fresh parameters, re-seals
// every record under it with fresh nonces, and atomically replaces the
// persisted parameters and envelope set. Any single decryption failure
// aborts the whole operation with no persisted change; the session stays
// unlocked under the new key on success.
func (s *Service) Rekey(newPassphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		return vault.ErrVaultLocked
	}
	if len(newPassphrase) == 0 {
		return errors.New("new master passphrase cannot be empty")
	}
	if err := auth.ValidateMasterPassword(string(newPassphrase)); err != nil {
		return fmt.Errorf("validate new master passphrase: %w", err)
	}

	// Decrypt everything under the old key before touching anything.
	ids := make([]int64, 0, len(s.envs))
	for id := range s.envs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	plaintexts := make(map[int64][]byte, len(ids))
	defer func() {
		for _, pt := range plaintexts {
			krypto.Zero(pt)
		}
	}()
	for _, id := range ids {
		pt, err := vault.Open(s.key, s.envs[id])
		if err != nil {
			return fmt.Errorf("rekey aborted: %w", err)
		}
		plaintexts[id] = pt
	}

	newParams, err := newParams()
	if err != nil {
		return err
	}
	newParams.VaultID = s.params.VaultID

	kdf, err := kdfFromParams(newParams)
	if err != nil {
		return err
	}
	newKey, err := krypto.DeriveKey(newPassphrase, newParams.Salt, kdf)
	if err != nil {
		return fmt.Errorf("derive new vault key: %w", err)
	}

	newEnvs := make([]vault.Envelope, 0, len(ids))
	for _, id := range ids {
		env, err := vault.Seal(newKey, id, plaintexts[id])
		if err != nil {
			krypto.Zero(newKey)
			return err
		}
		newEnvs = append(newEnvs, env)
	}

	if err := s.storage.ReplaceAll(newParams, newEnvs); err != nil {
		krypto.Zero(newKey)
		return fmt.Errorf("persist rekeyed vault: %w", err)
	}

	s.wipeKeyLocked()
	s.key = newKey
	s.params = newParams
	s.envs = make(map[int64]vault.Envelope, len(newEnvs))
	for _, e := range newEnvs {
		s.envs[e.ID] = e
	}
	return nil
}
