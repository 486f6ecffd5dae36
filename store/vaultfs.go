// Package store persists a vault as a single JSON document on disk.
// Every write goes through a temp-file-then-rename cycle, so the
// document is replaced atomically and a crash mid-write leaves the
// previous vault intact. Suitable for small vaults and tests; larger
// vaults use the SQLite backend.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ncontiero/password-manager/internal/vault"
)

const vaultFilename = "vault.json"

// FileStore is a file-backed implementation of vault.Storage.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// document is the on-disk shape: public derivation parameters plus the
// encrypted envelope set. Byte fields serialize as base64.
type document struct {
	Params    vault.Params     `json:"params"`
	Envelopes []vault.Envelope `json:"envelopes"`
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, vaultFilename)
}

func (s *FileStore) load() (document, error) {
	var doc document

	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, vault.ErrParamsNotFound
		}
		return doc, fmt.Errorf("read vault file: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode vault file: %w", err)
	}
	return doc, nil
}

// save writes the document atomically with owner-only permissions.
func (s *FileStore) save(doc document) error {
	if s.dir == "" {
		return errors.New("vault directory not specified")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vault file: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "vault-*.json")
	if err != nil {
		return fmt.Errorf("create temp vault file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp vault file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp vault file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace vault file: %w", err)
	}
	return nil
}

// LoadParams implements vault.Storage.
func (s *FileStore) LoadParams() (vault.Params, error) {
	doc, err := s.load()
	if err != nil {
		return vault.Params{}, err
	}
	return doc.Params, nil
}

// SaveParams implements vault.Storage.
func (s *FileStore) SaveParams(p vault.Params) error {
	doc, err := s.load()
	if err != nil && !errors.Is(err, vault.ErrParamsNotFound) {
		return err
	}
	doc.Params = p
	return s.save(doc)
}

// LoadEnvelopes implements vault.Storage.
func (s *FileStore) LoadEnvelopes() ([]vault.Envelope, error) {
	doc, err := s.load()
	if err != nil {
		if errors.Is(err, vault.ErrParamsNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Envelopes, nil
}

// UpsertEnvelope implements vault.Storage.
func (s *FileStore) UpsertEnvelope(e vault.Envelope) error {
	doc, err := s.load()
	if err != nil && !errors.Is(err, vault.ErrParamsNotFound) {
		return err
	}

	replaced := false
	for i := range doc.Envelopes {
		if doc.Envelopes[i].ID == e.ID {
			doc.Envelopes[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Envelopes = append(doc.Envelopes, e)
	}
	return s.save(doc)
}

// DeleteEnvelope implements vault.Storage.
func (s *FileStore) DeleteEnvelope(id int64) error {
	doc, err := s.load()
	if err != nil {
		if errors.Is(err, vault.ErrParamsNotFound) {
			return vault.ErrNotFound
		}
		return err
	}

	for i := range doc.Envelopes {
		if doc.Envelopes[i].ID == id {
			doc.Envelopes = append(doc.Envelopes[:i], doc.Envelopes[i+1:]...)
			return s.save(doc)
		}
	}
	return vault.ErrNotFound
}

// ReplaceAll implements vault.Storage. The whole document is rewritten in
// one atomic rename.
func (s *FileStore) ReplaceAll(p vault.Params, envelopes []vault.Envelope) error {
	return s.save(document{Params: p, Envelopes: envelopes})
}
