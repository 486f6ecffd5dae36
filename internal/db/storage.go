package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ncontiero/password-manager/internal/vault"
)

// LoadParams returns the single derivation-parameters row, or
// vault.ErrParamsNotFound for an uninitialised vault.
func (d *DB) LoadParams() (vault.Params, error) {
	var (
		p       vault.Params
		vaultID string
	)

	err := d.sql.QueryRow(
		`SELECT vault_id, kdf_name, memory_mb, time_cost, parallelism, key_len, salt
		   FROM vault_params WHERE id = 1`,
	).Scan(&vaultID, &p.KDF.Name, &p.KDF.MemoryMB, &p.KDF.Time, &p.KDF.Parallelism, &p.KDF.KeyLen, &p.Salt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vault.Params{}, vault.ErrParamsNotFound
		}
		return vault.Params{}, fmt.Errorf("select params: %w", err)
	}

	p.VaultID, err = uuid.Parse(vaultID)
	if err != nil {
		return vault.Params{}, fmt.Errorf("parse vault id: %w", err)
	}
	return p, nil
}

// SaveParams inserts or replaces the derivation-parameters row.
func (d *DB) SaveParams(p vault.Params) error {
	_, err := d.sql.Exec(
		`INSERT OR REPLACE INTO vault_params
		 (id, vault_id, kdf_name, memory_mb, time_cost, parallelism, key_len, salt)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		p.VaultID.String(), p.KDF.Name, p.KDF.MemoryMB, p.KDF.Time, p.KDF.Parallelism, p.KDF.KeyLen, p.Salt,
	)
	if err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	return nil
}

// LoadEnvelopes returns every envelope ordered by record id.
func (d *DB) LoadEnvelopes() ([]vault.Envelope, error) {
	rows, err := d.sql.Query(
		`SELECT id, format_version, nonce, ciphertext FROM envelopes ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select envelopes: %w", err)
	}
	defer rows.Close()

	var out []vault.Envelope
	for rows.Next() {
		var e vault.Envelope
		if err := rows.Scan(&e.ID, &e.FormatVersion, &e.Nonce, &e.Ciphertext); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate envelopes: %w", err)
	}
	return out, nil
}

// UpsertEnvelope inserts or replaces the envelope for its record id.
func (d *DB) UpsertEnvelope(e vault.Envelope) error {
	_, err := d.sql.Exec(
		`INSERT INTO envelopes (id, format_version, nonce, ciphertext, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   format_version = excluded.format_version,
		   nonce          = excluded.nonce,
		   ciphertext     = excluded.ciphertext,
		   updated_at     = CURRENT_TIMESTAMP`,
		e.ID, e.FormatVersion, e.Nonce, e.Ciphertext,
	)
	if err != nil {
		return fmt.Errorf("upsert envelope: %w", err)
	}
	return nil
}

// DeleteEnvelope removes an envelope row. Deleting an id that was never
// present returns vault.ErrNotFound so a typo'd id is distinguishable
// from success.
func (d *DB) DeleteEnvelope(id int64) error {
	res, err := d.sql.Exec(`DELETE FROM envelopes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if n == 0 {
		return vault.ErrNotFound
	}
	return nil
}

// ReplaceAll swaps the parameters and the whole envelope set in one
// transaction. A failure at any point rolls back to the prior state.
func (d *DB) ReplaceAll(p vault.Params, envelopes []vault.Envelope) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM envelopes`); err != nil {
		return fmt.Errorf("clear envelopes: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO vault_params
		 (id, vault_id, kdf_name, memory_mb, time_cost, parallelism, key_len, salt)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		p.VaultID.String(), p.KDF.Name, p.KDF.MemoryMB, p.KDF.Time, p.KDF.Parallelism, p.KDF.KeyLen, p.Salt,
	); err != nil {
		return fmt.Errorf("replace params: %w", err)
	}
	for _, e := range envelopes {
		if _, err := tx.Exec(
			`INSERT INTO envelopes (id, format_version, nonce, ciphertext) VALUES (?, ?, ?, ?)`,
			e.ID, e.FormatVersion, e.Nonce, e.Ciphertext,
		); err != nil {
			return fmt.Errorf("replace envelope %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}
