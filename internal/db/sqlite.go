package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB is a SQLite-backed implementation of vault.Storage. It holds only
// opaque derivation parameters and encrypted envelopes; plaintext never
// reaches this layer.
type DB struct {
	sql  *sql.DB
	path string
}

// Open initialises the SQLite database at path, creating the directory,
// schema, and restrictive file permissions as needed.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := ensurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	d := &DB{sql: handle, path: path}
	if err := d.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// ensurePerm0600 restricts the database file to its owner on Unix systems.
func ensurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod database: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS vault_params (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	vault_id    TEXT    NOT NULL,
	kdf_name    TEXT    NOT NULL,
	memory_mb   INTEGER NOT NULL,
	time_cost   INTEGER NOT NULL,
	parallelism INTEGER NOT NULL,
	key_len     INTEGER NOT NULL,
	salt        BLOB    NOT NULL
);

CREATE TABLE IF NOT EXISTS envelopes (
	id             INTEGER PRIMARY KEY,
	format_version INTEGER NOT NULL,
	nonce          BLOB    NOT NULL,
	ciphertext     BLOB    NOT NULL,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (d *DB) migrate() error {
	if _, err := d.sql.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
