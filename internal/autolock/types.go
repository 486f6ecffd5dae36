// Package autolock stores a per-vault auto-lock preference. On macOS the
// preference lives in the system Keychain; other platforms report
// ErrUnsupported and callers fall back to the built-in default.
package autolock

import "errors"

// ErrUnsupported indicates the platform has no preference store.
var ErrUnsupported = errors.New("autolock: unsupported on this platform")

// State is the persisted preference. It contains no secret material.
type State struct {
	Enabled     bool `json:"enabled"`
	IdleMinutes int  `json:"idleMinutes"`
}
