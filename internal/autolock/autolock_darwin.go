//go:build darwin

package autolock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	keychain "github.com/keybase/go-keychain"
)

const (
	keychainService = "com.ncontiero.password-manager.autolock"
	keychainLabel   = "password-manager auto-lock preference"
)

// accountForDirectory canonicalizes a vault directory into a stable
// Keychain account string: the absolute, symlink-resolved path.
func accountForDirectory(directory string) (string, error) {
	directory = strings.TrimSpace(directory)
	if directory == "" {
		return "", errors.New("vault directory is required")
	}

	abs, err := filepath.Abs(directory)
	if err != nil {
		return "", fmt.Errorf("resolve directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != "" {
		abs = resolved
	}
	return abs, nil
}

// Set persists the auto-lock preference for a vault directory. The item is
// device-local, never synchronized, and readable only while the device is
// unlocked.
func Set(directory string, state State) error {
	account, err := accountForDirectory(directory)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode preference: %w", err)
	}

	item := keychain.NewItem()
	item.SetSecClass(keychain.SecClassGenericPassword)
	item.SetService(keychainService)
	item.SetAccount(account)
	item.SetLabel(keychainLabel)
	item.SetData(payload)
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)

	err = keychain.AddItem(item)
	if errors.Is(err, keychain.ErrorDuplicateItem) {
		query := keychain.NewItem()
		query.SetSecClass(keychain.SecClassGenericPassword)
		query.SetService(keychainService)
		query.SetAccount(account)

		update := keychain.NewItem()
		update.SetData(payload)
		return keychain.UpdateItem(query, update)
	}
	return err
}

// Get reads the auto-lock preference for a vault directory. A missing item
// yields the zero State with no error.
func Get(directory string) (State, error) {
	account, err := accountForDirectory(directory)
	if err != nil {
		return State{}, err
	}

	query := keychain.NewItem()
	query.SetSecClass(keychain.SecClassGenericPassword)
	query.SetService(keychainService)
	query.SetAccount(account)
	query.SetMatchLimit(keychain.MatchLimitOne)
	query.SetReturnData(true)

	results, err := keychain.QueryItem(query)
	if err != nil {
		return State{}, fmt.Errorf("query keychain: %w", err)
	}
	if len(results) == 0 {
		return State{}, nil
	}

	var state State
	if err := json.Unmarshal(results[0].Data, &state); err != nil {
		return State{}, fmt.Errorf("decode preference: %w", err)
	}
	return state, nil
}
