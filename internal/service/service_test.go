package service_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ncontiero/password-manager/internal/db"
	"github.com/ncontiero/password-manager/internal/service"
	"github.com/ncontiero/password-manager/internal/vault"
	"github.com/ncontiero/password-manager/store"
)

var (
	masterPass = []byte("Correct-Horse-Battery-9!")
	otherPass  = []byte("Wrong-Horse-Battery-42?")
)

func newFileVault(t *testing.T) (*service.Service, *store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewFileStore(dir)
	svc := service.New(st)
	t.Cleanup(svc.Close)

	if err := svc.Init(masterPass); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := svc.Unlock(masterPass); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	return svc, st, dir
}

func TestInitRejectsWeakPassphrase(t *testing.T) {
	svc := service.New(store.NewFileStore(t.TempDir()))
	defer svc.Close()

	if err := svc.Init([]byte("password")); err == nil {
		t.Fatal("expected weak passphrase to be rejected")
	}
}

func TestInitTwiceFails(t *testing.T) {
	svc, _, _ := newFileVault(t)
	if err := svc.Init(masterPass); err == nil {
		t.Fatal("expected second Init to fail")
	}
}

func TestOperationsRequireUnlock(t *testing.T) {
	st := store.NewFileStore(t.TempDir())
	svc := service.New(st)
	defer svc.Close()

	if err := svc.Init(masterPass); err != nil {
		t.Fatalf("Init: %v", err)
	}

	assertLocked := func() {
		t.Helper()
		if _, err := svc.Create("a.com", "u", "p", ""); !errors.Is(err, vault.ErrVaultLocked) {
			t.Fatalf("Create while locked: got %v, want ErrVaultLocked", err)
		}
		if _, err := svc.Read(1); !errors.Is(err, vault.ErrVaultLocked) {
			t.Fatalf("Read while locked: got %v, want ErrVaultLocked", err)
		}
		if err := svc.Update(1, service.Changes{}); !errors.Is(err, vault.ErrVaultLocked) {
			t.Fatalf("Update while locked: got %v, want ErrVaultLocked", err)
		}
		if err := svc.Delete(1); !errors.Is(err, vault.ErrVaultLocked) {
			t.Fatalf("Delete while locked: got %v, want ErrVaultLocked", err)
		}
		if _, err := svc.List(); !errors.Is(err, vault.ErrVaultLocked) {
			t.Fatalf("List while locked: got %v, want ErrVaultLocked", err)
		}
		if err := svc.Rekey(otherPass); !errors.Is(err, vault.ErrVaultLocked) {
			t.Fatalf("Rekey while locked: got %v, want ErrVaultLocked", err)
		}
	}

	assertLocked()

	if err := svc.Unlock(masterPass); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !svc.IsUnlocked() {
		t.Fatal("expected unlocked state")
	}
	svc.Lock()
	if svc.IsUnlocked() {
		t.Fatal("expected locked state after Lock")
	}
	assertLocked()
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "vault.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	svc := service.New(database)
	t.Cleanup(svc.Close)

	if err := svc.Init(masterPass); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := svc.Unlock(masterPass); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	id, err := svc.Create("example.com", "alice", "p@ss1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 1 {
		t.Fatalf("first record id = %d, want 1", id)
	}

	rec, err := svc.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Site != "example.com" || rec.Username != "alice" || rec.Password != "p@ss1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	firstUpdated := rec.UpdatedAt

	time.Sleep(20 * time.Millisecond)
	newPass := "p@ss2"
	if err := svc.Update(id, service.Changes{Password: &newPass}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, err = svc.Read(id)
	if err != nil {
		t.Fatalf("Read after update: %v", err)
	}
	if rec.Password != "p@ss2" {
		t.Fatalf("password = %q, want p@ss2", rec.Password)
	}
	if !rec.UpdatedAt.After(firstUpdated) {
		t.Fatalf("updatedAt %v not newer than %v", rec.UpdatedAt, firstUpdated)
	}

	entries, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Site != "example.com" || entries[0].Username != "alice" {
		t.Fatalf("unexpected listing: %+v", entries)
	}

	// A wrong passphrase unlocks the session but the first read must fail
	// authentication, distinctly from a missing record.
	svc2 := service.New(database)
	t.Cleanup(svc2.Close)
	if err := svc2.Unlock(otherPass); err != nil {
		t.Fatalf("Unlock with wrong passphrase: %v", err)
	}
	if _, err := svc2.Read(id); !errors.Is(err, vault.ErrIntegrity) {
		t.Fatalf("Read under wrong key: got %v, want ErrIntegrity", err)
	}
}

func TestDeleteSemantics(t *testing.T) {
	svc, _, _ := newFileVault(t)

	if err := svc.Delete(99); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("Delete absent id: got %v, want ErrNotFound", err)
	}

	id1, err := svc.Create("one.com", "u1", "pw1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id2, err := svc.Create("two.com", "u2", "pw2", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(id2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Read(id2); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("Read deleted id: got %v, want ErrNotFound", err)
	}
	if err := svc.Delete(id2); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("repeat Delete: got %v, want ErrNotFound", err)
	}

	// Ids are never reused after deletion.
	id3, err := svc.Create("three.com", "u3", "pw3", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id3 <= id2 {
		t.Fatalf("id %d reused after deleting %d", id3, id2)
	}
	if id1 != 1 {
		t.Fatalf("unexpected first id %d", id1)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newFileVault(t)

	if _, err := svc.Create("", "user", "pw", ""); err == nil {
		t.Fatal("expected error for empty site")
	}
	if _, err := svc.Create("site.com", "user", "", ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestRekey(t *testing.T) {
	svc, st, _ := newFileVault(t)

	id, err := svc.Create("example.com", "alice", "p@ss1", "note")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	envsBefore, err := st.LoadEnvelopes()
	if err != nil {
		t.Fatalf("LoadEnvelopes: %v", err)
	}

	if err := svc.Rekey(otherPass); err != nil {
		t.Fatalf("Rekey: %v", err)
	}

	// Session stays unlocked under the new key.
	rec, err := svc.Read(id)
	if err != nil {
		t.Fatalf("Read after rekey: %v", err)
	}
	if rec.Password != "p@ss1" || rec.Notes != "note" {
		t.Fatalf("record lost content across rekey: %+v", rec)
	}

	envsAfter, err := st.LoadEnvelopes()
	if err != nil {
		t.Fatalf("LoadEnvelopes: %v", err)
	}
	if len(envsAfter) != len(envsBefore) {
		t.Fatalf("envelope count changed: %d -> %d", len(envsBefore), len(envsAfter))
	}
	if bytes.Equal(envsBefore[0].Nonce, envsAfter[0].Nonce) {
		t.Fatal("nonce unchanged across rekey")
	}
	if bytes.Equal(envsBefore[0].Ciphertext, envsAfter[0].Ciphertext) {
		t.Fatal("ciphertext unchanged across rekey")
	}

	// Old passphrase no longer opens the vault's records.
	svcOld := service.New(st)
	t.Cleanup(svcOld.Close)
	if err := svcOld.Unlock(masterPass); err != nil {
		t.Fatalf("Unlock with old passphrase: %v", err)
	}
	if _, err := svcOld.Read(id); !errors.Is(err, vault.ErrIntegrity) {
		t.Fatalf("Read under retired key: got %v, want ErrIntegrity", err)
	}

	// New passphrase works from a fresh session.
	svcNew := service.New(st)
	t.Cleanup(svcNew.Close)
	if err := svcNew.Unlock(otherPass); err != nil {
		t.Fatalf("Unlock with new passphrase: %v", err)
	}
	if _, err := svcNew.Read(id); err != nil {
		t.Fatalf("Read under new key: %v", err)
	}
}

func TestRekeyAllOrNothing(t *testing.T) {
	svc, st, dir := newFileVault(t)

	if _, err := svc.Create("one.com", "u1", "pw1", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	id2, err := svc.Create("two.com", "u2", "pw2", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	svc.Lock()

	// Corrupt the second envelope so the rekey pass hits a decryption
	// failure partway through.
	envs, err := st.LoadEnvelopes()
	if err != nil {
		t.Fatalf("LoadEnvelopes: %v", err)
	}
	for _, e := range envs {
		if e.ID == id2 {
			e.Ciphertext[0] ^= 0xFF
			if err := st.UpsertEnvelope(e); err != nil {
				t.Fatalf("UpsertEnvelope: %v", err)
			}
		}
	}

	vaultPath := filepath.Join(dir, "vault.json")
	before, err := os.ReadFile(vaultPath)
	if err != nil {
		t.Fatalf("read vault file: %v", err)
	}

	svc2 := service.New(st)
	t.Cleanup(svc2.Close)
	if err := svc2.Unlock(masterPass); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := svc2.Rekey(otherPass); !errors.Is(err, vault.ErrIntegrity) {
		t.Fatalf("Rekey over corrupted envelope: got %v, want ErrIntegrity", err)
	}

	after, err := os.ReadFile(vaultPath)
	if err != nil {
		t.Fatalf("read vault file: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("persisted vault changed after failed rekey")
	}

	// The intact record is still readable under the original key.
	if _, err := svc2.Read(1); err != nil {
		t.Fatalf("Read intact record after failed rekey: %v", err)
	}
}
