package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ncontiero/password-manager/internal/autolock"
	"github.com/ncontiero/password-manager/internal/db"
	"github.com/ncontiero/password-manager/internal/service"
	"github.com/ncontiero/password-manager/internal/vault"
)

const defaultAutoLock = 10 * time.Minute

var (
	autoLockMu    sync.Mutex
	autoLockTimer *time.Timer
)

func pickVaultDir() string {
	var dir string
	flag.StringVar(&dir, "dir", "", "vault directory")
	flag.Parse()
	if dir != "" {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "vault")
	}
	return "vault"
}

// autoLockAfter resolves the idle interval from the per-vault preference,
// falling back to the default where the platform has no preference store.
func autoLockAfter(vaultDir string) time.Duration {
	state, err := autolock.Get(vaultDir)
	if err != nil || !state.Enabled || state.IdleMinutes <= 0 {
		return defaultAutoLock
	}
	return time.Duration(state.IdleMinutes) * time.Minute
}

func main() {
	vaultDir := pickVaultDir()

	database, err := db.Open(filepath.Join(vaultDir, "vault.db"))
	if err != nil {
		log.Fatalf("open vault database at %s: %v", vaultDir, err)
	}
	defer database.Close()

	svc := service.New(database)
	defer svc.Close()

	a := app.New()
	w := a.NewWindow("Password Manager")
	w.Resize(fyne.NewSize(700, 480))

	root := container.NewStack()
	w.SetContent(root)

	idleInterval := autoLockAfter(vaultDir)

	var showLogin func()
	var showVault func()

	stopAutoLock := func() {
		autoLockMu.Lock()
		if autoLockTimer != nil {
			autoLockTimer.Stop()
			autoLockTimer = nil
		}
		autoLockMu.Unlock()
	}

	resetIdleTimer := func() {
		autoLockMu.Lock()
		if autoLockTimer != nil {
			autoLockTimer.Stop()
		}
		autoLockTimer = time.AfterFunc(idleInterval, func() {
			svc.Lock()
			fyne.Do(showLogin)
		})
		autoLockMu.Unlock()
	}

	showLogin = func() {
		stopAutoLock()
		svc.Lock()

		pass := widget.NewPasswordEntry()
		pass.SetPlaceHolder("Enter master passphrase")

		btnUnlock := widget.NewButton("Unlock", func() {
			if err := svc.Unlock([]byte(pass.Text)); err != nil {
				if errors.Is(err, vault.ErrParamsNotFound) {
					dialog.ShowInformation("Vault", "Vault not initialised; run pw init first.", w)
					return
				}
				dialog.ShowError(fmt.Errorf("unlock failed: %w", err), w)
				return
			}
			pass.SetText("")
			showVault()
		})
		btnUnlock.Importance = widget.HighImportance

		loginCard := widget.NewCard(
			"Vault Locked",
			"Please enter your master passphrase",
			container.NewVBox(pass, btnUnlock),
		)
		root.Objects = []fyne.CanvasObject{
			container.NewCenter(container.NewPadded(loginCard)),
		}
		root.Refresh()
	}

	showVault = func() {
		resetIdleTimer()

		entries, err := svc.List()
		if err != nil {
			dialog.ShowError(fmt.Errorf("list records: %w", err), w)
			showLogin()
			return
		}

		list := widget.NewList(
			func() int { return len(entries) },
			func() fyne.CanvasObject {
				return widget.NewLabel("site / username")
			},
			func(i widget.ListItemID, o fyne.CanvasObject) {
				e := entries[i]
				o.(*widget.Label).SetText(fmt.Sprintf("%s  —  %s", e.Site, e.Username))
			},
		)
		list.OnSelected = func(i widget.ListItemID) {
			resetIdleTimer()
			defer list.UnselectAll()

			rec, err := svc.Read(entries[i].ID)
			if err != nil {
				dialog.ShowError(fmt.Errorf("read record: %w", err), w)
				return
			}
			body := fmt.Sprintf("Site: %s\nUsername: %s\nPassword: %s", rec.Site, rec.Username, rec.Password)
			if rec.Notes != "" {
				body += "\nNotes: " + rec.Notes
			}
			dialog.ShowInformation("Credential", body, w)
		}

		btnAdd := widget.NewButton("Add", func() {
			resetIdleTimer()

			site := widget.NewEntry()
			site.SetPlaceHolder("Site")
			user := widget.NewEntry()
			user.SetPlaceHolder("Username")
			pass := widget.NewPasswordEntry()
			pass.SetPlaceHolder("Password")
			notes := widget.NewEntry()
			notes.SetPlaceHolder("Notes (optional)")

			form := []*widget.FormItem{
				widget.NewFormItem("Site", site),
				widget.NewFormItem("Username", user),
				widget.NewFormItem("Password", pass),
				widget.NewFormItem("Notes", notes),
			}
			dialog.ShowForm("Add credential", "Save", "Cancel", form, func(ok bool) {
				if !ok {
					return
				}
				if _, err := svc.Create(site.Text, user.Text, pass.Text, notes.Text); err != nil {
					dialog.ShowError(fmt.Errorf("add credential: %w", err), w)
					return
				}
				showVault()
			}, w)
		})
		btnAdd.Importance = widget.HighImportance

		btnRefresh := widget.NewButton("Refresh", func() { showVault() })
		btnLock := widget.NewButton("Lock", func() { showLogin() })

		toolbar := container.NewHBox(btnAdd, btnRefresh, btnLock)
		root.Objects = []fyne.CanvasObject{
			container.NewBorder(toolbar, nil, nil, nil, list),
		}
		root.Refresh()
	}

	showLogin()
	w.ShowAndRun()
}
