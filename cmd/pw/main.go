package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/ncontiero/password-manager/internal/db"
	"github.com/ncontiero/password-manager/internal/service"
	"github.com/ncontiero/password-manager/internal/vault"
)

const cliVersion = "0.1.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "init":
		if err := runInit(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "session":
		if err := runSession(os.Args[2:]); err != nil {
			handleError(err)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

func openService(dir string) (*service.Service, func(), error) {
	database, err := db.Open(filepath.Join(dir, "vault.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open vault database: %w", err)
	}
	svc := service.New(database)
	cleanup := func() {
		svc.Close()
		_ = database.Close()
	}
	return svc, cleanup, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	fs.StringVar(&dir, "dir", "", "vault directory")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	pw, err := promptPassword("Enter master passphrase: ")
	if err != nil {
		return fmt.Errorf("read master passphrase: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptPassword("Confirm master passphrase: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passphrases do not match"}
	}

	svc, cleanup, err := openService(dir)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Init(pw); err != nil {
		return userError{msg: err.Error()}
	}

	fmt.Printf("vault initialised in %s\n", dir)
	return nil
}

func runSession(args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	fs.StringVar(&dir, "dir", "", "vault directory")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	svc, cleanup, err := openService(dir)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := unlock(svc); err != nil {
		return err
	}

	fmt.Println("session unlocked; type 'help' for commands")
	return sessionLoop(svc)
}

func unlock(svc *service.Service) error {
	pw, err := promptPassword("Enter master passphrase: ")
	if err != nil {
		return fmt.Errorf("read master passphrase: %w", err)
	}
	defer zeroBytes(pw)

	if err := svc.Unlock(pw); err != nil {
		if errors.Is(err, vault.ErrParamsNotFound) {
			return userError{msg: "vault not initialised; run pw init first"}
		}
		return userError{msg: "failed to unlock vault"}
	}
	return nil
}

func sessionLoop(svc *service.Service) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("pw> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Println()
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := fields[0]
		args := fields[1:]

		switch cmd {
		case "help":
			printSessionHelp()
		case "add":
			handleSessionError(sessionAdd(svc, args))
		case "get":
			handleSessionError(sessionGet(svc, args))
		case "list":
			handleSessionError(sessionList(svc))
		case "update":
			handleSessionError(sessionUpdate(svc, args))
		case "delete":
			handleSessionError(sessionDelete(svc, args))
		case "rekey":
			handleSessionError(sessionRekey(svc))
		case "lock":
			svc.Lock()
			fmt.Println("vault locked")
		case "unlock":
			handleSessionError(unlock(svc))
		case "exit", "quit":
			return nil
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		}
	}
}

func sessionAdd(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var site, user, notes string
	fs.StringVar(&site, "site", "", "website identifier")
	fs.StringVar(&user, "user", "", "username")
	fs.StringVar(&notes, "notes", "", "free-form notes")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid add arguments"}
	}
	if site == "" || user == "" {
		return userError{msg: "add requires --site and --user"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	secret, err := promptPassword("Secret: ")
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	defer zeroBytes(secret)

	confirm, err := promptPassword("Confirm: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(secret, confirm) {
		return userError{msg: "secrets do not match"}
	}

	id, err := svc.Create(site, user, string(secret), notes)
	if err != nil {
		return err
	}

	fmt.Printf("stored credential for %s/%s (id=%d)\n", site, user, id)
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, userError{msg: "expected exactly one record id"}
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, userError{msg: "record id must be a positive integer"}
	}
	return id, nil
}

func sessionGet(svc *service.Service, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	rec, err := svc.Read(id)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s: %s\n", rec.Site, rec.Username, rec.Password)
	if rec.Notes != "" {
		fmt.Printf("notes: %s\n", rec.Notes)
	}
	return nil
}

func sessionList(svc *service.Service) error {
	entries, err := svc.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("vault is empty")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%4d  %-30s %-20s %s\n", e.ID, e.Site, e.Username, e.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func sessionUpdate(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var site, user, notes string
	var password bool
	fs.StringVar(&site, "site", "", "new website identifier")
	fs.StringVar(&user, "user", "", "new username")
	fs.StringVar(&notes, "notes", "", "new notes")
	fs.BoolVar(&password, "password", false, "prompt for a new password")

	if len(args) == 0 {
		return userError{msg: "update requires a record id"}
	}
	id, err := parseID(args[:1])
	if err != nil {
		return err
	}
	if err := fs.Parse(args[1:]); err != nil {
		return userError{msg: "invalid update arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	var ch service.Changes
	if site != "" {
		ch.Site = &site
	}
	if user != "" {
		ch.Username = &user
	}
	if notes != "" {
		ch.Notes = &notes
	}
	if password {
		secret, err := promptPassword("New secret: ")
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		defer zeroBytes(secret)
		pw := string(secret)
		ch.Password = &pw
	}
	if ch.Site == nil && ch.Username == nil && ch.Notes == nil && ch.Password == nil {
		return userError{msg: "nothing to update"}
	}

	if err := svc.Update(id, ch); err != nil {
		return err
	}
	fmt.Printf("updated record %d\n", id)
	return nil
}

func sessionDelete(svc *service.Service, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := svc.Delete(id); err != nil {
		return err
	}
	fmt.Printf("deleted record %d\n", id)
	return nil
}

func sessionRekey(svc *service.Service) error {
	pw, err := promptPassword("New master passphrase: ")
	if err != nil {
		return fmt.Errorf("read new master passphrase: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptPassword("Confirm new master passphrase: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passphrases do not match"}
	}

	if err := svc.Rekey(pw); err != nil {
		return err
	}
	fmt.Println("vault rekeyed; all records re-encrypted")
	return nil
}

func handleSessionError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		return
	}

	switch {
	case errors.Is(err, vault.ErrNotFound):
		fmt.Fprintln(os.Stderr, "no record with that id")
	case errors.Is(err, vault.ErrIntegrity):
		fmt.Fprintln(os.Stderr, "integrity check failed: the vault may be corrupted or tampered with, or the passphrase is wrong")
	case errors.Is(err, vault.ErrVaultLocked):
		fmt.Fprintln(os.Stderr, "vault is locked; run 'unlock' first")
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: pw <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  init --dir <vault-dir>")
	fmt.Fprintln(os.Stderr, "  session --dir <vault-dir>")
}

func printSessionHelp() {
	fmt.Println("Commands:")
	fmt.Println("  add --site <website> --user <username> [--notes <text>]")
	fmt.Println("  get <id>")
	fmt.Println("  list")
	fmt.Println("  update <id> [--site s] [--user u] [--notes n] [--password]")
	fmt.Println("  delete <id>")
	fmt.Println("  rekey")
	fmt.Println("  lock | unlock")
	fmt.Println("  exit | quit")
}
