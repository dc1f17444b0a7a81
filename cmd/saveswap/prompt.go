package main

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"
)

var readPassword = term.ReadPassword

func ensureInteractiveStdin() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("passphrase entry requires an interactive terminal (stdin is not a TTY)")
	}
	return nil
}

// promptPassphrase reads a passphrase without echo.
func promptPassphrase(prompt string) (string, error) {
	if err := ensureInteractiveStdin(); err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	pass := bytes.TrimSpace(b)
	if len(pass) == 0 {
		return "", fmt.Errorf("passphrase cannot be empty")
	}
	return string(pass), nil
}

// promptAndConfirmPassphrase asks for a new passphrase twice.
func promptAndConfirmPassphrase() (string, error) {
	first, err := promptPassphrase("New passphrase (input is not echoed): ")
	if err != nil {
		return "", err
	}
	second, err := promptPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}
