package swap

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Wrapped errors returned by the engine match one of these via errors.Is.
var (
	ErrCommandFailed    = errors.New("command failed")
	ErrParseFailed      = errors.New("parse failed")
	ErrCopyFailed       = errors.New("copy failed")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTransferFailed   = errors.New("transfer failed")
	ErrNotConfigured    = errors.New("not configured")
	ErrAccountNotFound  = errors.New("account not found")
)

// CommandError is returned by an Executor when a command exits non-zero or
// cannot be started.
type CommandError struct {
	Command  string
	Output   string // captured stderr, or stdout when stderr was empty
	ExitCode int    // -1 when the process never ran
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed", e.Command)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }

// PermissionLookupError aggregates the failures of every permission query
// strategy attempted for a path. It matches ErrCommandFailed when every
// command failed and ErrParseFailed otherwise; the individual failures are
// in Attempts.
type PermissionLookupError struct {
	Path     string
	Attempts []error
}

func (e *PermissionLookupError) Is(target error) bool {
	switch target {
	case ErrCommandFailed:
		return e.commandsFailed()
	case ErrParseFailed:
		return !e.commandsFailed()
	}
	return false
}

func (e *PermissionLookupError) commandsFailed() bool {
	for _, err := range e.Attempts {
		if !errors.Is(err, ErrCommandFailed) {
			return false
		}
	}
	return len(e.Attempts) > 0
}

func (e *PermissionLookupError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		parts[i] = fmt.Sprintf("strategy %d: %v", i+1, err)
	}
	return fmt.Sprintf("reading permissions of %s: %s", e.Path, strings.Join(parts, "; "))
}

