package swap

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AddAccount registers a new account. Its backup directory is derived from
// the layout and the account name; nothing is created on disk until the
// first backup.
func (s *SwapService) AddAccount(ctx context.Context, name, deviceID, networkID string) (*Account, error) {
	if err := validateAccountName(name); err != nil {
		return nil, err
	}

	existing, err := s.store.FindAccountByName(ctx, name)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("checking for existing account: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("account %q already exists (id %d)", name, existing.ID)
	}

	account, err := s.store.CreateAccount(ctx, &Account{
		Name:       name,
		BackupPath: s.layout.BackupPathFor(name),
		DeviceID:   deviceID,
		NetworkID:  networkID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	s.record(ctx, LevelInfo, CategoryAccount, idRef(account.ID), "account %q added", name)
	return account, nil
}

// GetAccount returns the account with the given ID.
func (s *SwapService) GetAccount(ctx context.Context, id int64) (*Account, error) {
	return s.store.GetAccount(ctx, id)
}

// ListAccounts returns every account.
func (s *SwapService) ListAccounts(ctx context.Context) ([]*Account, error) {
	return s.store.ListAccounts(ctx)
}

// SetAccountStatus stores the operator-controlled flags of an account.
func (s *SwapService) SetAccountStatus(ctx context.Context, id int64, susLevel int, hasError bool) (*Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	account.SusLevel = susLevel
	account.HasError = hasError
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("updating account: %w", err)
	}
	return account, nil
}

// DeleteAccount removes an account's backup directory and then its record.
//
// The directory removal is best effort: whatever its outcome, the record is
// deleted exactly once afterwards, so the database never references storage
// that may have been partially removed.
func (s *SwapService) DeleteAccount(ctx context.Context, id int64) error {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	if err := s.archiver.Remove(ctx, account.BackupPath); err != nil {
		s.record(ctx, LevelWarning, CategoryDelete, idRef(id), "removing backup directory of %q failed: %v", account.Name, err)
	}

	if err := s.store.DeleteAccount(context.WithoutCancel(ctx), id); err != nil {
		s.record(ctx, LevelError, CategoryDelete, idRef(id), "deleting record of %q failed: %v", account.Name, err)
		return fmt.Errorf("deleting account record: %w", err)
	}

	s.record(ctx, LevelInfo, CategoryDelete, nil, "account %q deleted", account.Name)
	return nil
}

// validateAccountName rejects names that would escape the storage root.
func validateAccountName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("account name is required")
	case name == "." || name == "..":
		return fmt.Errorf("invalid account name %q", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("account name must not contain '/' or NUL: %q", name)
	}
	return nil
}
