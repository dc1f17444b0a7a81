package swap

import (
	"context"
	"fmt"
)

// Backup copies the live app-data directory into the account's backup
// directory, replacing the previous snapshot.
//
// A copy failure fails the backup. Ownership capture and re-application are
// best effort. On success the captured ownership is recorded on the account
// for later restores, and the snapshot is mirrored to the remote when
// auto-upload is on; an upload failure is only a warning.
func (s *SwapService) Backup(ctx context.Context, id int64) (*BackupResult, error) {
	if s.layout.DataDir == "" {
		return nil, fmt.Errorf("%w: app data directory is not set", ErrNotConfigured)
	}

	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("backup started", "account", account.Name, "src", s.layout.DataDir, "dst", account.BackupPath)

	perms, warnings, err := s.archiver.Export(ctx, s.layout.DataDir, account.BackupPath)
	if err != nil {
		s.record(ctx, LevelError, CategoryBackup, idRef(id), "backup of %q failed: %v", account.Name, err)
		return nil, fmt.Errorf("backing up %q: %w", account.Name, err)
	}
	for _, w := range warnings {
		s.record(ctx, LevelWarning, CategoryPermissions, idRef(id), "%s", w)
	}

	now := s.clock.Now()
	account.LastBackupAt = &now
	if perms != nil {
		account.Ownership = perms
	}
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		w := fmt.Sprintf("recording backup metadata failed: %v", err)
		warnings = append(warnings, w)
		s.record(ctx, LevelWarning, CategoryBackup, idRef(id), "%s", w)
	}

	result := &BackupResult{Account: account, Ownership: perms, Warnings: warnings}
	s.record(ctx, LevelInfo, CategoryBackup, idRef(id), "backup of %q completed", account.Name)

	if s.layout.AutoUpload && s.remoteConfigured() {
		uploaded, err := s.uploadSnapshot(ctx, account)
		if err != nil {
			w := fmt.Sprintf("auto-upload failed: %v", err)
			result.Warnings = append(result.Warnings, w)
		} else {
			result.Uploaded = uploaded
		}
	}

	return result, nil
}
