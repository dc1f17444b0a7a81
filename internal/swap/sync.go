package swap

import (
	"context"
	"fmt"
	"os"
)

func (s *SwapService) remoteConfigured() bool {
	return s.remote != nil && s.remote.Configured() && s.packer != nil
}

func (s *SwapService) requireRemote() error {
	switch {
	case s.remote == nil:
		return fmt.Errorf("%w: remote sync", ErrNotConfigured)
	case !s.remote.Configured():
		return fmt.Errorf("%w: %s remote settings are incomplete", ErrNotConfigured, s.remote.Name())
	case s.packer == nil:
		return fmt.Errorf("%w: storage.archive_dir is not set", ErrNotConfigured)
	}
	return nil
}

// TestConnection checks that the remote target is reachable and usable.
func (s *SwapService) TestConnection(ctx context.Context) (string, error) {
	if err := s.requireRemote(); err != nil {
		return "", err
	}
	msg, err := s.remote.TestConnection(ctx)
	if err != nil {
		s.record(ctx, LevelError, CategorySync, nil, "%s connection test failed: %v", s.remote.Name(), err)
		return "", err
	}
	s.record(ctx, LevelInfo, CategorySync, nil, "%s connection test succeeded: %s", s.remote.Name(), msg)
	return msg, nil
}

// UploadSnapshot archives the account's current snapshot and uploads it.
func (s *SwapService) UploadSnapshot(ctx context.Context, id int64) (*SyncResult, error) {
	if err := s.requireRemote(); err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.uploadSnapshot(ctx, account)
}

func (s *SwapService) uploadSnapshot(ctx context.Context, account *Account) (*SyncResult, error) {
	archivePath, err := s.packer.Pack(ctx, account)
	if err != nil {
		s.record(ctx, LevelError, CategorySync, idRef(account.ID), "archiving %q failed: %v", account.Name, err)
		return nil, err
	}
	defer func() {
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing local archive failed", "path", archivePath, "error", err)
		}
	}()

	result, err := s.remote.Upload(ctx, archivePath)
	if err != nil {
		s.record(ctx, LevelError, CategorySync, idRef(account.ID), "uploading %q to %s failed: %v", account.Name, s.remote.Name(), err)
		return nil, err
	}
	s.record(ctx, LevelInfo, CategorySync, idRef(account.ID), "uploaded %s (%d bytes) to %s", result.Name, result.Bytes, s.remote.Name())
	return result, nil
}

// DownloadArchive fetches a remote archive into localDir.
func (s *SwapService) DownloadArchive(ctx context.Context, remoteName, localDir string) (*SyncResult, error) {
	if err := s.requireRemote(); err != nil {
		return nil, err
	}
	result, err := s.remote.Download(ctx, remoteName, localDir)
	if err != nil {
		s.record(ctx, LevelError, CategorySync, nil, "downloading %s from %s failed: %v", remoteName, s.remote.Name(), err)
		return nil, err
	}
	s.record(ctx, LevelInfo, CategorySync, nil, "downloaded %s (%d bytes) from %s", result.Name, result.Bytes, s.remote.Name())
	return result, nil
}

// ListRemote returns the archives present on the remote target.
func (s *SwapService) ListRemote(ctx context.Context) ([]RemoteEntry, error) {
	if err := s.requireRemote(); err != nil {
		return nil, err
	}
	return s.remote.List(ctx)
}

// ImportArchive replaces the account's snapshot with the contents of a
// local archive. It does not touch the live app-data directory; run Restore
// afterwards to apply it.
func (s *SwapService) ImportArchive(ctx context.Context, id int64, archivePath string, decryptCtx DecryptionContext) error {
	if s.packer == nil {
		return fmt.Errorf("%w: archive directory", ErrNotConfigured)
	}
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := s.packer.Unpack(ctx, archivePath, account.BackupPath, decryptCtx); err != nil {
		s.record(ctx, LevelError, CategorySync, idRef(id), "importing archive into %q failed: %v", account.Name, err)
		return err
	}
	s.record(ctx, LevelInfo, CategorySync, idRef(id), "archive imported into %q snapshot", account.Name)
	return nil
}
