package swap

import (
	"context"
	"fmt"
)

// Restore replaces the live app-data directory with the account's snapshot.
//
// Each invocation moves Idle -> Restoring -> Success|Failure:
//  1. resolve the account and its backup directory, stop the app and
//     capture the live directory's ownership (both best effort);
//  2. copy the snapshot over the live directory; a failure here is terminal
//     and no ownership change is attempted;
//  3. re-apply ownership: the triple recorded at backup time, else the live
//     triple captured in step 1, else the snapshot's own; a failure here is
//     a warning because the file content is the primary success criterion;
//  4. record the outcome in the activity log.
func (s *SwapService) Restore(ctx context.Context, id int64) *RestoreResult {
	s.setRestoreState(id, RestoreIdle)
	s.setRestoreState(id, RestoreRestoring)

	result := &RestoreResult{State: RestoreRestoring}
	fail := func(err error) *RestoreResult {
		result.State = RestoreFailure
		result.Reason = err
		s.setRestoreState(id, RestoreFailure)
		s.record(ctx, LevelError, CategoryRestore, idRef(id), "restore failed: %v", err)
		return result
	}
	warn := func(format string, args ...any) {
		w := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, w)
		s.record(ctx, LevelWarning, CategoryRestore, idRef(id), "%s", w)
	}

	// Step 1: resolve.
	if s.layout.DataDir == "" {
		return fail(fmt.Errorf("%w: app data directory is not set", ErrNotConfigured))
	}
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return fail(err)
	}
	if _, err := s.exec.Execute(ctx, "test -d "+Quote(account.BackupPath)); err != nil {
		return fail(fmt.Errorf("no backup found for %q at %s: %w", account.Name, account.BackupPath, err))
	}

	s.logger.Info("restore started", "account", account.Name, "src", account.BackupPath, "dst", s.layout.DataDir)

	if s.layout.Package != "" {
		if _, err := s.exec.Execute(ctx, "am force-stop "+Quote(s.layout.Package)); err != nil {
			warn("stopping %s failed: %v", s.layout.Package, err)
		}
	}

	live, err := s.inspector.GetFilePermissions(ctx, s.layout.DataDir)
	if err != nil {
		s.logger.Warn("capturing live permissions failed", "path", s.layout.DataDir, "error", err)
		live = nil
	}

	// Step 2: copy.
	snapshotPerms, copyWarnings, err := s.archiver.Import(ctx, account.BackupPath, s.layout.DataDir)
	for _, w := range copyWarnings {
		warn("%s", w)
	}
	if err != nil {
		return fail(err)
	}

	// Step 3: ownership.
	target := account.Ownership
	if target == nil {
		target = live
	}
	if target == nil {
		target = snapshotPerms
	}
	if target == nil {
		warn("no ownership known for %s; fix permissions manually", s.layout.DataDir)
	} else if err := s.inspector.Apply(ctx, s.layout.DataDir, target); err != nil {
		warn("restoring ownership %s failed: %v", target, err)
	}

	// Step 4: record.
	result.State = RestoreSuccess
	s.setRestoreState(id, RestoreSuccess)
	s.record(ctx, LevelInfo, CategoryRestore, idRef(id), "restore of %q completed with %d warning(s)", account.Name, len(result.Warnings))
	return result
}

// FixPermissions re-applies the ownership recorded at the account's last
// backup to the live app-data directory.
func (s *SwapService) FixPermissions(ctx context.Context, id int64) (*FilePermissions, error) {
	if s.layout.DataDir == "" {
		return nil, fmt.Errorf("%w: app data directory is not set", ErrNotConfigured)
	}
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Ownership == nil {
		return nil, fmt.Errorf("no ownership recorded for %q; run a backup first", account.Name)
	}

	if err := s.inspector.Apply(ctx, s.layout.DataDir, account.Ownership); err != nil {
		s.record(ctx, LevelError, CategoryPermissions, idRef(id), "fixing permissions of %s failed: %v", s.layout.DataDir, err)
		return nil, err
	}

	s.record(ctx, LevelInfo, CategoryPermissions, idRef(id), "permissions of %s set to %s", s.layout.DataDir, account.Ownership)
	return account.Ownership, nil
}
