package swap

import (
	"context"
	"fmt"
)

// Layout describes where live app data and backup snapshots live.
type Layout struct {
	// DataDir is the app's private data directory, e.g. /data/data/<package>.
	DataDir string
	// Package is the app package name; used to stop the app before a restore.
	Package string
	// StorageRoot is the directory holding every account's backup directory.
	StorageRoot string
	// Prefix is prepended to the account name to form its backup directory name.
	Prefix string
	// AutoUpload mirrors each new snapshot to the remote after a backup.
	AutoUpload bool
}

// BackupPathFor returns <StorageRoot>/<Prefix><accountName>.
func (l Layout) BackupPathFor(accountName string) string {
	return joinPath(l.StorageRoot, l.Prefix+accountName)
}

// SwapService is the orchestration layer that sequences privileged commands,
// permission handling, account records and remote mirroring into the
// backup, restore and delete workflows needed by the CLI.
//
// It holds no per-operation state: every call recomputes permissions and
// re-issues its commands. Calls for the same account are not coordinated;
// the caller serializes user-triggered actions per account.
type SwapService struct {
	store     AccountStore
	activity  ActivityLog
	exec      Executor
	inspector *Inspector
	archiver  *Archiver
	packer    *Packer
	remote    Remote // nil when no remote is configured
	layout    Layout
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	onRestoreState func(accountID int64, state RestoreState)
}

// NewSwapService creates a SwapService with the provided dependencies.
// remote and packer may be nil when remote mirroring is not set up.
func NewSwapService(store AccountStore, activity ActivityLog, exec Executor, remote Remote, packer *Packer, layout Layout, logger Logger, clock Clock, idgen IDGenerator) *SwapService {
	inspector := NewInspector(exec, logger)
	return &SwapService{
		store:     store,
		activity:  activity,
		exec:      exec,
		inspector: inspector,
		archiver:  NewArchiver(exec, inspector, logger),
		packer:    packer,
		remote:    remote,
		layout:    layout,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// OnRestoreState registers a callback invoked on every restore state transition.
func (s *SwapService) OnRestoreState(fn func(accountID int64, state RestoreState)) {
	s.onRestoreState = fn
}

// Inspector exposes the permission inspector used by the service.
func (s *SwapService) Inspector() *Inspector {
	return s.inspector
}

// InspectPermissions resolves the ownership triple of an arbitrary path.
func (s *SwapService) InspectPermissions(ctx context.Context, path string) (*FilePermissions, error) {
	return s.inspector.GetFilePermissions(ctx, path)
}

// RecentActivity returns the most recent activity log entries.
func (s *SwapService) RecentActivity(ctx context.Context, limit int) ([]*ActivityEntry, error) {
	return s.activity.Recent(ctx, limit)
}

// record appends an entry to the activity log and mirrors it to the logger.
// A failing log sink never fails the operation being recorded.
func (s *SwapService) record(ctx context.Context, level Level, category string, accountID *int64, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case LevelError:
		s.logger.Error(msg, "category", category)
	case LevelWarning:
		s.logger.Warn(msg, "category", category)
	default:
		s.logger.Info(msg, "category", category)
	}

	entry := &ActivityEntry{
		ID:        s.idgen.New(),
		Time:      s.clock.Now(),
		Level:     level,
		Category:  category,
		Message:   msg,
		AccountID: accountID,
	}
	if err := s.activity.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("recording activity failed", "category", category, "error", err)
	}
}

func (s *SwapService) setRestoreState(accountID int64, state RestoreState) {
	if s.onRestoreState != nil {
		s.onRestoreState(accountID, state)
	}
}

func idRef(id int64) *int64 { return &id }
