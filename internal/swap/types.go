package swap

import (
	"fmt"
	"time"
)

// FilePermissions is the ownership triple of a filesystem path.
// Mode is a normalized octal string: "755", "771", or "0" for an all-zero mode.
type FilePermissions struct {
	Owner string
	Group string
	Mode  string
}

func (p FilePermissions) String() string {
	return fmt.Sprintf("%s:%s %s", p.Owner, p.Group, p.Mode)
}

// Account is one game profile whose private data is backed up.
type Account struct {
	ID         int64
	Name       string
	BackupPath string
	DeviceID   string
	NetworkID  string

	// SusLevel and HasError are set by the operator; the engine never modifies them.
	SusLevel int
	HasError bool

	// Ownership is the triple captured from the live directory at the last
	// successful backup. Nil until the first backup.
	Ownership *FilePermissions

	LastBackupAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Level is the severity of an activity log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ActivityEntry is a persisted, user-visible record of an engine step.
type ActivityEntry struct {
	ID        string
	Time      time.Time
	Level     Level
	Category  string
	Message   string
	AccountID *int64
}

// Activity categories.
const (
	CategoryBackup      = "backup"
	CategoryRestore     = "restore"
	CategoryDelete      = "delete"
	CategoryPermissions = "permissions"
	CategorySync        = "sync"
	CategoryAccount     = "account"
)

// RestoreState is the state of a single restore invocation.
type RestoreState int

const (
	RestoreIdle RestoreState = iota
	RestoreRestoring
	RestoreSuccess
	RestoreFailure
)

func (s RestoreState) String() string {
	switch s {
	case RestoreIdle:
		return "idle"
	case RestoreRestoring:
		return "restoring"
	case RestoreSuccess:
		return "success"
	case RestoreFailure:
		return "failure"
	default:
		return fmt.Sprintf("RestoreState(%d)", int(s))
	}
}

// RestoreResult is the terminal outcome of a restore.
// Warnings lists best-effort steps that failed without failing the restore.
type RestoreResult struct {
	State    RestoreState
	Reason   error
	Warnings []string
}

// BackupResult describes a completed backup.
type BackupResult struct {
	Account   *Account
	Ownership *FilePermissions
	Uploaded  *SyncResult
	Warnings  []string
}

// SyncResult describes one completed remote transfer.
type SyncResult struct {
	Name       string
	LocalPath  string
	RemotePath string
	Bytes      int64
	Duration   time.Duration
}

// RemoteEntry is an archive present on a remote target.
type RemoteEntry struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}
