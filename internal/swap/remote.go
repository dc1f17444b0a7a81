package swap

import "context"

// Remote mirrors backup archives to and from an off-device target.
//
// Remote calls are additive to the local workflow: they run only on explicit
// user action or as an auto-upload after a backup, and their failures never
// fail a local backup or restore. Connection and authentication failures
// match ErrConnectionFailed; failures after a session is established match
// ErrTransferFailed. A target lacking required settings returns ErrNotConfigured.
type Remote interface {
	// Name identifies the target in logs ("ssh", "s3", ...).
	Name() string

	// Configured reports whether the target has enough settings to connect.
	Configured() bool

	// TestConnection connects, verifies the remote directory, and returns a
	// human-readable summary.
	TestConnection(ctx context.Context) (string, error)

	// Upload copies the local archive to the remote directory under its base name.
	Upload(ctx context.Context, localPath string) (*SyncResult, error)

	// Download copies the named remote archive into localDir.
	Download(ctx context.Context, remoteName string, localDir string) (*SyncResult, error)

	// List returns the archives present on the target, newest first.
	List(ctx context.Context) ([]RemoteEntry, error)
}
