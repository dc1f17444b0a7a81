package remote

import (
	"context"
	"fmt"

	"saveswap/internal/config"
	"saveswap/internal/swap"
)

// NewRemoteFromConfig creates the remote mirror selected by cfg.Type. An
// empty type means no remote is configured and returns nil.
//
// Settings that cannot produce a working remote never fail the caller: the
// problem is logged and an unconfigured remote is returned, so local backup
// and restore keep working while remote commands report ErrNotConfigured.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig, logger swap.Logger) swap.Remote {
	if cfg.Type == "" {
		return nil
	}
	r, err := newRemote(ctx, cfg, logger)
	if err != nil {
		logger.Warn("remote sync disabled", "type", cfg.Type, "error", err)
		return &unconfiguredRemote{kind: cfg.Type, reason: err}
	}
	return r
}

func newRemote(ctx context.Context, cfg config.RemoteConfig, logger swap.Logger) (swap.Remote, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryRemote("memory"), nil
	case "filesystem":
		return NewFileSystemRemote(cfg.Filesystem.Root)
	case "ssh":
		return NewSSHRemote(cfg.SSH, logger)
	case "s3":
		return NewS3Remote(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("%w: unknown remote type %q", swap.ErrNotConfigured, cfg.Type)
	}
}

// unconfiguredRemote stands in for a remote whose settings are incomplete.
type unconfiguredRemote struct {
	kind   string
	reason error
}

var _ swap.Remote = (*unconfiguredRemote)(nil)

func (u *unconfiguredRemote) Name() string     { return u.kind }
func (u *unconfiguredRemote) Configured() bool { return false }

func (u *unconfiguredRemote) err() error {
	return fmt.Errorf("%w: %s remote: %v", swap.ErrNotConfigured, u.kind, u.reason)
}

func (u *unconfiguredRemote) TestConnection(ctx context.Context) (string, error) {
	return "", u.err()
}

func (u *unconfiguredRemote) Upload(ctx context.Context, localPath string) (*swap.SyncResult, error) {
	return nil, u.err()
}

func (u *unconfiguredRemote) Download(ctx context.Context, remoteName, localDir string) (*swap.SyncResult, error) {
	return nil, u.err()
}

func (u *unconfiguredRemote) List(ctx context.Context) ([]swap.RemoteEntry, error) {
	return nil, u.err()
}
