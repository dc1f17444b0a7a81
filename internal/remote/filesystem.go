package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"saveswap/internal/swap"
)

// FileSystemRemote mirrors archives into a local directory, typically a
// mounted network share or removable storage:
//
//	<root>/
//	  <account>_<timestamp>.tar.gz[.age]
type FileSystemRemote struct {
	root string
}

var _ swap.Remote = (*FileSystemRemote)(nil)

// NewFileSystemRemote creates a filesystem remote rooted at root. The
// directory is created on first upload.
func NewFileSystemRemote(root string) (*FileSystemRemote, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: filesystem remote requires root to be set", swap.ErrNotConfigured)
	}
	return &FileSystemRemote{root: root}, nil
}

func (r *FileSystemRemote) Name() string     { return "file://" + r.root }
func (r *FileSystemRemote) Configured() bool { return r.root != "" }

// TestConnection verifies that the root exists and accepts new files.
func (r *FileSystemRemote) TestConnection(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.root, 0755); err != nil {
		return "", fmt.Errorf("%w: %w", swap.ErrConnectionFailed, err)
	}
	probe, err := os.CreateTemp(r.root, ".probe-*")
	if err != nil {
		return "", fmt.Errorf("%w: root not writable: %w", swap.ErrConnectionFailed, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return fmt.Sprintf("%s is writable", r.root), nil
}

// Upload copies the archive into the root using a temp file and rename.
func (r *FileSystemRemote) Upload(ctx context.Context, localPath string) (*swap.SyncResult, error) {
	start := time.Now()
	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", swap.ErrTransferFailed, localPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(r.root, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrConnectionFailed, err)
	}

	name := filepath.Base(localPath)
	dest, n, err := writeLocal(ctx, r.root, name, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, err)
	}
	return &swap.SyncResult{
		Name:       name,
		LocalPath:  localPath,
		RemotePath: dest,
		Bytes:      n,
		Duration:   time.Since(start),
	}, nil
}

func (r *FileSystemRemote) Download(ctx context.Context, remoteName, localDir string) (*swap.SyncResult, error) {
	if err := checkName(remoteName); err != nil {
		return nil, err
	}
	start := time.Now()
	remotePath := filepath.Join(r.root, remoteName)

	src, err := os.Open(remotePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: archive not found: %s", swap.ErrTransferFailed, remoteName)
		}
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, err)
	}
	defer src.Close()

	dest, n, err := writeLocal(ctx, localDir, remoteName, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, err)
	}
	return &swap.SyncResult{
		Name:       remoteName,
		LocalPath:  dest,
		RemotePath: remotePath,
		Bytes:      n,
		Duration:   time.Since(start),
	}, nil
}

// List returns the archives under root, newest first. A missing root holds
// no archives.
func (r *FileSystemRemote) List(ctx context.Context) ([]swap.RemoteEntry, error) {
	dirEntries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", swap.ErrConnectionFailed, err)
	}

	var entries []swap.RemoteEntry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || !swap.IsArchiveName(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, swap.RemoteEntry{Name: de.Name(), Size: info.Size(), ModifiedAt: info.ModTime()})
	}
	sortNewestFirst(entries)
	return entries, nil
}
