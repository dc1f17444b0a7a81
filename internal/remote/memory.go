package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"saveswap/internal/swap"
)

type memoryObject struct {
	data       []byte
	modifiedAt time.Time
}

// MemoryRemote is an in-memory implementation of swap.Remote, used by tests
// and by `remote.type = "memory"` for dry runs. It is safe for concurrent use.
type MemoryRemote struct {
	name    string
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time

	// UploadErr, when set, is returned by every Upload.
	UploadErr error
}

var _ swap.Remote = (*MemoryRemote)(nil)

// NewMemoryRemote creates an empty in-memory remote with the given name.
func NewMemoryRemote(name string) *MemoryRemote {
	return &MemoryRemote{
		name:    name,
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func (m *MemoryRemote) Name() string     { return m.name }
func (m *MemoryRemote) Configured() bool { return true }

func (m *MemoryRemote) TestConnection(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("%d archive(s) held in memory", len(m.objects)), nil
}

func (m *MemoryRemote) Upload(ctx context.Context, localPath string) (*swap.SyncResult, error) {
	if m.UploadErr != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, m.UploadErr)
	}
	start := time.Now()
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", swap.ErrTransferFailed, localPath, err)
	}

	name := filepath.Base(localPath)
	m.mu.Lock()
	m.objects[name] = memoryObject{data: data, modifiedAt: m.now()}
	m.mu.Unlock()

	return &swap.SyncResult{
		Name:       name,
		LocalPath:  localPath,
		RemotePath: name,
		Bytes:      int64(len(data)),
		Duration:   time.Since(start),
	}, nil
}

func (m *MemoryRemote) Download(ctx context.Context, remoteName, localDir string) (*swap.SyncResult, error) {
	if err := checkName(remoteName); err != nil {
		return nil, err
	}
	start := time.Now()

	m.mu.RLock()
	obj, ok := m.objects[remoteName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: archive not found: %s", swap.ErrTransferFailed, remoteName)
	}

	dest, n, err := writeLocal(ctx, localDir, remoteName, bytes.NewReader(obj.data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, err)
	}
	return &swap.SyncResult{
		Name:       remoteName,
		LocalPath:  dest,
		RemotePath: remoteName,
		Bytes:      n,
		Duration:   time.Since(start),
	}, nil
}

func (m *MemoryRemote) List(ctx context.Context) ([]swap.RemoteEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]swap.RemoteEntry, 0, len(m.objects))
	for name, obj := range m.objects {
		entries = append(entries, swap.RemoteEntry{Name: name, Size: int64(len(obj.data)), ModifiedAt: obj.modifiedAt})
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Put stores data under name directly, bypassing Upload.
func (m *MemoryRemote) Put(name string, data []byte, modifiedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = memoryObject{data: append([]byte(nil), data...), modifiedAt: modifiedAt}
}

// Get returns the stored bytes for name.
func (m *MemoryRemote) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	return obj.data, ok
}
