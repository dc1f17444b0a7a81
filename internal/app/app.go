package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"saveswap/internal/config"
	"saveswap/internal/database"
	"saveswap/internal/encryption"
	"saveswap/internal/remote"
	"saveswap/internal/shell"
	"saveswap/internal/swap"
)

// Options tune how a SwapApp is constructed.
type Options struct {
	// Echo, when non-nil, receives a copy of every log line.
	Echo io.Writer
	// Parameters is recorded with the operation in the log file.
	Parameters string
}

// SwapApp is the application layer between the CLI and SwapService.
// It constructs all dependencies from config, exposes high-level operations
// that accept account names or IDs, and manages resource lifecycles on Close.
type SwapApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	encryptor swap.Encryptor
	remote    swap.Remote
	service   *swap.SwapService
	logger    *slogAdapter
	op        *Operation
	logFile   *os.File
}

// NewSwapApp creates a fully wired SwapApp from the given config.
// operation identifies the CLI command being run (e.g. "Backup", "Restore").
// The caller must call Close when done.
func NewSwapApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*SwapApp, error) {
	op := NewOperation(operation, opts.Parameters)

	l, logFile, err := newLogger(cfg.LogDir, op.ID, opts.Echo)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	a := &SwapApp{cfg: cfg, logger: logger, op: op, logFile: logFile}
	if err := a.wire(ctx); err != nil {
		a.closeResources()
		return nil, err
	}

	logger.Info("operation started", "operation", op.Name, "parameters", op.Parameters)
	return a, nil
}

func (a *SwapApp) wire(ctx context.Context) error {
	cfg := a.cfg

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	timeout, err := cfg.Executor.TimeoutOr(shell.DefaultTimeout)
	if err != nil {
		return err
	}
	exec, err := shell.NewRootExecutor(cfg.Executor.Mode, cfg.Executor.Launcher, timeout, a.logger)
	if err != nil {
		return fmt.Errorf("creating executor: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	a.remote = remote.NewRemoteFromConfig(ctx, cfg.Remote, a.logger)

	var packer *swap.Packer
	if cfg.Storage.ArchiveDir != "" {
		var archiveEnc swap.Encryptor
		if cfg.Encryption.Enabled {
			archiveEnc = enc
		}
		packer = swap.NewPacker(exec, cfg.Storage.ArchiveDir, archiveEnc, swap.RealClock{}, a.logger)
	}

	layout := swap.Layout{
		DataDir:     cfg.App.DataDir,
		Package:     cfg.App.Package,
		StorageRoot: cfg.Storage.Root,
		Prefix:      cfg.Storage.Prefix,
		AutoUpload:  cfg.Remote.AutoUpload,
	}
	a.service = swap.NewSwapService(db, db, exec, a.remote, packer, layout, a.logger, swap.RealClock{}, swap.UUIDGenerator{})
	return nil
}

// OperationID returns the ID tagging this invocation's log lines.
func (a *SwapApp) OperationID() string {
	return a.op.ID
}

// resolveAccount accepts a numeric ID or an account name. A numeric
// reference that matches no ID is retried as a name.
func (a *SwapApp) resolveAccount(ctx context.Context, ref string) (*swap.Account, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		account, err := a.service.GetAccount(ctx, id)
		if err == nil || !errors.Is(err, swap.ErrAccountNotFound) {
			return account, err
		}
	}
	return a.db.FindAccountByName(ctx, ref)
}

// AddAccount registers a new account.
func (a *SwapApp) AddAccount(ctx context.Context, name, deviceID, networkID string) (*swap.Account, error) {
	account, err := a.service.AddAccount(ctx, name, deviceID, networkID)
	return account, a.op.Observe(err)
}

// GetAccount returns the account named or numbered by ref.
func (a *SwapApp) GetAccount(ctx context.Context, ref string) (*swap.Account, error) {
	account, err := a.resolveAccount(ctx, ref)
	return account, a.op.Observe(err)
}

// ListAccounts returns every account.
func (a *SwapApp) ListAccounts(ctx context.Context) ([]*swap.Account, error) {
	accounts, err := a.service.ListAccounts(ctx)
	return accounts, a.op.Observe(err)
}

// SetAccountStatus updates the operator-controlled flags of an account.
func (a *SwapApp) SetAccountStatus(ctx context.Context, ref string, susLevel int, hasError bool) (*swap.Account, error) {
	account, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return nil, a.op.Observe(err)
	}
	account, err = a.service.SetAccountStatus(ctx, account.ID, susLevel, hasError)
	return account, a.op.Observe(err)
}

// DeleteAccount removes an account and its backup directory. It returns the
// deleted account.
func (a *SwapApp) DeleteAccount(ctx context.Context, ref string) (*swap.Account, error) {
	account, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return nil, a.op.Observe(err)
	}
	return account, a.op.Observe(a.service.DeleteAccount(ctx, account.ID))
}

// Backup snapshots the live app data into the account's backup directory.
func (a *SwapApp) Backup(ctx context.Context, ref string) (*swap.BackupResult, error) {
	account, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return nil, a.op.Observe(err)
	}
	result, err := a.service.Backup(ctx, account.ID)
	return result, a.op.Observe(err)
}

// Restore swaps the account's snapshot into the live app-data directory.
// onState, if non-nil, observes each state transition.
func (a *SwapApp) Restore(ctx context.Context, ref string, onState func(swap.RestoreState)) (*swap.RestoreResult, error) {
	account, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return nil, a.op.Observe(err)
	}
	if onState != nil {
		a.service.OnRestoreState(func(_ int64, s swap.RestoreState) { onState(s) })
	}
	result := a.service.Restore(ctx, account.ID)
	if result.State == swap.RestoreFailure {
		a.op.Observe(result.Reason)
	}
	return result, nil
}

// FixPermissions re-applies the account's recorded ownership to the live directory.
func (a *SwapApp) FixPermissions(ctx context.Context, ref string) (*swap.FilePermissions, error) {
	account, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return nil, a.op.Observe(err)
	}
	perms, err := a.service.FixPermissions(ctx, account.ID)
	return perms, a.op.Observe(err)
}

// InspectPermissions resolves the ownership triple of path. An empty path
// means the configured app-data directory.
func (a *SwapApp) InspectPermissions(ctx context.Context, path string) (*swap.FilePermissions, error) {
	if path == "" {
		path = a.cfg.App.DataDir
	}
	if path == "" {
		return nil, a.op.Observe(fmt.Errorf("%w: no path given and app.data_dir is not set", swap.ErrNotConfigured))
	}
	perms, err := a.service.InspectPermissions(ctx, path)
	return perms, a.op.Observe(err)
}

// TestRemote checks the configured remote target.
func (a *SwapApp) TestRemote(ctx context.Context) (string, error) {
	msg, err := a.service.TestConnection(ctx)
	return msg, a.op.Observe(err)
}

// UploadSnapshot archives and uploads the account's current snapshot.
func (a *SwapApp) UploadSnapshot(ctx context.Context, ref string) (*swap.SyncResult, error) {
	account, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return nil, a.op.Observe(err)
	}
	result, err := a.service.UploadSnapshot(ctx, account.ID)
	return result, a.op.Observe(err)
}

// DownloadArchive fetches a remote archive. An empty localDir means the
// configured archive directory.
func (a *SwapApp) DownloadArchive(ctx context.Context, remoteName, localDir string) (*swap.SyncResult, error) {
	if localDir == "" {
		localDir = a.cfg.Storage.ArchiveDir
	}
	result, err := a.service.DownloadArchive(ctx, remoteName, localDir)
	return result, a.op.Observe(err)
}

// ImportArchive unpacks a local archive into the account's snapshot.
// passphrase is called only when the archive is encrypted.
func (a *SwapApp) ImportArchive(ctx context.Context, ref, archivePath string, passphrase func() (string, error)) error {
	account, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return a.op.Observe(err)
	}

	var decryptCtx swap.DecryptionContext
	if strings.HasSuffix(archivePath, ".age") {
		if passphrase == nil {
			return a.op.Observe(fmt.Errorf("archive %s is encrypted; a passphrase is required", archivePath))
		}
		pass, err := passphrase()
		if err != nil {
			return a.op.Observe(fmt.Errorf("reading passphrase: %w", err))
		}
		decryptCtx, err = a.encryptor.Unlock(pass)
		if err != nil {
			return a.op.Observe(fmt.Errorf("unlocking private key: %w", err))
		}
	}

	return a.op.Observe(a.service.ImportArchive(ctx, account.ID, archivePath, decryptCtx))
}

// ListRemote returns the archives on the remote target.
func (a *SwapApp) ListRemote(ctx context.Context) ([]swap.RemoteEntry, error) {
	entries, err := a.service.ListRemote(ctx)
	return entries, a.op.Observe(err)
}

// RecentActivity returns the most recent activity log entries.
func (a *SwapApp) RecentActivity(ctx context.Context, limit int) ([]*swap.ActivityEntry, error) {
	entries, err := a.service.RecentActivity(ctx, limit)
	return entries, a.op.Observe(err)
}

// InitKeys generates the archive encryption key pair.
func (a *SwapApp) InitKeys(passphrase string) error {
	return a.op.Observe(a.encryptor.Setup(passphrase))
}

// KeysConfigured reports whether the encryption key pair exists.
func (a *SwapApp) KeysConfigured() bool {
	return a.encryptor.IsConfigured()
}

// BackupDatabase writes a consistent copy of the account database to destPath.
func (a *SwapApp) BackupDatabase(destPath string) error {
	return a.op.Observe(a.db.BackupTo(destPath))
}

// Close records the operation outcome and closes all resources.
func (a *SwapApp) Close() error {
	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"duration", time.Since(a.op.StartedAt).Truncate(time.Millisecond))
	return a.closeResources()
}

func (a *SwapApp) closeResources() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
