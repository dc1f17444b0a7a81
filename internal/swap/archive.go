package swap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	archiveExt          = ".tar.gz"
	encryptedArchiveExt = ".tar.gz.age"
)

// Packer turns a backup snapshot into a single archive file suitable for
// remote mirroring, and unpacks downloaded archives back into a snapshot.
// tar runs through the Executor because snapshot files are owned by the app
// user; encryption runs in-process on the resulting archive.
type Packer struct {
	exec       Executor
	archiveDir string
	encryptor  Encryptor // nil disables encryption
	clock      Clock
	logger     Logger
}

// NewPacker creates a Packer writing archives to archiveDir.
func NewPacker(exec Executor, archiveDir string, encryptor Encryptor, clock Clock, logger Logger) *Packer {
	return &Packer{
		exec:       exec,
		archiveDir: archiveDir,
		encryptor:  encryptor,
		clock:      clock,
		logger:     logger,
	}
}

// ArchiveName returns the archive file name for an account at time t.
// Format: <accountName>_<YYYY-MM-DDTHHMMSSZ>.tar.gz
func ArchiveName(accountName string, t time.Time) string {
	return accountName + "_" + t.UTC().Format("2006-01-02T150405Z") + archiveExt
}

// Pack archives the snapshot directory for account and returns the path of
// the archive. When an encryptor is configured the plaintext archive is
// replaced by an age-encrypted one.
func (p *Packer) Pack(ctx context.Context, account *Account) (string, error) {
	if err := os.MkdirAll(p.archiveDir, 0700); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	archivePath := filepath.Join(p.archiveDir, ArchiveName(account.Name, p.clock.Now()))
	cmd := "tar -czf " + Quote(archivePath) + " -C " + Quote(account.BackupPath) + " ."
	if _, err := p.exec.Execute(ctx, cmd); err != nil {
		return "", fmt.Errorf("archiving %s: %w", account.BackupPath, err)
	}

	if p.encryptor == nil {
		p.logger.Info("archive created", "path", archivePath)
		return archivePath, nil
	}

	encPath := archivePath + ".age"
	if err := p.encryptFile(archivePath, encPath); err != nil {
		os.Remove(encPath)
		os.Remove(archivePath)
		return "", err
	}
	if err := os.Remove(archivePath); err != nil {
		p.logger.Warn("removing plaintext archive failed", "path", archivePath, "error", err)
	}

	p.logger.Info("encrypted archive created", "path", encPath)
	return encPath, nil
}

// Unpack replaces the snapshot at dst with the contents of archivePath.
// Encrypted archives require decryptCtx.
func (p *Packer) Unpack(ctx context.Context, archivePath, dst string, decryptCtx DecryptionContext) error {
	plain := archivePath
	if strings.HasSuffix(archivePath, ".age") {
		if decryptCtx == nil {
			return fmt.Errorf("archive %s is encrypted but no passphrase was provided", filepath.Base(archivePath))
		}
		plain = strings.TrimSuffix(archivePath, ".age")
		if err := p.decryptFile(archivePath, plain, decryptCtx); err != nil {
			os.Remove(plain)
			return err
		}
		defer os.Remove(plain)
	} else if !strings.HasSuffix(archivePath, archiveExt) {
		return fmt.Errorf("unsupported archive type: %s", filepath.Base(archivePath))
	}

	staging := dst + stagingSuffix
	extract := "rm -rf " + Quote(staging) +
		" && mkdir -p " + Quote(staging) +
		" && tar -xzf " + Quote(plain) + " -C " + Quote(staging)
	if _, err := p.exec.Execute(ctx, extract); err != nil {
		if _, cleanupErr := p.exec.Execute(context.WithoutCancel(ctx), "rm -rf "+Quote(staging)); cleanupErr != nil {
			p.logger.Warn("cleanup failed", "path", staging, "error", cleanupErr)
		}
		return fmt.Errorf("%w: extracting %s: %w", ErrCopyFailed, filepath.Base(archivePath), err)
	}
	if err := promote(ctx, p.exec, p.logger, staging, dst); err != nil {
		return fmt.Errorf("%w: replacing snapshot at %s: %w", ErrCopyFailed, dst, err)
	}

	p.logger.Info("archive unpacked", "archive", archivePath, "dst", dst)
	return nil
}

// IsArchiveName reports whether name looks like an archive this Packer produces.
func IsArchiveName(name string) bool {
	return strings.HasSuffix(name, archiveExt) || strings.HasSuffix(name, encryptedArchiveExt)
}

func (p *Packer) encryptFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating encrypted archive: %w", err)
	}
	if err := p.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing encrypted archive: %w", err)
	}
	return nil
}

func (p *Packer) decryptFile(src, dst string, decryptCtx DecryptionContext) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening encrypted archive: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating decrypted archive: %w", err)
	}
	if err := decryptCtx.Decrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("decrypting archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing decrypted archive: %w", err)
	}
	return nil
}
