// Package remote implements the swap.Remote mirrors that backup archives are
// uploaded to and downloaded from.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"saveswap/internal/swap"
)

// checkName rejects remote names that are not a single path element.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("invalid archive name %q", name)
	}
	return nil
}

// ctxReader aborts a transfer once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// writeLocal streams r into localDir/name through a temp file and an atomic
// rename, so a failed download never leaves a truncated archive behind.
func writeLocal(ctx context.Context, localDir, name string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(localDir, 0700); err != nil {
		return "", 0, fmt.Errorf("creating download directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(localDir, ".download-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, err := io.Copy(tmpFile, ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", 0, err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("closing temp file: %w", err)
	}

	dest := filepath.Join(localDir, name)
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("renaming download: %w", err)
	}
	return dest, written, nil
}

// sortNewestFirst orders entries by modification time, newest first, with
// the name as a tiebreaker.
func sortNewestFirst(entries []swap.RemoteEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModifiedAt.Equal(entries[j].ModifiedAt) {
			return entries[i].ModifiedAt.After(entries[j].ModifiedAt)
		}
		return entries[i].Name > entries[j].Name
	})
}
