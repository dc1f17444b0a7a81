package remote

import (
	"context"
	"errors"
	"testing"

	"saveswap/internal/config"
	"saveswap/internal/swap"
)

func TestNewRemoteFromConfig(t *testing.T) {
	ctx := context.Background()
	logger := swap.NewNopLogger()

	t.Run("unset type means no remote", func(t *testing.T) {
		if got := NewRemoteFromConfig(ctx, config.RemoteConfig{}, logger); got != nil {
			t.Errorf("got %T, want nil", got)
		}
	})

	t.Run("memory", func(t *testing.T) {
		got := NewRemoteFromConfig(ctx, config.RemoteConfig{Type: "memory"}, logger)
		if _, ok := got.(*MemoryRemote); !ok {
			t.Errorf("got %T, want *MemoryRemote", got)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		cfg := config.RemoteConfig{Type: "filesystem", Filesystem: config.FilesystemRemoteConfig{Root: t.TempDir()}}
		got := NewRemoteFromConfig(ctx, cfg, logger)
		if !got.Configured() {
			t.Error("Configured() = false")
		}
	})

	t.Run("ssh with unreadable key is configured", func(t *testing.T) {
		cfg := config.RemoteConfig{Type: "ssh", SSH: config.SSHConfig{
			Enabled:   true,
			Host:      "nas",
			User:      "u",
			KeyPath:   "/nonexistent/id_ed25519",
			RemoteDir: "/saves",
		}}
		got := NewRemoteFromConfig(ctx, cfg, logger)
		if _, ok := got.(*SSHRemote); !ok {
			t.Fatalf("got %T, want *SSHRemote", got)
		}
		if !got.Configured() {
			t.Error("Configured() = false")
		}
	})

	t.Run("incomplete settings", func(t *testing.T) {
		for _, cfg := range []config.RemoteConfig{
			{Type: "filesystem"},
			{Type: "ssh"},
			{Type: "ssh", SSH: config.SSHConfig{Enabled: true, User: "u", Password: "p", RemoteDir: "/saves"}},
			{Type: "s3"},
			{Type: "ftp"},
		} {
			got := NewRemoteFromConfig(ctx, cfg, logger)
			if got == nil {
				t.Fatalf("type %q: got nil remote", cfg.Type)
			}
			if got.Configured() {
				t.Errorf("type %q: Configured() = true", cfg.Type)
			}
			if got.Name() != cfg.Type {
				t.Errorf("type %q: Name() = %q", cfg.Type, got.Name())
			}
			if _, err := got.List(ctx); !errors.Is(err, swap.ErrNotConfigured) {
				t.Errorf("type %q: List() error = %v, want ErrNotConfigured", cfg.Type, err)
			}
			if _, err := got.Upload(ctx, "/tmp/a.tar.gz"); !errors.Is(err, swap.ErrNotConfigured) {
				t.Errorf("type %q: Upload() error = %v, want ErrNotConfigured", cfg.Type, err)
			}
		}
	})
}
