package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"saveswap/internal/config"
	"saveswap/internal/swap"
)

// testConfig returns a config that runs every command through sh against
// directories under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig(base)
	cfg.Executor = config.ExecutorConfig{Mode: "sh", Timeout: "30s"}
	cfg.App = config.AppConfig{DataDir: filepath.Join(base, "live")}
	cfg.Storage.Prefix = "acct_"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *SwapApp {
	t.Helper()
	a, err := NewSwapApp(context.Background(), cfg, "Test", Options{})
	if err != nil {
		t.Fatalf("NewSwapApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestSwapApp_BackupRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	prefs := filepath.Join(cfg.App.DataDir, "shared_prefs", "game.xml")
	writeFile(t, prefs, "<save level=\"1\"/>")

	if _, err := a.AddAccount(ctx, "main", "dev-1", ""); err != nil {
		t.Fatalf("AddAccount() error = %v", err)
	}
	if _, err := a.Backup(ctx, "main"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	snapshot := filepath.Join(cfg.Storage.Root, "acct_main")
	if got := readFile(t, filepath.Join(snapshot, "shared_prefs", "game.xml")); got != "<save level=\"1\"/>" {
		t.Errorf("snapshot content = %q", got)
	}
	if _, err := os.Stat(snapshot + ".saveswap-tmp"); !os.IsNotExist(err) {
		t.Error("staging directory left behind after backup")
	}

	writeFile(t, prefs, "<save level=\"9\"/>")
	writeFile(t, filepath.Join(cfg.App.DataDir, "cache", "junk"), "x")

	var states []swap.RestoreState
	res, err := a.Restore(ctx, "main", func(s swap.RestoreState) { states = append(states, s) })
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if res.State != swap.RestoreSuccess {
		t.Fatalf("Restore() state = %v, reason %v", res.State, res.Reason)
	}
	if want := []swap.RestoreState{swap.RestoreIdle, swap.RestoreRestoring, swap.RestoreSuccess}; !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}

	if got := readFile(t, prefs); got != "<save level=\"1\"/>" {
		t.Errorf("live content after restore = %q", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.App.DataDir, "cache", "junk")); !os.IsNotExist(err) {
		t.Error("files absent from the snapshot survived the restore")
	}
	if _, err := os.Stat(cfg.App.DataDir + ".saveswap-old"); !os.IsNotExist(err) {
		t.Error("previous live directory left behind")
	}
	if a.op.Failed() {
		t.Error("operation marked failed")
	}
}

func TestSwapApp_RestoreWithoutBackup(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	prefs := filepath.Join(cfg.App.DataDir, "game.xml")
	writeFile(t, prefs, "keep")
	a.AddAccount(ctx, "fresh", "", "")

	res, err := a.Restore(ctx, "fresh", nil)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if res.State != swap.RestoreFailure {
		t.Fatalf("Restore() state = %v, want failure", res.State)
	}
	if got := readFile(t, prefs); got != "keep" {
		t.Errorf("live content = %q, want untouched", got)
	}
	if !a.op.Failed() {
		t.Error("operation not marked failed")
	}
}

func TestSwapApp_DeleteAccount(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	writeFile(t, filepath.Join(cfg.App.DataDir, "game.xml"), "data")
	a.AddAccount(ctx, "main", "", "")
	if _, err := a.Backup(ctx, "main"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	deleted, err := a.DeleteAccount(ctx, "main")
	if err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}
	if _, err := os.Stat(deleted.BackupPath); !os.IsNotExist(err) {
		t.Error("backup directory still present")
	}
	if _, err := a.GetAccount(ctx, "main"); !errors.Is(err, swap.ErrAccountNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrAccountNotFound", err)
	}
}

func TestSwapApp_ResolveAccount(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t))

	first, _ := a.AddAccount(ctx, "main", "", "")
	numeric, _ := a.AddAccount(ctx, "42", "", "")

	tests := []struct {
		ref    string
		wantID int64
	}{
		{"main", first.ID},
		{" main ", first.ID},
		{"1", first.ID},
		{"42", numeric.ID},
	}
	for _, tt := range tests {
		got, err := a.GetAccount(ctx, tt.ref)
		if err != nil {
			t.Errorf("GetAccount(%q) error = %v", tt.ref, err)
			continue
		}
		if got.ID != tt.wantID {
			t.Errorf("GetAccount(%q).ID = %d, want %d", tt.ref, got.ID, tt.wantID)
		}
	}

	if _, err := a.GetAccount(ctx, "nobody"); !errors.Is(err, swap.ErrAccountNotFound) {
		t.Errorf("GetAccount(nobody) error = %v", err)
	}
}

func TestSwapApp_RemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Remote = config.RemoteConfig{
		Type:       "filesystem",
		Filesystem: config.FilesystemRemoteConfig{Root: filepath.Join(cfg.BaseDir, "mirror")},
	}
	cfg.Encryption.Enabled = true
	cfg.Encryption.Type = "plain"
	a := newTestApp(t, cfg)

	writeFile(t, filepath.Join(cfg.App.DataDir, "files", "slot1.sav"), "slot-one")
	a.AddAccount(ctx, "main", "", "")
	a.AddAccount(ctx, "alt", "", "")
	if _, err := a.Backup(ctx, "main"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	if _, err := a.TestRemote(ctx); err != nil {
		t.Fatalf("TestRemote() error = %v", err)
	}
	up, err := a.UploadSnapshot(ctx, "main")
	if err != nil {
		t.Fatalf("UploadSnapshot() error = %v", err)
	}
	if !strings.HasPrefix(up.Name, "main_") || !strings.HasSuffix(up.Name, ".tar.gz.age") {
		t.Errorf("uploaded name = %q", up.Name)
	}

	entries, err := a.ListRemote(ctx)
	if err != nil {
		t.Fatalf("ListRemote() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != up.Name {
		t.Fatalf("ListRemote() = %+v", entries)
	}

	down, err := a.DownloadArchive(ctx, up.Name, "")
	if err != nil {
		t.Fatalf("DownloadArchive() error = %v", err)
	}
	if filepath.Dir(down.LocalPath) != cfg.Storage.ArchiveDir {
		t.Errorf("downloaded to %q, want archive dir", down.LocalPath)
	}

	if err := a.ImportArchive(ctx, "alt", down.LocalPath, nil); err == nil {
		t.Fatal("ImportArchive() expected error without passphrase")
	}

	asked := 0
	err = a.ImportArchive(ctx, "alt", down.LocalPath, func() (string, error) {
		asked++
		return "", nil
	})
	if err != nil {
		t.Fatalf("ImportArchive() error = %v", err)
	}
	if asked != 1 {
		t.Errorf("passphrase requested %d times", asked)
	}
	imported := filepath.Join(cfg.Storage.Root, "acct_alt", "files", "slot1.sav")
	if got := readFile(t, imported); got != "slot-one" {
		t.Errorf("imported content = %q", got)
	}
}

func TestSwapApp_RemoteNotConfigured(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	if _, err := a.ListRemote(context.Background()); !errors.Is(err, swap.ErrNotConfigured) {
		t.Errorf("ListRemote() error = %v, want ErrNotConfigured", err)
	}
}

func TestSwapApp_IncompleteRemoteKeepsLocalWorking(t *testing.T) {
	tests := []struct {
		name       string
		remote     config.RemoteConfig
		wantUpload error
	}{
		{
			name:   "ssh without host",
			remote: config.RemoteConfig{Type: "ssh", AutoUpload: true, SSH: config.SSHConfig{Enabled: true, User: "u", Password: "p", RemoteDir: "/saves"}},
		},
		{
			name:   "ssh disabled",
			remote: config.RemoteConfig{Type: "ssh", AutoUpload: true, SSH: config.SSHConfig{Host: "nas", User: "u", Password: "p", RemoteDir: "/saves"}},
		},
		{
			name:   "unknown type",
			remote: config.RemoteConfig{Type: "ftp", AutoUpload: true},
		},
		{
			name: "ssh with missing key file",
			remote: config.RemoteConfig{Type: "ssh", AutoUpload: true, SSH: config.SSHConfig{
				Enabled:   true,
				Host:      "127.0.0.1",
				Port:      1,
				User:      "u",
				KeyPath:   "/nonexistent/key",
				RemoteDir: "/saves",
			}},
			wantUpload: swap.ErrConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t)
			cfg.Remote = tt.remote
			a := newTestApp(t, cfg)

			writeFile(t, filepath.Join(cfg.App.DataDir, "game.xml"), "data")
			if _, err := a.AddAccount(ctx, "main", "", ""); err != nil {
				t.Fatalf("AddAccount() error = %v", err)
			}
			res, err := a.Backup(ctx, "main")
			if err != nil {
				t.Fatalf("Backup() error = %v", err)
			}
			if got := readFile(t, filepath.Join(cfg.Storage.Root, "acct_main", "game.xml")); got != "data" {
				t.Errorf("snapshot content = %q", got)
			}
			if res.Uploaded != nil {
				t.Errorf("Uploaded = %+v, want nil", res.Uploaded)
			}

			_, err = a.TestRemote(ctx)
			if tt.wantUpload == nil {
				for _, w := range res.Warnings {
					if strings.Contains(w, "auto-upload") {
						t.Errorf("unexpected warning %q", w)
					}
				}
				if !errors.Is(err, swap.ErrNotConfigured) {
					t.Errorf("TestRemote() error = %v, want ErrNotConfigured", err)
				}
				return
			}
			if !strings.Contains(strings.Join(res.Warnings, "\n"), "auto-upload failed") {
				t.Errorf("Warnings = %v, want an auto-upload warning", res.Warnings)
			}
			if !errors.Is(err, tt.wantUpload) {
				t.Errorf("TestRemote() error = %v, want %v", err, tt.wantUpload)
			}
		})
	}
}

func TestSwapApp_Keys(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	if a.KeysConfigured() {
		t.Fatal("KeysConfigured() = true before init")
	}
	if err := a.InitKeys("correct horse"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	if !a.KeysConfigured() {
		t.Error("KeysConfigured() = false after init")
	}
	if err := a.InitKeys("again"); err == nil {
		t.Error("InitKeys() expected error when keys exist")
	}
}

func TestSwapApp_ActivityAndLog(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := NewSwapApp(ctx, cfg, "AddAccount", Options{Parameters: "main"})
	if err != nil {
		t.Fatalf("NewSwapApp() error = %v", err)
	}
	a.AddAccount(ctx, "main", "", "")

	entries, err := a.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivity() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Category != swap.CategoryAccount {
		t.Errorf("RecentActivity() = %+v", entries)
	}

	dbCopy := filepath.Join(t.TempDir(), "copy.db")
	if err := a.BackupDatabase(dbCopy); err != nil {
		t.Fatalf("BackupDatabase() error = %v", err)
	}
	if _, err := os.Stat(dbCopy); err != nil {
		t.Errorf("database copy missing: %v", err)
	}

	opID := a.OperationID()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	log := readFile(t, filepath.Join(cfg.LogDir, LogFileName))
	if !strings.Contains(log, "\t"+opID+"\toperation started\toperation=AddAccount\tparameters=main") {
		t.Errorf("log missing start line:\n%s", log)
	}
	if !strings.Contains(log, "\t"+opID+"\toperation finished\toperation=AddAccount\tstatus=success") {
		t.Errorf("log missing finish line:\n%s", log)
	}

	// A second invocation sees the persisted account.
	b := newTestApp(t, cfg)
	if _, err := b.GetAccount(ctx, "main"); err != nil {
		t.Errorf("account not persisted: %v", err)
	}
}

func TestNewSwapApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown executor mode", func(c *config.Config) { c.Executor.Mode = "doas" }},
		{"bad timeout", func(c *config.Config) { c.Executor.Timeout = "soon" }},
		{"unknown database", func(c *config.Config) { c.Database.Type = "postgres" }},
		{"unknown encryption", func(c *config.Config) { c.Encryption.Type = "rot13" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := NewSwapApp(context.Background(), cfg, "Test", Options{}); err == nil {
				t.Fatal("NewSwapApp() expected error")
			}
		})
	}
}
