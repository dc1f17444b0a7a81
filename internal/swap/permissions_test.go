package swap_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"saveswap/internal/swap"
	"saveswap/internal/testutil"
)

const livePath = "/data/data/com.example.game"

func statFormatCmd(path string) string { return "stat -c '%U:%G %a' " + swap.Quote(path) }
func statVerboseCmd(path string) string { return "stat " + swap.Quote(path) }
func lsCmd(path string) string          { return "ls -ld " + swap.Quote(path) }

func newInspector(exec swap.Executor) *swap.Inspector {
	return swap.NewInspector(exec, swap.NewNopLogger())
}

func TestInspector_GetFilePermissions_ModeNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"0755", "755"},
		{"755", "755"},
		{"0000", "0"},
		{"0", "0"},
		{"0771", "771"},
		{"2771", "771"},
		{"600", "600"},
		{"0044", "44"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			exec := testutil.NewFakeExecutor().On(statFormatCmd(livePath), "u0_a123:u0_a123 "+tt.raw+"\n")

			got, err := newInspector(exec).GetFilePermissions(context.Background(), livePath)
			if err != nil {
				t.Fatalf("GetFilePermissions() error = %v", err)
			}
			want := &swap.FilePermissions{Owner: "u0_a123", Group: "u0_a123", Mode: tt.want}
			if *got != *want {
				t.Errorf("GetFilePermissions() = %v, want %v", got, want)
			}
			if n := len(exec.Commands()); n != 1 {
				t.Errorf("issued %d commands, want 1", n)
			}
		})
	}
}

func TestInspector_GetFilePermissions_Fallback(t *testing.T) {
	verbose := `  File: /data/data/com.example.game
  Size: 4096	Blocks: 16	IO Block: 4096	directory
Device: fd05h/64773d	Inode: 1234	Links: 5
Access: (0771/drwxrwx--x)  Uid: (10123/ u0_a123)   Gid: (10123/ u0_a123)
Access: 2024-01-15 10:30:00.000000000 +0000
`
	listing := "drwxrwx--x 5 u0_a123 u0_a123_cache 4096 2024-01-15 10:30 /data/data/com.example.game\n"

	tests := []struct {
		name      string
		setup     func(e *testutil.FakeExecutor)
		want      swap.FilePermissions
		wantCalls []string
	}{
		{
			name: "format stat missing, verbose stat parses",
			setup: func(e *testutil.FakeExecutor) {
				e.Fail(statFormatCmd(livePath), "stat: unknown option -- c")
				e.On(statVerboseCmd(livePath), verbose)
			},
			want:      swap.FilePermissions{Owner: "u0_a123", Group: "u0_a123", Mode: "771"},
			wantCalls: []string{statFormatCmd(livePath), statVerboseCmd(livePath)},
		},
		{
			name: "format stat prints garbage, verbose stat parses",
			setup: func(e *testutil.FakeExecutor) {
				e.On(statFormatCmd(livePath), "%U:%G %a")
				e.On(statVerboseCmd(livePath), verbose)
			},
			want:      swap.FilePermissions{Owner: "u0_a123", Group: "u0_a123", Mode: "771"},
			wantCalls: []string{statFormatCmd(livePath), statVerboseCmd(livePath)},
		},
		{
			name: "both stats fail, ls parses",
			setup: func(e *testutil.FakeExecutor) {
				e.Fail(statFormatCmd(livePath), "not found")
				e.Fail(statVerboseCmd(livePath), "not found")
				e.On(lsCmd(livePath), listing)
			},
			want:      swap.FilePermissions{Owner: "u0_a123", Group: "u0_a123_cache", Mode: "771"},
			wantCalls: []string{statFormatCmd(livePath), statVerboseCmd(livePath), lsCmd(livePath)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := testutil.NewFakeExecutor()
			tt.setup(exec)

			got, err := newInspector(exec).GetFilePermissions(context.Background(), livePath)
			if err != nil {
				t.Fatalf("GetFilePermissions() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("GetFilePermissions() = %v, want %v", got, tt.want)
			}
			if calls := exec.Commands(); !reflect.DeepEqual(calls, tt.wantCalls) {
				t.Errorf("commands = %q, want %q", calls, tt.wantCalls)
			}
		})
	}
}

func TestInspector_GetFilePermissions_AllFail(t *testing.T) {
	t.Run("every command fails", func(t *testing.T) {
		exec := testutil.NewFakeExecutor().
			Fail(statFormatCmd(livePath), "denied").
			Fail(statVerboseCmd(livePath), "denied").
			Fail(lsCmd(livePath), "denied")

		_, err := newInspector(exec).GetFilePermissions(context.Background(), livePath)
		if err == nil {
			t.Fatal("GetFilePermissions() expected error")
		}

		var lookupErr *swap.PermissionLookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("error type = %T, want *PermissionLookupError", err)
		}
		if len(lookupErr.Attempts) != 3 {
			t.Errorf("len(Attempts) = %d, want 3", len(lookupErr.Attempts))
		}
		if !errors.Is(err, swap.ErrCommandFailed) {
			t.Error("errors.Is(err, ErrCommandFailed) = false")
		}
		if errors.Is(err, swap.ErrParseFailed) {
			t.Error("errors.Is(err, ErrParseFailed) = true, want false")
		}
	})

	t.Run("every output is unrecognized", func(t *testing.T) {
		exec := testutil.NewFakeExecutor().
			On(statFormatCmd(livePath), "").
			On(statVerboseCmd(livePath), "nothing useful").
			On(lsCmd(livePath), "total 0")

		_, err := newInspector(exec).GetFilePermissions(context.Background(), livePath)
		if !errors.Is(err, swap.ErrParseFailed) {
			t.Fatalf("error = %v, want ErrParseFailed", err)
		}
		if errors.Is(err, swap.ErrCommandFailed) {
			t.Error("errors.Is(err, ErrCommandFailed) = true, want false")
		}
	})

	t.Run("mixed failures are parse failures", func(t *testing.T) {
		exec := testutil.NewFakeExecutor().
			Fail(statFormatCmd(livePath), "denied").
			On(statVerboseCmd(livePath), "garbage").
			Fail(lsCmd(livePath), "denied")

		_, err := newInspector(exec).GetFilePermissions(context.Background(), livePath)
		if !errors.Is(err, swap.ErrParseFailed) {
			t.Errorf("error = %v, want ErrParseFailed", err)
		}
		if errors.Is(err, swap.ErrCommandFailed) {
			t.Errorf("error = %v, want no ErrCommandFailed match when a command succeeded", err)
		}
		var lookupErr *swap.PermissionLookupError
		if !errors.As(err, &lookupErr) || len(lookupErr.Attempts) != 3 {
			t.Errorf("error = %v, want all three attempts", err)
		}
	})
}

func TestInspector_GetFilePermissions_Cancelled(t *testing.T) {
	exec := testutil.NewFakeExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newInspector(exec).GetFilePermissions(ctx, livePath)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if n := len(exec.Commands()); n != 0 {
		t.Errorf("issued %d commands after cancellation", n)
	}
}

func TestInspector_SetFileOwnership_Quoting(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		owner string
		group string
	}{
		{"plain path", "/data/data/com.example.game", "u0_a123", "u0_a123"},
		{"spaces", "/sdcard/My Saves/main", "u0_a123", "sdcard_rw"},
		{"single quote", "/sdcard/o'brien's saves", "u0_a1", "u0_a1"},
		{"metacharacters", "/sdcard/$(reboot);`id`&&|*", "root", "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := testutil.NewFakeExecutor()
			if err := newInspector(exec).SetFileOwnership(context.Background(), tt.path, tt.owner, tt.group); err != nil {
				t.Fatalf("SetFileOwnership() error = %v", err)
			}

			cmds := exec.Commands()
			if len(cmds) != 1 {
				t.Fatalf("issued %d commands, want 1", len(cmds))
			}
			words, err := testutil.Words(cmds[0])
			if err != nil {
				t.Fatalf("Words(%q) error = %v", cmds[0], err)
			}
			want := []string{"chown", "-R", tt.owner + ":" + tt.group, tt.path}
			if !reflect.DeepEqual(words, want) {
				t.Errorf("chown argv = %q, want %q", words, want)
			}
		})
	}
}

func TestInspector_SetFilePermissions(t *testing.T) {
	t.Run("quotes path", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		path := "/sdcard/My Saves/main"
		if err := newInspector(exec).SetFilePermissions(context.Background(), path, "771"); err != nil {
			t.Fatalf("SetFilePermissions() error = %v", err)
		}
		words, err := testutil.Words(exec.Commands()[0])
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"chmod", "-R", "771", path}; !reflect.DeepEqual(words, want) {
			t.Errorf("chmod argv = %q, want %q", words, want)
		}
	})

	t.Run("rejects non-octal mode without running anything", func(t *testing.T) {
		for _, mode := range []string{"", "rwx", "778", "7; rm -rf /"} {
			exec := testutil.NewFakeExecutor()
			if err := newInspector(exec).SetFilePermissions(context.Background(), livePath, mode); err == nil {
				t.Errorf("SetFilePermissions(%q) expected error", mode)
			}
			if n := len(exec.Commands()); n != 0 {
				t.Errorf("SetFilePermissions(%q) issued %d commands", mode, n)
			}
		}
	})
}

func TestInspector_Apply(t *testing.T) {
	perms := &swap.FilePermissions{Owner: "u0_a123", Group: "u0_a123", Mode: "771"}

	t.Run("chown failure does not skip chmod", func(t *testing.T) {
		exec := testutil.NewFakeExecutor().Fail("chown", "Operation not permitted")

		err := newInspector(exec).Apply(context.Background(), livePath, perms)
		if !errors.Is(err, swap.ErrCommandFailed) {
			t.Fatalf("Apply() error = %v, want ErrCommandFailed", err)
		}
		if !exec.Ran("chmod -R 771 ") {
			t.Error("chmod not attempted after chown failure")
		}
	})

	t.Run("nil permissions", func(t *testing.T) {
		exec := testutil.NewFakeExecutor()
		if err := newInspector(exec).Apply(context.Background(), livePath, nil); err == nil {
			t.Error("Apply(nil) expected error")
		}
		if n := len(exec.Commands()); n != 0 {
			t.Errorf("Apply(nil) issued %d commands", n)
		}
	})
}
