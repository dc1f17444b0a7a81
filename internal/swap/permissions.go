package swap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// permissionStrategy pairs one query command with the parser for its output.
// Device builds ship different stat/ls implementations, so no single command
// is guaranteed to be present or to print a known format.
type permissionStrategy struct {
	name    string
	command func(path string) string
	parse   func(output string) (*FilePermissions, bool)
}

var defaultStrategies = []permissionStrategy{
	{
		name:    "stat-format",
		command: func(path string) string { return "stat -c '%U:%G %a' " + Quote(path) },
		parse:   parseOwnerGroupMode,
	},
	{
		name:    "stat-verbose",
		command: func(path string) string { return "stat " + Quote(path) },
		parse:   parseVerboseStat,
	},
	{
		name:    "ls-long",
		command: func(path string) string { return "ls -ld " + Quote(path) },
		parse:   parseLongListing,
	},
}

// Inspector discovers and re-applies file ownership through an Executor.
// It keeps no state between calls; every lookup re-issues its commands.
type Inspector struct {
	exec       Executor
	logger     Logger
	strategies []permissionStrategy
}

// NewInspector creates an Inspector that issues commands through exec.
func NewInspector(exec Executor, logger Logger) *Inspector {
	return &Inspector{
		exec:       exec,
		logger:     logger,
		strategies: defaultStrategies,
	}
}

// GetFilePermissions returns the owner, group and normalized mode of path.
// Strategies run in a fixed order and the first one whose command succeeds
// and whose output parses wins. When every strategy fails the returned
// *PermissionLookupError carries all attempts.
func (in *Inspector) GetFilePermissions(ctx context.Context, path string) (*FilePermissions, error) {
	var attempts []error
	for _, st := range in.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := in.exec.Execute(ctx, st.command(path))
		if err != nil {
			in.logger.Debug("permission query failed", "strategy", st.name, "path", path, "error", err)
			attempts = append(attempts, err)
			continue
		}

		perms, ok := st.parse(out)
		if !ok {
			in.logger.Debug("permission output not recognized", "strategy", st.name, "path", path)
			attempts = append(attempts, fmt.Errorf("%w: unrecognized %s output %q", ErrParseFailed, st.name, firstLine(out)))
			continue
		}

		in.logger.Debug("permissions resolved", "strategy", st.name, "path", path, "permissions", perms.String())
		return perms, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &PermissionLookupError{Path: path, Attempts: attempts}
}

// SetFileOwnership recursively changes the owner and group of path.
func (in *Inspector) SetFileOwnership(ctx context.Context, path, owner, group string) error {
	if owner == "" || group == "" {
		return fmt.Errorf("owner and group are required (got %q:%q)", owner, group)
	}
	cmd := "chown -R " + Quote(owner+":"+group) + " " + Quote(path)
	if _, err := in.exec.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("setting ownership of %s: %w", path, err)
	}
	return nil
}

// SetFilePermissions recursively changes the mode of path.
// mode must be an octal string such as "771".
func (in *Inspector) SetFilePermissions(ctx context.Context, path, mode string) error {
	if !isOctal(mode) {
		return fmt.Errorf("invalid mode %q", mode)
	}
	cmd := "chmod -R " + mode + " " + Quote(path)
	if _, err := in.exec.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("setting mode of %s: %w", path, err)
	}
	return nil
}

// Apply re-applies a full ownership triple to path. Ownership and mode are
// attempted independently; a chown failure does not prevent the chmod and
// neither is rolled back. The returned error joins whichever steps failed.
func (in *Inspector) Apply(ctx context.Context, path string, perms *FilePermissions) error {
	if perms == nil {
		return fmt.Errorf("no permissions to apply to %s", path)
	}
	ownErr := in.SetFileOwnership(ctx, path, perms.Owner, perms.Group)
	modeErr := in.SetFilePermissions(ctx, path, perms.Mode)
	return errors.Join(ownErr, modeErr)
}

// parseOwnerGroupMode parses the single-line "owner:group mode" form.
func parseOwnerGroupMode(output string) (*FilePermissions, bool) {
	fields := strings.Fields(firstLine(output))
	if len(fields) != 2 {
		return nil, false
	}
	owner, group, ok := strings.Cut(fields[0], ":")
	if !ok || owner == "" || group == "" {
		return nil, false
	}
	mode, ok := normalizeMode(fields[1])
	if !ok {
		return nil, false
	}
	return &FilePermissions{Owner: owner, Group: group, Mode: mode}, true
}

var (
	statUidRe    = regexp.MustCompile(`Uid:\s*\(\s*\d+\s*/\s*([^\s)]+)\s*\)`)
	statGidRe    = regexp.MustCompile(`Gid:\s*\(\s*\d+\s*/\s*([^\s)]+)\s*\)`)
	statAccessRe = regexp.MustCompile(`Access:\s*\(\s*([0-7]{1,4})\s*/`)
)

// parseVerboseStat parses the multi-line output of a plain `stat`:
//
//	Access: (0771/drwxrwx--x)  Uid: ( 10123/ u0_a123)   Gid: ( 10123/ u0_a123)
//
// The three fields may share a line or sit on separate lines.
func parseVerboseStat(output string) (*FilePermissions, bool) {
	uid := statUidRe.FindStringSubmatch(output)
	gid := statGidRe.FindStringSubmatch(output)
	access := statAccessRe.FindStringSubmatch(output)
	if uid == nil || gid == nil || access == nil {
		return nil, false
	}
	mode, ok := normalizeMode(access[1])
	if !ok {
		return nil, false
	}
	return &FilePermissions{Owner: uid[1], Group: gid[1], Mode: mode}, true
}

// parseLongListing parses an `ls -ld` line:
//
//	drwxr-xr-x 2 owner group 4096 Jan 24 20:00 /path
func parseLongListing(output string) (*FilePermissions, bool) {
	fields := strings.Fields(firstLine(output))
	if len(fields) < 4 {
		return nil, false
	}
	mode, ok := symbolicToMode(fields[0])
	if !ok {
		return nil, false
	}
	return &FilePermissions{Owner: fields[2], Group: fields[3], Mode: mode}, true
}

// symbolicToMode converts "drwxr-x--x" (optionally followed by an ACL or
// SELinux marker) into a normalized octal mode. Special bits are dropped.
func symbolicToMode(s string) (string, bool) {
	if len(s) < 10 {
		return "", false
	}
	perm := s[1:10]
	digits := make([]byte, 3)
	for i := 0; i < 3; i++ {
		var d byte
		triple := perm[i*3 : i*3+3]
		switch triple[0] {
		case 'r':
			d += 4
		case '-':
		default:
			return "", false
		}
		switch triple[1] {
		case 'w':
			d += 2
		case '-':
		default:
			return "", false
		}
		switch triple[2] {
		case 'x', 's', 't':
			d++
		case '-', 'S', 'T':
		default:
			return "", false
		}
		digits[i] = '0' + d
	}
	return normalizeMode(string(digits))
}

// normalizeMode reduces an octal access mode to its trailing permission
// digits with leading zeros stripped: "0755" -> "755", "0000" -> "0".
func normalizeMode(raw string) (string, bool) {
	if raw == "" || len(raw) > 4 || !isOctal(raw) {
		return "", false
	}
	if len(raw) > 3 {
		raw = raw[len(raw)-3:]
	}
	mode := strings.TrimLeft(raw, "0")
	if mode == "" {
		mode = "0"
	}
	return mode, true
}

func isOctal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '7' {
			return false
		}
	}
	return true
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
