package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"saveswap/internal/swap"
)

// Launcher presets. Each one receives the command line as its final argument.
var presets = map[string]string{
	"su":   "su -c",
	"sudo": "sudo -n sh -c",
	"sh":   "sh -c",
}

// DefaultTimeout bounds a single privileged command when none is configured.
const DefaultTimeout = 5 * time.Minute

const waitDelay = 2 * time.Second

// RootExecutor implements swap.Executor by handing the command line to a
// privilege-escalation launcher such as `su -c`.
type RootExecutor struct {
	argv    []string
	timeout time.Duration
	logger  swap.Logger
}

var _ swap.Executor = (*RootExecutor)(nil)

// NewRootExecutor creates an executor for the given launcher mode ("su",
// "sudo" or "sh"). A non-empty launcher overrides the mode and is split with
// shell rules, e.g. "su --mount-master -c". A zero timeout disables the bound.
func NewRootExecutor(mode, launcher string, timeout time.Duration, logger swap.Logger) (*RootExecutor, error) {
	if launcher == "" {
		if mode == "" {
			mode = "su"
		}
		preset, ok := presets[mode]
		if !ok {
			return nil, fmt.Errorf("unknown executor mode: %q", mode)
		}
		launcher = preset
	}

	argv, err := shellquote.Split(launcher)
	if err != nil {
		return nil, fmt.Errorf("parsing launcher %q: %w", launcher, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty launcher")
	}

	return &RootExecutor{argv: argv, timeout: timeout, logger: logger}, nil
}

// Launcher returns the launcher argv, joined for display.
func (e *RootExecutor) Launcher() string {
	return shellquote.Join(e.argv...)
}

// Execute runs command through the launcher and returns its stdout.
func (e *RootExecutor) Execute(ctx context.Context, command string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.argv[1:]...), command)
	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	// Children of the launcher can hold stdout open after it is killed.
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.logger.Debug("privileged command", "command", command, "duration", time.Since(start).Truncate(time.Millisecond))

	if err != nil {
		output := stderr.String()
		if strings.TrimSpace(output) == "" {
			output = stdout.String()
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", &swap.CommandError{
			Command:  command,
			Output:   output,
			ExitCode: exitCode,
			Err:      err,
		}
	}

	return stdout.String(), nil
}
