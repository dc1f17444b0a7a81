package swap

import "context"

// Executor runs a single shell command with superuser privileges.
//
// The command is a fully formed shell command line; the executor neither
// parses nor validates it, so callers must quote every path they interpolate.
// On success it returns captured stdout. On a non-zero exit or spawn failure
// it returns a *CommandError. Executors never retry.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}
