package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"saveswap/internal/swap"
)

var errExit1 = errors.New("exit status 1")

type execRule struct {
	pattern  string
	contains bool
	output   string
	fail     bool
}

func (r execRule) matches(command string) bool {
	if r.contains {
		return strings.Contains(command, r.pattern)
	}
	return strings.HasPrefix(command, r.pattern)
}

// FakeExecutor is a scripted swap.Executor. Commands are matched by prefix
// (or substring, for the *Containing variants) against registered rules;
// when several rules match, the most recently registered one wins. Unmatched commands succeed with empty output.
// Safe for concurrent use.
type FakeExecutor struct {
	mu       sync.Mutex
	rules    []execRule
	commands []string

	// OnExecute, when set, is called with every command before it is matched.
	OnExecute func(command string)
}

var _ swap.Executor = (*FakeExecutor)(nil)

// NewFakeExecutor creates a FakeExecutor with no rules.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

// On makes commands starting with prefix succeed with output.
func (f *FakeExecutor) On(prefix, output string) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, execRule{pattern: prefix, output: output})
	return f
}

// Fail makes commands starting with prefix exit 1 with output on stderr.
func (f *FakeExecutor) Fail(prefix, output string) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, execRule{pattern: prefix, output: output, fail: true})
	return f
}

// FailContaining makes commands containing substr exit 1 with output on stderr.
func (f *FakeExecutor) FailContaining(substr, output string) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, execRule{pattern: substr, contains: true, output: output, fail: true})
	return f
}

func (f *FakeExecutor) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &swap.CommandError{Command: command, ExitCode: -1, Err: err}
	}

	f.mu.Lock()
	f.commands = append(f.commands, command)
	hook := f.OnExecute
	var matched *execRule
	for i := len(f.rules) - 1; i >= 0; i-- {
		if f.rules[i].matches(command) {
			r := f.rules[i]
			matched = &r
			break
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook(command)
	}
	if matched == nil {
		return "", nil
	}
	if matched.fail {
		return "", &swap.CommandError{
			Command:  command,
			Output:   matched.output,
			ExitCode: 1,
			Err:      errExit1,
		}
	}
	return matched.output, nil
}

// Commands returns every command executed so far, in order.
func (f *FakeExecutor) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Count returns how many executed commands start with prefix.
func (f *FakeExecutor) Count(prefix string) int {
	n := 0
	for _, c := range f.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Ran reports whether any executed command starts with prefix.
func (f *FakeExecutor) Ran(prefix string) bool {
	return f.Count(prefix) > 0
}

// Index returns the position of the first command starting with prefix, or -1.
func (f *FakeExecutor) Index(prefix string) int {
	for i, c := range f.Commands() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// Words splits a command line the way sh would, so tests can assert on the
// arguments a command receives after quoting.
func Words(command string) ([]string, error) {
	return shellquote.Split(command)
}
