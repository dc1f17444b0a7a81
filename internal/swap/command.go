package swap

import "strings"

// Quote wraps s in single quotes for safe interpolation into a shell command
// line. Embedded single quotes are closed, escaped, and reopened. The result
// is always quoted, even for plain words, so paths with spaces or shell
// metacharacters survive intact.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// joinPath appends a child element to a shell path without cleaning it, so a
// trailing "/." stays meaningful to cp.
func joinPath(dir, elem string) string {
	return strings.TrimSuffix(dir, "/") + "/" + elem
}
