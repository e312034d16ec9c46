// Package shquote safely quotes and splits argument vectors for shell
// invocation. Quoting is a small regex-guarded single-quote escaper in the
// style of the teacher's ssh_session.go shellQuote/shellEscape helpers;
// splitting is delegated to github.com/kballard/go-shellquote, the same
// POSIX-ish shell lexer dnephin-buildpipe's config package reaches for
// when round-tripping shell-quoted strings.
package shquote

import (
	"regexp"
	"strings"

	shellwords "github.com/kballard/go-shellquote"
)

// safeBareword matches strings that never need quoting: shell metacharacters,
// whitespace and the empty string all force quoting.
var safeBareword = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote renders s as a single shell word, single-quoting it unless it is
// already guaranteed to be metacharacter-free.
func Quote(s string) string {
	if s != "" && safeBareword.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join quotes every element of argv and joins them into one shell command
// line, the form the Remote transport wraps as the user command in its
// `ssh host exec /bin/sh -c '...'` invocation.
func Join(argv []string) string {
	words := make([]string, len(argv))
	for i, a := range argv {
		words[i] = Quote(a)
	}
	return strings.Join(words, " ")
}

// Split parses a shell command line back into an argument vector. It is the
// inverse of Join: for any argv, Split(Join(argv)) == argv (testable
// property §8.10).
func Split(line string) ([]string, error) {
	return shellwords.Split(line)
}

// QuoteEnvAssignment renders "KEY=VALUE" as a single safely-quoted shell
// word, used when exporting environment variables into the remote command
// line ahead of the user's command (§4.1).
func QuoteEnvAssignment(key, value string) string {
	return Quote(key + "=" + value)
}
