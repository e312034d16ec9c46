// Package transport implements the Local/Remote execution abstraction of
// §4.1: running shell and scripts, managing directories, and transferring
// files/directories, with an optional archive step. Both peers present
// near-identical surfaces, grounded on the teacher's decorator.Session
// interface (core/decorator/session.go in the grounding corpus) but
// narrowed to the POSIX-shell-oriented operations the spec names.
package transport

import (
	"context"
	"io"
)

// RunOpts configures a single Run/RunScript invocation.
type RunOpts struct {
	Stdin  io.Reader
	Stdout io.Writer // if nil, output is captured into Result.Stdout
	Stderr io.Writer
	Dir    string

	// ReturnOutput requests that the captured stdout be checked as UTF-8:
	// a non-UTF-8 payload yields a *engine.DecodeError from Run/RunScript.
	// When Stdout is set, output goes only to Stdout and is not captured,
	// so Result.Stdout stays empty and the check has nothing to reject.
	ReturnOutput bool
}

// Result is the outcome of a command execution.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Transport is the operation surface shared by Local and Remote peers.
type Transport interface {
	// Run executes argv, shell-quoted and joined by the transport's own
	// quoting rules. Non-zero exit or spawn failure raises
	// *engine.TransportError.
	Run(ctx context.Context, argv []string, env map[string]string, opts RunOpts) (Result, error)

	// RunScript executes the script at path: directly if its executable
	// bit is set, otherwise via the configured POSIX shell invoked with
	// -e.
	RunScript(ctx context.Context, path string, env map[string]string, opts RunOpts) (Result, error)

	// Mkdir/Rmdir/Rmfile are idempotent under "already exists"/"already
	// absent".
	Mkdir(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Rmfile(ctx context.Context, path string) error

	// Host identifies the peer for log attribution ("local" or the
	// target host string).
	Host() string
}

// Remote additionally supports file/directory transfer and cleanup of any
// multiplexed connection it opened.
type Remote interface {
	Transport

	// Transfer copies src (file or directory) to dst on the remote side.
	// A source directory containing more than ArchiveFilesLimit entries
	// is archived into a single artifact first when archiving is
	// enabled (§4.1 Archiving policy).
	Transfer(ctx context.Context, src, dst string) error

	// Close runs any paired cleanup command (e.g. SSH ControlMaster
	// exit) registered when the connection was opened. Best effort:
	// failures are logged, never returned as fatal (§7 propagation
	// policy).
	Close(ctx context.Context) error
}
