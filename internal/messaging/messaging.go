// Package messaging implements the messaging subsystem of spec.md §4
// (table) and §6 ("Messages file"): each type-manifest/gencode
// invocation gets its own `__messages_in`/`__messages_out` scratch
// files, and any lines written to `__messages_out` are merged back
// into one global log, line-prefixed `<type>/<id>:`, guarded by a
// file lock so concurrent workers never interleave a partial line.
package messaging

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Log owns the single global messages file every invocation merges into.
type Log struct {
	path string
}

// NewLog opens (creating if necessary) the global messages file at path.
func NewLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()
	return &Log{path: path}, nil
}

// Invocation is one type-manifest/gencode run's private message scratch
// pair. Open it before running the invocation, pass Env to the child
// process, and call Merge after it exits (success or failure — a type
// that messages before failing should still have its lines recorded).
type Invocation struct {
	log    *Log
	prefix string // "<type>/<id>"

	in  string
	out string
}

// Open creates a fresh __messages_in/__messages_out pair under dir,
// pre-populating __messages_in with the current global log contents
// (spec.md: "Message._copy_messages") so a manifest can read everything
// emitted so far.
func (l *Log) Open(dir, prefix string) (*Invocation, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	inPath := filepath.Join(dir, "messages_in")
	outPath := filepath.Join(dir, "messages_out")

	lock := flock.New(l.path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	global, err := os.ReadFile(l.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.WriteFile(inPath, global, 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, nil, 0o644); err != nil {
		return nil, err
	}

	return &Invocation{log: l, prefix: prefix, in: inPath, out: outPath}, nil
}

// Env returns the __messages_in/__messages_out pair to export into the
// invocation's child process environment.
func (inv *Invocation) Env() map[string]string {
	return map[string]string{
		"__messages_in":  inv.in,
		"__messages_out": inv.out,
	}
}

// Merge appends every line written to __messages_out to the global log,
// each prefixed "<type>/<id>:", under a cross-process lock, then
// removes the scratch files.
func (inv *Invocation) Merge(_ context.Context) error {
	defer inv.cleanup()

	f, err := os.Open(inv.out)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	lock := flock.New(inv.log.path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	dst, err := os.OpenFile(inv.log.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	w := bufio.NewWriter(dst)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if _, err := fmt.Fprintf(w, "%s:%s\n", inv.prefix, strings.TrimRight(scanner.Text(), "\n")); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return w.Flush()
}

func (inv *Invocation) cleanup() {
	os.Remove(inv.in)
	os.Remove(inv.out)
}
