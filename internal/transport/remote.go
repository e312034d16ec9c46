package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/shquote"
)

// ExecRemote is the default Remote backend: it shells out to a
// user-configured command that behaves like ssh (default "ssh -o
// User=root"), exactly as §4.1 describes. Every remote command is wrapped
// as:
//
//	<remote-exec> <host> exec /bin/sh -c '<exported env>; <user command>'
//
// so that an arbitrary (possibly non-POSIX) remote login shell never gets a
// chance to misinterpret the user's command: "exec /bin/sh" replaces it
// with a known-POSIX shell before -c runs.
type ExecRemote struct {
	RemoteExecArgv []string // e.g. []string{"ssh", "-o", "User=root"}
	CopyArgv       []string // e.g. []string{"scp", "-o", "User=root"}
	RemoteShell    string   // default "/bin/sh"
	Archive        ArchiveConfig
	HostName       string // target host, as given (may be IPv6, unbracketed)

	// cleanup, when non-nil, is run best-effort by Close (e.g. the SSH
	// multiplexing ControlMaster teardown command from internal/sshprobe).
	cleanup func(ctx context.Context) error
}

// NewExecRemote builds an ExecRemote with cdist-compatible defaults.
func NewExecRemote(host string, remoteExecArgv, copyArgv []string, archive ArchiveConfig, cleanup func(context.Context) error) *ExecRemote {
	if len(remoteExecArgv) == 0 {
		remoteExecArgv = []string{"ssh", "-o", "User=root"}
	}
	if len(copyArgv) == 0 {
		copyArgv = []string{"scp", "-o", "User=root", "-r"}
	}
	return &ExecRemote{
		RemoteExecArgv: remoteExecArgv,
		CopyArgv:       copyArgv,
		RemoteShell:    "/bin/sh",
		Archive:        archive,
		HostName:       host,
		cleanup:        cleanup,
	}
}

func (r *ExecRemote) Host() string { return r.HostName }

func (r *ExecRemote) shell() string {
	if r.RemoteShell != "" {
		return r.RemoteShell
	}
	return "/bin/sh"
}

// buildUserCommand renders argv and env into the single shell-quoted
// command string that runs inside the remote /bin/sh -c.
func buildUserCommand(argv []string, env map[string]string, dir string) string {
	var cmd string
	if dir != "" {
		cmd = fmt.Sprintf("cd %s && %s", shquote.Quote(dir), shquote.Join(argv))
	} else {
		cmd = shquote.Join(argv)
	}

	if len(env) == 0 {
		return cmd
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	prefix := ""
	for _, k := range keys {
		prefix += fmt.Sprintf("export %s; ", shquote.QuoteEnvAssignment(k, env[k]))
	}
	return prefix + cmd
}

func (r *ExecRemote) wrappedArgv(userCmd string) []string {
	argv := make([]string, 0, len(r.RemoteExecArgv)+4)
	argv = append(argv, r.RemoteExecArgv...)
	argv = append(argv, bracketHost(r.HostName), "exec", r.shell(), "-c", shquote.Quote(userCmd))
	return argv
}

func (r *ExecRemote) Run(ctx context.Context, argv []string, env map[string]string, opts RunOpts) (Result, error) {
	userCmd := buildUserCommand(argv, env, opts.Dir)
	return r.runWrapped(ctx, userCmd, opts, argv)
}

func (r *ExecRemote) RunScript(ctx context.Context, path string, env map[string]string, opts RunOpts) (Result, error) {
	// The script has already been transferred to path on the remote side
	// by the caller (Explorer/Code subsystems transfer before running).
	// We cannot stat its mode remotely without a round trip, so we defer
	// to the remote shell: execute it directly when it has the execute
	// bit, and run it with `sh -e path` otherwise.
	q := shquote.Quote(path)
	userCmd := fmt.Sprintf("if [ -x %s ]; then exec %s; else exec %s -e %s; fi", q, q, shquote.Quote(r.shell()), q)
	if len(env) > 0 {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		prefix := ""
		for _, k := range keys {
			prefix += fmt.Sprintf("export %s; ", shquote.QuoteEnvAssignment(k, env[k]))
		}
		userCmd = prefix + userCmd
	}
	return r.runWrapped(ctx, userCmd, opts, []string{path})
}

func (r *ExecRemote) runWrapped(ctx context.Context, userCmd string, opts RunOpts, argvForErr []string) (Result, error) {
	argv := r.wrappedArgv(userCmd)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	var stdout, stderr bytes.Buffer
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else {
		cmd.Stdout = &stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Stdout: stdout.Bytes(), Stderr: stderr.Bytes()},
				&engine.TransportError{Argv: argvForErr, ExitCode: exitErr.ExitCode()}
		}
		return Result{}, &engine.TransportError{Argv: argvForErr, Err: err}
	}
	res := Result{ExitCode: 0, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if opts.ReturnOutput && !utf8.Valid(res.Stdout) {
		return res, &engine.DecodeError{Source: fmt.Sprintf("%v", argvForErr), Err: errors.New("stdout is not valid UTF-8")}
	}
	return res, nil
}

func (r *ExecRemote) mkdirRmArgv(op, path string) []string {
	var userCmd string
	switch op {
	case "mkdir":
		userCmd = fmt.Sprintf("mkdir -p %s", shquote.Quote(path))
	case "rmdir":
		userCmd = fmt.Sprintf("rm -rf %s", shquote.Quote(path))
	case "rmfile":
		userCmd = fmt.Sprintf("rm -f %s", shquote.Quote(path))
	}
	return r.wrappedArgv(userCmd)
}

func (r *ExecRemote) Mkdir(ctx context.Context, path string) error {
	_, err := r.runArgv(ctx, r.mkdirRmArgv("mkdir", path))
	return err
}

func (r *ExecRemote) Rmdir(ctx context.Context, path string) error {
	_, err := r.runArgv(ctx, r.mkdirRmArgv("rmdir", path))
	return err
}

func (r *ExecRemote) Rmfile(ctx context.Context, path string) error {
	_, err := r.runArgv(ctx, r.mkdirRmArgv("rmfile", path))
	return err
}

func (r *ExecRemote) runArgv(ctx context.Context, argv []string) (Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, &engine.TransportError{Argv: argv, ExitCode: exitErr.ExitCode()}
		}
		return Result{}, &engine.TransportError{Argv: argv, Err: err}
	}
	return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// Transfer implements §4.1's directory-archiving policy: a source
// directory with more than ArchiveFilesLimit entries is archived into a
// single artifact when archiving is enabled; otherwise files are copied
// one-by-one with CopyArgv.
func (r *ExecRemote) Transfer(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return &engine.TransportError{Argv: []string{"stat", src}, Err: err}
	}

	if info.IsDir() {
		archive, err := shouldArchive(r.Archive, src)
		if err != nil {
			return &engine.TransportError{Argv: []string{"readdir", src}, Err: err}
		}
		if archive {
			return r.transferArchived(ctx, src, dst)
		}
		return r.transferTree(ctx, src, dst)
	}
	return r.copyOne(ctx, src, dst)
}

func (r *ExecRemote) transferArchived(ctx context.Context, src, dst string) error {
	archivePath, err := createArchive(r.Archive.Mode, src)
	if err != nil {
		return err
	}
	defer os.Remove(archivePath)

	remoteArchive := dst + ".skonfig-xfer.tar"
	if err := r.copyOne(ctx, archivePath, remoteArchive); err != nil {
		return err
	}
	if err := r.Mkdir(ctx, dst); err != nil {
		return err
	}
	line := extractArchiveLine(r.Archive.Mode, remoteArchive, dst)
	if _, err := r.runWrapped(ctx, line, RunOpts{}, []string{"tar", "extract", dst}); err != nil {
		return err
	}
	return r.Rmfile(ctx, remoteArchive)
}

func (r *ExecRemote) transferTree(ctx context.Context, src, dst string) error {
	if err := r.Mkdir(ctx, dst); err != nil {
		return err
	}
	return filepath.Walk(src, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.ToSlash(filepath.Join(dst, rel))
		if info.IsDir() {
			return r.Mkdir(ctx, target)
		}
		return r.copyOne(ctx, p, target)
	})
}

func (r *ExecRemote) copyOne(ctx context.Context, src, dst string) error {
	argv := make([]string, 0, len(r.CopyArgv)+2)
	argv = append(argv, r.CopyArgv...)
	argv = append(argv, src, fmt.Sprintf("%s:%s", bracketHost(r.HostName), dst))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &engine.TransportError{Argv: argv, ExitCode: exitErr.ExitCode()}
		}
		return &engine.TransportError{Argv: argv, Err: err}
	}
	return nil
}

func (r *ExecRemote) Close(ctx context.Context) error {
	if r.cleanup == nil {
		return nil
	}
	return r.cleanup(ctx)
}
