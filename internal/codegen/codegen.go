// Package codegen implements the code subsystem of §4.6: it runs
// gencode-local and gencode-remote to produce remediation shell
// artifacts, executes the local artifact directly and the remote one
// after transferring it to a deterministic path on the target, and
// marks an object changed when either side produced non-empty output.
package codegen

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/messaging"
	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/transport"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// Runner drives gencode for prepared objects.
type Runner struct {
	Local  transport.Transport
	Remote transport.Remote // nil if this object's type has no gencode-remote script, or for local-only runs

	// RemoteObjectBase is the deterministic remote path prefix under
	// which an object's code-remote artifact is transferred and
	// executed, e.g. "<remote-work>/object/<type>/<id>".
	RemoteObjectBase func(obj *object.Object) string

	Env map[string]string // base environment for gencode/code execution

	DryRun bool // suppress artifact execution; gencode itself still runs

	// Messages, like internal/manifest.Runner's field of the same name,
	// gives gencode scripts a __messages_in/__messages_out pair so a
	// type can react to what an earlier-running type communicated. Nil
	// disables it.
	Messages *messaging.Log
}

// Process runs gencode-local and gencode-remote for t against obj (if
// either script is present), executes the resulting artifacts unless
// DryRun is set, and records whether the object's code changed
// anything (object.Store.MarkCodeChanged).
func (r *Runner) Process(ctx context.Context, store *object.Store, t *typeset.Type, obj *object.Object) error {
	changed := false

	// inv is local to this call (Process runs concurrently across
	// objects in a parallel chunk, §4.7 Phase B, so nothing here may
	// mutate shared Runner state).
	var inv *messaging.Invocation
	extraEnv := map[string]string(nil)
	if r.Messages != nil {
		var err error
		inv, err = r.Messages.Open(obj.Path, obj.Name())
		if err != nil {
			return err
		}
		defer func() { _ = inv.Merge(ctx) }()
		extraEnv = inv.Env()
	}

	if t.HasGencodeLocal {
		artifact, err := r.runGencode(ctx, filepath.Join(t.Path, "gencode-local"), obj, extraEnv)
		if err != nil {
			return &engine.EntityError{EntityType: "object", EntityName: obj.Name(), Err: err}
		}
		if err := os.WriteFile(filepath.Join(obj.Path, "code-local"), artifact, 0o644); err != nil {
			return err
		}
		if len(bytes.TrimSpace(artifact)) > 0 {
			changed = true
			if !r.DryRun {
				if err := r.runLocalArtifact(ctx, obj, extraEnv); err != nil {
					return &engine.EntityError{EntityType: "object", EntityName: obj.Name(), Err: err}
				}
			}
		}
	}

	if t.HasGencodeRemote {
		artifact, err := r.runGencode(ctx, filepath.Join(t.Path, "gencode-remote"), obj, extraEnv)
		if err != nil {
			return &engine.EntityError{EntityType: "object", EntityName: obj.Name(), Err: err}
		}
		if err := os.WriteFile(filepath.Join(obj.Path, "code-remote"), artifact, 0o644); err != nil {
			return err
		}
		if len(bytes.TrimSpace(artifact)) > 0 {
			changed = true
			if !r.DryRun {
				if err := r.runRemoteArtifact(ctx, obj, extraEnv); err != nil {
					return &engine.EntityError{EntityType: "object", EntityName: obj.Name(), Err: err}
				}
			}
		}
	}

	if changed {
		return store.MarkCodeChanged(obj.Name())
	}
	return nil
}

// runGencode resolves src (a single executable file, a directory
// containing "init", or a directory whose visible entries are run in
// sorted order and their stdout concatenated) and returns the
// trailing-newline-enforced artifact (§4.6).
func (r *Runner) runGencode(ctx context.Context, src string, obj *object.Object, extraEnv map[string]string) ([]byte, error) {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	env := r.objectEnv(obj, extraEnv)

	var buf bytes.Buffer
	if !info.IsDir() {
		res, err := r.Local.RunScript(ctx, src, env, transport.RunOpts{ReturnOutput: true})
		if err != nil {
			return nil, err
		}
		buf.Write(res.Stdout)
		return enforceTrailingNewline(buf.Bytes()), nil
	}

	if initPath := filepath.Join(src, "init"); exists(initPath) {
		res, err := r.Local.RunScript(ctx, initPath, env, transport.RunOpts{ReturnOutput: true})
		if err != nil {
			return nil, err
		}
		buf.Write(res.Stdout)
		return enforceTrailingNewline(buf.Bytes()), nil
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || strings.HasSuffix(e.Name(), "~") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		res, err := r.Local.RunScript(ctx, filepath.Join(src, name), env, transport.RunOpts{ReturnOutput: true})
		if err != nil {
			return nil, err
		}
		buf.Write(res.Stdout)
	}
	return enforceTrailingNewline(buf.Bytes()), nil
}

func (r *Runner) runLocalArtifact(ctx context.Context, obj *object.Object, extraEnv map[string]string) error {
	path := filepath.Join(obj.Path, "code-local")
	_, err := r.Local.RunScript(ctx, path, r.objectEnv(obj, extraEnv), transport.RunOpts{})
	return err
}

func (r *Runner) runRemoteArtifact(ctx context.Context, obj *object.Object, extraEnv map[string]string) error {
	if r.Remote == nil {
		return &engine.ConfigurationError{Field: "remote", Msg: "gencode-remote artifact produced but no remote transport configured"}
	}
	remoteDir := r.RemoteObjectBase(obj)
	if err := r.Remote.Mkdir(ctx, remoteDir); err != nil {
		return err
	}
	remotePath := filepath.Join(remoteDir, "code-remote")
	if err := r.Remote.Transfer(ctx, filepath.Join(obj.Path, "code-remote"), remotePath); err != nil {
		return err
	}
	_, err := r.Remote.RunScript(ctx, remotePath, r.objectEnv(obj, extraEnv), transport.RunOpts{})
	return err
}

func (r *Runner) objectEnv(obj *object.Object, extraEnv map[string]string) map[string]string {
	env := make(map[string]string, len(r.Env)+4+len(extraEnv))
	for k, v := range r.Env {
		env[k] = v
	}
	env["__object"] = obj.Path
	env["__object_id"] = obj.ID
	env["__object_name"] = obj.Name()
	env["__type"] = obj.TypeName
	for k, v := range extraEnv {
		env[k] = v
	}
	return env
}

func enforceTrailingNewline(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(b, '\n')
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
