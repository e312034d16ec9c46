// Package manifest runs the initial manifest and per-type manifests
// locally under the constructed environment of §4.5: PATH prefixed with
// the emulator-link directory so the shell's name lookup for `__<type>`
// calls re-enters the engine binary, plus the fixed set of `__`-prefixed
// variables manifests and the emulator rely on.
package manifest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/messaging"
	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/transport"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// Env is the fixed part of the environment every manifest invocation
// receives (spec.md §4.5), independent of whether it is the initial
// manifest or a type manifest.
type Env struct {
	EmulatorBinDir   string // prepended to PATH
	TargetHost       string
	TargetHostname   string
	TargetFQDN       string
	GlobalOutDir     string // __global
	TypeBasePath     string // __cdist_type_base_path: the conf overlay root
	FilesPath        string // __files
	ObjectMarker     string // __cdist_object_marker
	LogLevel         string // __cdist_log_level
}

func (e Env) baseMap() map[string]string {
	path := e.EmulatorBinDir
	if existing := os.Getenv("PATH"); existing != "" {
		path = path + string(os.PathListSeparator) + existing
	}
	return map[string]string{
		"PATH":                     path,
		"__target_host":            e.TargetHost,
		"__target_hostname":        e.TargetHostname,
		"__target_fqdn":            e.TargetFQDN,
		"__global":                 e.GlobalOutDir,
		"__cdist_type_base_path":   e.TypeBasePath,
		"__files":                  e.FilesPath,
		"__cdist_object_marker":    e.ObjectMarker,
		"__cdist_log_level":        e.LogLevel,
	}
}

// Runner executes manifest scripts through a local transport — manifests
// always run on the machine driving the engine, never on the remote
// target (spec.md §2).
type Runner struct {
	Local transport.Transport
	Env   Env

	// Messages is the global messages log (§6 "Messages file"). Nil
	// disables messaging entirely (e.g. a manifest dry-run that never
	// needs inter-type communication); RunForObject is the one call
	// site that opens a scratch pair, since cross-type messaging is a
	// manifest-time concern in the original design.
	Messages *messaging.Log
}

// NewRunner builds a manifest Runner over the given local transport.
func NewRunner(local transport.Transport, env Env) *Runner {
	return &Runner{Local: local, Env: env}
}

// RunInitial executes the initial manifest, which seeds the first wave
// of objects (spec.md §4.7). logDir receives its captured stdout/stderr.
func (r *Runner) RunInitial(ctx context.Context, path, logDir string) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	stdoutF, err := os.Create(filepath.Join(logDir, "stdout"))
	if err != nil {
		return err
	}
	defer stdoutF.Close()
	stderrF, err := os.Create(filepath.Join(logDir, "stderr"))
	if err != nil {
		return err
	}
	defer stderrF.Close()

	env := r.Env.baseMap()
	env["__manifest"] = path
	env["__cdist_order_dep_file"] = filepath.Join(logDir, ".order-dependency")

	_, err = r.Local.RunScript(ctx, path, env, transport.RunOpts{Stdout: stdoutF, Stderr: stderrF})
	if err != nil {
		return &engine.EntityError{
			EntityType: "initial-manifest",
			EntityName: path,
			Stdout:     filepath.Join(logDir, "stdout"),
			Stderr:     filepath.Join(logDir, "stderr"),
			Err:        err,
		}
	}
	return nil
}

// RunForObject executes t's manifest (if any) for obj, exporting the
// per-object variables §4.5 adds (__object, __object_id, __object_name,
// __type) plus __cdist_manifest pointing at obj's own directory. A nested
// emulator invocation detects that it is running inside obj's own
// manifest through __object_name and records new objects as obj's
// autorequire (spec.md §4.3 step 9). Captured output lands in obj's
// stdout/stderr directories.
func (r *Runner) RunForObject(ctx context.Context, t *typeset.Type, obj *object.Object) error {
	if !t.HasManifest {
		return nil
	}
	manifestPath := filepath.Join(t.Path, "manifest")

	stdoutDir := filepath.Join(obj.Path, "stdout")
	stderrDir := filepath.Join(obj.Path, "stderr")
	if err := os.MkdirAll(stdoutDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(stderrDir, 0o755); err != nil {
		return err
	}
	stdoutF, err := os.Create(filepath.Join(stdoutDir, "manifest"))
	if err != nil {
		return err
	}
	defer stdoutF.Close()
	stderrF, err := os.Create(filepath.Join(stderrDir, "manifest"))
	if err != nil {
		return err
	}
	defer stderrF.Close()

	env := r.Env.baseMap()
	env["__manifest"] = manifestPath
	env["__cdist_manifest"] = obj.Path
	env["__cdist_order_dep_file"] = filepath.Join(obj.Path, ".order-dependency")
	env["__object"] = obj.Path
	env["__object_id"] = obj.ID
	env["__object_name"] = obj.Name()
	env["__type"] = obj.TypeName
	for k, v := range obj.Params {
		env["__object_param_"+k] = v
	}

	var inv *messaging.Invocation
	if r.Messages != nil {
		inv, err = r.Messages.Open(obj.Path, obj.Name())
		if err != nil {
			return err
		}
		for k, v := range inv.Env() {
			env[k] = v
		}
	}

	_, err = r.Local.RunScript(ctx, manifestPath, env, transport.RunOpts{Stdout: stdoutF, Stderr: stderrF})

	if inv != nil {
		// Merged regardless of the manifest's own success, matching the
		// original's finally-block semantics: a failing manifest may
		// still have left useful diagnostics for sibling objects.
		if mergeErr := inv.Merge(ctx); mergeErr != nil && err == nil {
			err = mergeErr
		}
	}

	if err != nil {
		return &engine.EntityError{
			EntityType: "object",
			EntityName: obj.Name(),
			Stdout:     filepath.Join(stdoutDir, "manifest"),
			Stderr:     filepath.Join(stderrDir, "manifest"),
			Err:        err,
		}
	}
	return nil
}
