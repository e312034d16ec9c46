// Package emulator implements the reentrant invocation mechanism of
// §4.3: the engine binary, symlinked under every discovered type's name
// and reached via a PATH prefix the manifest subsystem sets up, parses
// its own argv as a type call and records a new (or reconciled) object
// in the store. This is the "shell calls back into the engine" half of
// the design note in §9 that keeps manifests as ordinary POSIX shell
// instead of a parsed DSL.
package emulator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// Deps are the pieces of run state an emulator invocation needs. Store
// is expected to already be loaded from disk (object.LoadStore) when
// the emulator runs as a genuinely separate OS process; the configurator
// may also call Run in-process against its own live Store during
// goroutine-pool preparation, skipping the reload.
type Deps struct {
	Registry *typeset.Registry
	Schemas  *typeset.SchemaCache
	Store    *object.Store
}

// Request is one emulator invocation: the type name is argv[0]'s
// basename, Args is argv[1:], Env is the process environment, Stdin is
// nil when the caller detected a terminal (so there is nothing to
// capture per step 4).
type Request struct {
	TypeName string
	Args     []string
	Env      map[string]string
	Stdin    io.Reader
}

// Run executes the 9-step emulator algorithm of spec.md §4.3 and
// returns the created-or-reconciled object's name, or a fatal error.
func Run(ctx context.Context, d Deps, req Request) (string, error) {
	// Step 1: resolve type.
	t, err := d.Registry.Get(req.TypeName)
	if err != nil {
		return "", err
	}

	// Step 2: parse argv[1:] into id + parameters.
	id, params, multi, booleans, err := parseArgs(t, req.Args)
	if err != nil {
		return "", err
	}

	// Step 3: validate object id.
	if !t.Singleton && id == "" {
		return "", &engine.MissingObjectIDError{Type: req.TypeName}
	}
	if t.Singleton {
		id = ""
	}

	// Required-parameter presence (part of step 2/3's validation).
	for _, p := range t.Required {
		if _, ok := params[p]; !ok {
			return "", &engine.MissingParameterError{Type: req.TypeName, Param: p}
		}
	}
	for _, p := range t.RequiredMulti {
		if len(multi[p]) == 0 {
			return "", &engine.MissingParameterError{Type: req.TypeName, Param: p}
		}
	}

	// Apply declared defaults for omitted optional parameters.
	for p, def := range t.Defaults {
		if t.IsMultiValue(p) {
			if _, ok := multi[p]; !ok {
				multi[p] = []string{def}
			}
			continue
		}
		if _, ok := params[p]; !ok {
			params[p] = def
		}
	}

	// Parameter JSON-schema validation (§3 ADDED).
	for p, v := range params {
		if err := d.Schemas.Validate(t, p, v); err != nil {
			return "", err
		}
	}

	// Step 5: explicit requirements from the `require` env var.
	var explicit []string
	if reqStr := req.Env["require"]; reqStr != "" {
		explicit = strings.Fields(reqStr)
	}

	override := isTruthy(req.Env["CDIST_OVERRIDE"])
	manifestSource := req.Env["__manifest"]

	// Steps 6-7: create or reconcile.
	obj, _, added, err := d.Store.CreateOrReconcile(req.TypeName, id, params, multi, booleans, explicit, manifestSource, override)
	if err != nil {
		return "", err
	}
	_ = added // a real CLI would log a warning here; logging wiring lives in internal/cli.

	// Step 4: capture stdin, now that the object directory exists.
	if req.Stdin != nil {
		b, err := io.ReadAll(req.Stdin)
		if err != nil {
			return "", err
		}
		if len(b) > 0 {
			if err := os.WriteFile(filepath.Join(obj.Path, "stdin"), b, 0o644); err != nil {
				return "", err
			}
		}
	}

	// Step 8: CDIST_ORDER_DEPENDENCY chains each new object after the
	// previous one created by the same manifest run.
	if isTruthy(req.Env["CDIST_ORDER_DEPENDENCY"]) {
		if depFile := req.Env["__cdist_order_dep_file"]; depFile != "" {
			if prev, err := os.ReadFile(depFile); err == nil && len(prev) > 0 {
				prevName := strings.TrimSpace(string(prev))
				if prevName != "" && prevName != obj.Name() {
					if _, err := d.Store.ResolveRequirement(prevName); err == nil {
						obj2, _, _, err := d.Store.CreateOrReconcile(
							req.TypeName, id, obj.Params, obj.MultiParams, obj.Booleans,
							append(append([]string(nil), obj.ExplicitRequires...), prevName),
							manifestSource, true)
						if err != nil {
							return "", err
						}
						obj = obj2
					}
				}
			}
			if err := os.WriteFile(depFile, []byte(obj.Name()+"\n"), 0o644); err != nil {
				return "", err
			}
		}
	}

	// Step 9: inside a type manifest, the new object autorequires onto
	// its parent (detected via __object_name, exported only for type
	// manifest runs — see internal/manifest.Runner.RunForObject).
	if parent := req.Env["__object_name"]; parent != "" {
		if err := d.Store.AddAutorequire(parent, obj.Name()); err != nil {
			return "", err
		}
	}

	return obj.Name(), nil
}

// parseArgs implements the argv[1:] grammar of §4.3 step 2: an optional
// leading object id, followed by `--param value` pairs (no value for
// boolean parameters), possibly repeated for multi-valued parameters.
func parseArgs(t *typeset.Type, args []string) (id string, params map[string]string, multi map[string][]string, booleans map[string]bool, err error) {
	params = map[string]string{}
	multi = map[string][]string{}
	booleans = map[string]bool{}

	i := 0
	if !t.Singleton && i < len(args) && !strings.HasPrefix(args[i], "--") {
		id = args[i]
		i++
	}

	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return "", nil, nil, nil, &engine.ConfigurationError{Field: "args", Msg: "unexpected positional argument " + strconv.Quote(arg)}
		}
		name := strings.TrimPrefix(arg, "--")
		if !t.IsKnownParam(name) {
			return "", nil, nil, nil, &engine.UnknownParameterError{Type: t.Name, Param: name}
		}
		i++

		if t.IsBoolean(name) {
			booleans[name] = true
			continue
		}
		if i >= len(args) {
			return "", nil, nil, nil, &engine.ConfigurationError{Field: name, Msg: "expected a value"}
		}
		value := args[i]
		i++
		if t.IsMultiValue(name) {
			multi[name] = append(multi[name], value)
		} else {
			params[name] = value
		}
	}

	return id, params, multi, booleans, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true", "yes":
		return true
	default:
		return false
	}
}
