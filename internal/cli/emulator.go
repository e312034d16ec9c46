package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opal-lang/skonfig/internal/emulator"
	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// runEmulator re-enters the engine as the shell-callback half of §4.3: a
// manifest's `__<type>` call resolves, via PATH, to a symlink pointing
// back at this same binary; argv[0] carries the type name and argv[1:]
// the object id/parameters/flags a manifest author wrote. This process
// shares nothing in memory with whatever spawned it (parent engine
// process or a sibling manifest run), so every dependency is rebuilt
// from environment variables and the on-disk object tree.
func runEmulator(ctx context.Context, typeName string, args, environ []string, stdin *os.File) error {
	env := splitEnviron(environ)

	// §6's environment contract only promises __global, __cdist_type_
	// base_path and __cdist_object_marker; the per-host working
	// directory is not separately named anywhere in that contract, so
	// it is recovered as __global's parent — __global is always
	// "<workdir>/global" (see internal/cli's driver-mode layout).
	globalOut := env["__global"]
	if globalOut == "" {
		return fmt.Errorf("__global not set in emulator environment")
	}
	workDir := filepath.Dir(globalOut)
	marker := env["__cdist_object_marker"]
	if marker == "" {
		return fmt.Errorf("__cdist_object_marker not set in emulator environment")
	}
	overlayDir := env["__cdist_type_base_path"]
	if overlayDir == "" {
		return fmt.Errorf("__cdist_type_base_path not set in emulator environment")
	}

	registry, err := typeset.NewRegistry(nil, overlayDir)
	if err != nil {
		return err
	}
	store, err := object.LoadStore(workDir, marker, registry)
	if err != nil {
		return err
	}

	req := emulator.Request{
		TypeName: typeName,
		Args:     args,
		Env:      env,
	}
	if stdin != nil {
		if st, err := stdin.Stat(); err == nil && (st.Mode()&os.ModeCharDevice) == 0 {
			req.Stdin = stdin
		}
	}

	name, err := emulator.Run(ctx, emulator.Deps{
		Registry: registry,
		Schemas:  typeset.NewSchemaCache(),
		Store:    store,
	}, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, name)
	return nil
}

// splitEnviron turns "KEY=value" process environment entries (os.Environ
// format) into a map, the form every downstream consumer (emulator.Request,
// this package) expects.
func splitEnviron(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}
