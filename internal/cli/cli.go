// Package cli is the single entry point a built skonfig binary dispatches
// through (spec.md §6): argv[0] ending in a type name (`__*`) means this
// process is a reentrant emulator invocation spawned from a manifest's
// PATH; anything else means it is the driver the operator actually typed.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opal-lang/skonfig/internal/typeset"
)

// Main is the whole of what cmd/skonfig's main() calls. It returns the
// process exit code so main can os.Exit after its own deferred cleanup
// unwinds, instead of ending the process from inside this package.
func Main(ctx context.Context, args []string, stdin *os.File) int {
	argv0 := filepath.Base(args[0])

	if typeset.IsTypeName(argv0) {
		if err := runEmulator(ctx, argv0, args[1:], os.Environ(), stdin); err != nil {
			fmt.Fprintln(os.Stderr, "skonfig: "+argv0+": "+err.Error())
			return exitCodeFor(err)
		}
		return 0
	}

	if err := runDriver(ctx, args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "skonfig: "+err.Error())
		return exitCodeFor(err)
	}
	return 0
}
