// Command skonfig is both the engine's driver (config/install
// subcommands) and, when invoked via one of the emulator symlinks
// internal/cli.linkEmulators creates, the shell-callback half of type
// resolution (spec.md §4.3, §9).
package main

import (
	"context"
	"os"

	"github.com/opal-lang/skonfig/internal/cli"
)

func main() {
	os.Exit(cli.Main(context.Background(), os.Args, os.Stdin))
}
