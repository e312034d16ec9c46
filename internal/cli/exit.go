package cli

import (
	"context"
	"errors"
)

// exitCodeFor maps a returned error to the process exit code spec.md §6
// promises: 0 is handled by the caller before this is ever invoked, 2 is
// reserved for interruption, everything else fatal is 1.
func exitCodeFor(err error) int {
	if errors.Is(err, context.Canceled) {
		return 2
	}
	return 1
}
