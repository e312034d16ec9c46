package engine

import (
	"context"
	"errors"
	"sync"
)

// Runtime is the single explicit context object a run threads through
// every package instead of the global mutable state the original
// implementation relied on (a cached parser, a path-for-removal list;
// spec.md §9 Design Notes). It does not hold the transport pair or
// registry types directly — those live in internal/transport and
// internal/typeset, which already import this package, so Runtime only
// carries what every layer can depend on without a cycle: the run's
// identity, its object-marker convention, and its shutdown-cleanup
// list (e.g. the SSH control-master "exit" command, §4.1).
type Runtime struct {
	TargetHost   string
	ObjectMarker string

	Jobs int // configurator concurrency; 1 = sequential

	mu       sync.Mutex
	cleanups []func(context.Context) error
}

// NewRuntime builds a Runtime for one run against host.
func NewRuntime(host, objectMarker string, jobs int) *Runtime {
	return &Runtime{TargetHost: host, ObjectMarker: objectMarker, Jobs: jobs}
}

// RegisterCleanup appends fn to the shutdown-cleanup list. Cleanups run
// in LIFO order (most-recently-registered first) on Close, matching the
// nesting of the resources they release (e.g. an SSH multiplex session
// opened after the working tree must close before the tree is removed).
func (r *Runtime) RegisterCleanup(fn func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, fn)
}

// Close runs every registered cleanup in LIFO order, collecting every
// error rather than stopping at the first one, since each cleanup owns
// an independent resource.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	cleanups := r.cleanups
	r.cleanups = nil
	r.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
