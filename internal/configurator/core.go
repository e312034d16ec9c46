// Package configurator drives the fixed-point loop of spec.md §4.7: it
// repeatedly validates the dependency graph and advances every object
// one state transition (UNDEF -> PREPARED -> DONE) until nothing
// changes, then fails loudly if any object never reached DONE.
package configurator

import (
	"context"
	"log/slog"

	"github.com/opal-lang/skonfig/internal/codegen"
	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/explorer"
	"github.com/opal-lang/skonfig/internal/manifest"
	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// Core owns every collaborator the loop needs to advance one object
// through its state machine: the type registry, the explorer and
// manifest runners (UNDEF -> PREPARED), the codegen runner
// (PREPARED -> DONE), and the object store itself.
type Core struct {
	Store     *object.Store
	Registry  *typeset.Registry
	Explorers *explorer.Set
	Manifests *manifest.Runner
	Codegen   *codegen.Runner

	// Jobs selects sequential (1) or parallel (>=2) iterate_once mode
	// (spec.md §4.7).
	Jobs int

	// IgnoreInstallTypes mirrors config.py's object_list filter: in
	// configuration mode an object of a type carrying the `install`
	// marker file is never advanced and never counted against the
	// fixed-point assertion. The `install` driver subcommand leaves
	// this false so install-marked objects run like any other.
	IgnoreInstallTypes bool

	Log *slog.Logger
}

// ignored reports whether obj belongs to an install-marked type that
// this run's mode excludes from iteration entirely.
func (c *Core) ignored(obj *object.Object) bool {
	if !c.IgnoreInstallTypes {
		return false
	}
	t, err := c.Registry.Get(obj.TypeName)
	return err == nil && t.Install
}

// Run drives the loop to completion: validate_dependencies, then
// iterate_once, until a pass changes nothing. Returns
// UnresolvableRequirementsError if a cycle is found or if objects
// remain unfinished at the fixed point.
func (c *Core) Run(ctx context.Context) error {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	for i := 0; ; i++ {
		// A type manifest's __<type> calls run as a separate re-entrant
		// process (internal/cli's emulator dispatch) and persist new
		// objects to disk only; re-walk the object tree before every
		// pass so objects created by the previous pass's prepare step
		// are picked up here, the same reason cdist/config.py's
		// object_list() re-walks from disk on every iteration.
		if err := c.Store.Reload(c.Registry); err != nil {
			return err
		}

		cycle, err := findCycle(c.Store)
		if err != nil {
			return err
		}
		if cycle != nil {
			return &engine.UnresolvableRequirementsError{Cycle: cycle}
		}

		changed, err := c.iterateOnce(ctx)
		if err != nil {
			return err
		}
		c.Log.Debug("iterate_once", "pass", i, "changed", changed)
		if !changed {
			break
		}
	}

	var stuck []string
	for _, o := range c.Store.NotDone() {
		if c.ignored(o) {
			continue
		}
		stuck = append(stuck, o.Name())
	}
	if len(stuck) > 0 {
		return &engine.UnresolvableRequirementsError{Stuck: stuck}
	}
	return nil
}

func (c *Core) iterateOnce(ctx context.Context) (bool, error) {
	if c.Jobs >= 2 {
		return c.iterateOnceParallel(ctx)
	}
	return c.iterateOnceSequential(ctx)
}

// iterateOnceSequential walks objects in enumeration order, advancing
// each one as far as its requirements currently allow — UNDEF all the
// way through to DONE in the same pass when its autorequire is already
// satisfied by the time prepare finishes, not just one transition —
// matching cdist/config.py's sequential object_run: prepare, then (if
// not blocked) run, in the same iteration (spec.md §4.7 sequential
// mode).
func (c *Core) iterateOnceSequential(ctx context.Context) (bool, error) {
	changed := false
	for _, name := range c.Store.Names() {
		obj, ok := c.Store.Get(name)
		if !ok || obj.State == object.StateDone || c.ignored(obj) {
			continue
		}

		if obj.State == object.StateUndef {
			unfinished, err := c.Store.Unfinished(obj.ExplicitRequires)
			if err != nil {
				return false, err
			}
			if unfinished {
				continue
			}
			if err := c.prepare(ctx, obj); err != nil {
				return false, err
			}
			changed = true
		}

		if obj.State == object.StatePrepared {
			unfinished, err := c.Store.Unfinished(obj.AllRequirements())
			if err != nil {
				return false, err
			}
			if unfinished {
				continue
			}
			if err := c.execute(ctx, obj); err != nil {
				return false, err
			}
			changed = true
		}
	}
	return changed, nil
}

// iterateOnceParallel implements the two-phase parallel mode (spec.md
// §4.7, jobs >= 2): Phase A prepares every ready UNDEF object (explorer
// transfer batched per distinct type, preparation per object), Phase B
// executes every ready PREPARED object in nonparallel-respecting chunks.
func (c *Core) iterateOnceParallel(ctx context.Context) (bool, error) {
	changed := false

	var readyA []*object.Object
	for _, obj := range c.Store.NotDone() {
		if obj.State != object.StateUndef || c.ignored(obj) {
			continue
		}
		unfinished, err := c.Store.Unfinished(obj.ExplicitRequires)
		if err != nil {
			return false, err
		}
		if !unfinished {
			readyA = append(readyA, obj)
		}
	}
	if len(readyA) > 0 {
		if err := runPool(ctx, readyA, c.Jobs, false, func(ctx context.Context, obj *object.Object) error {
			return c.prepare(ctx, obj)
		}); err != nil {
			return false, err
		}
		changed = true
	}

	var readyB []*object.Object
	for _, obj := range c.Store.NotDone() {
		if obj.State != object.StatePrepared || c.ignored(obj) {
			continue
		}
		unfinished, err := c.Store.Unfinished(obj.AllRequirements())
		if err != nil {
			return false, err
		}
		if !unfinished {
			readyB = append(readyB, obj)
		}
	}
	if len(readyB) > 0 {
		chunks := chunkByNonparallel(readyB,
			func(o *object.Object) string { return o.TypeName },
			func(o *object.Object) bool {
				t, err := c.Registry.Get(o.TypeName)
				return err == nil && t.NonParallel
			},
		)
		for _, chunk := range chunks {
			if err := runPool(ctx, chunk, c.Jobs, false, func(ctx context.Context, obj *object.Object) error {
				return c.execute(ctx, obj)
			}); err != nil {
				return false, err
			}
		}
		changed = true
	}

	return changed, nil
}

// prepare runs a UNDEF object's type explorers and type manifest, then
// advances it to PREPARED.
func (c *Core) prepare(ctx context.Context, obj *object.Object) error {
	t, err := c.Registry.Get(obj.TypeName)
	if err != nil {
		return err
	}
	if c.Explorers != nil {
		if err := c.Explorers.RunForObject(ctx, t, obj); err != nil {
			return &engine.EntityError{EntityType: "object", EntityName: obj.Name(), Err: err}
		}
	}
	if c.Manifests != nil {
		if err := c.Manifests.RunForObject(ctx, t, obj); err != nil {
			return &engine.EntityError{EntityType: "object", EntityName: obj.Name(), Err: err}
		}
	}
	return c.Store.SetState(obj.Name(), object.StatePrepared)
}

// execute runs a PREPARED object's gencode/code and advances it to DONE.
func (c *Core) execute(ctx context.Context, obj *object.Object) error {
	t, err := c.Registry.Get(obj.TypeName)
	if err != nil {
		return err
	}
	if c.Codegen != nil {
		if err := c.Codegen.Process(ctx, c.Store, t, obj); err != nil {
			return err
		}
	}
	return c.Store.SetState(obj.Name(), object.StateDone)
}
