package object

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opal-lang/skonfig/internal/engine"
)

// Store owns every Object created during a run. It is the one place that
// both holds the in-memory dependency graph the configurator walks on
// every pass and mirrors each mutation to the object's directory on the
// per-host working tree, per spec.md §4.2.
type Store struct {
	mu      sync.RWMutex
	workDir string
	marker  string // object-marker file name, e.g. ".skonfig-object"

	objects map[string]*Object // "type/id" -> Object
	order   []string           // enumeration order: first-seen
}

// NewStore creates a Store rooted at workDir. marker is the configurable
// object-marker file name written into every object directory.
func NewStore(workDir, marker string) *Store {
	return &Store{workDir: workDir, marker: marker, objects: make(map[string]*Object)}
}

// ObjectDir computes the on-disk directory for (typeName, id) without
// requiring the object to already exist, so callers (the emulator,
// explorer/code subsystems) can compute paths uniformly.
func (s *Store) ObjectDir(typeName, id string) string {
	if id == "" {
		return filepath.Join(s.workDir, "object", typeName)
	}
	return filepath.Join(s.workDir, "object", typeName, id)
}

// CreateOrReconcile implements emulator steps 6-7 (spec.md §4.3): create
// the object if it does not exist, otherwise reconcile an existing one —
// merging requirements, and failing on a parameter mismatch unless
// override is set. addedRequires reports any explicit requirement names
// added by this reconciliation pass, for the emulator to warn about.
func (s *Store) CreateOrReconcile(
	typeName, id string,
	params map[string]string,
	multi map[string][]string,
	booleans map[string]bool,
	explicitRequires []string,
	manifestSource string,
	override bool,
) (obj *Object, created bool, addedRequires []string, err error) {
	if strings.Contains(id, s.marker) {
		return nil, false, nil, &engine.IllegalObjectIDError{Type: typeName, ID: id, Marker: s.marker}
	}

	name := typeName + "/" + id

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.objects[name]; ok {
		if !override && !existing.paramsEqual(params, multi, booleans) {
			return nil, false, nil, &engine.ParameterConflictError{
				Object: name,
				Param:  "<parameters>",
				Old:    fmt.Sprintf("%v %v %v", existing.Params, existing.MultiParams, existing.Booleans),
				New:    fmt.Sprintf("%v %v %v", params, multi, booleans),
			}
		}
		if override {
			existing.Params = params
			existing.MultiParams = multi
			existing.Booleans = booleans
		}
		addedRequires = existing.mergeExplicitRequires(explicitRequires)
		existing.Source = appendUnique(existing.Source, manifestSource)
		if err := s.persist(existing); err != nil {
			return nil, false, nil, err
		}
		return existing, false, addedRequires, nil
	}

	o := &Object{
		TypeName:         typeName,
		ID:               id,
		Path:             s.ObjectDir(typeName, id),
		Params:           params,
		MultiParams:      multi,
		Booleans:         booleans,
		ExplicitRequires: explicitRequires,
		Source:           []string{manifestSource},
		State:            StateUndef,
	}
	if err := os.MkdirAll(o.Path, 0o755); err != nil {
		return nil, false, nil, err
	}
	if err := os.WriteFile(filepath.Join(o.Path, s.marker), nil, 0o644); err != nil {
		return nil, false, nil, err
	}
	if err := s.persist(o); err != nil {
		return nil, false, nil, err
	}

	s.objects[name] = o
	s.order = append(s.order, name)
	return o, true, nil, nil
}

// AddAutorequire records that parentName's own manifest created child,
// per emulator step 9.
func (s *Store) AddAutorequire(parentName, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.objects[parentName]
	if !ok {
		return fmt.Errorf("autorequire: unknown parent object %q", parentName)
	}
	parent.addAutorequire(child)
	return s.persist(parent)
}

// SetState advances o's state machine and marks it changed, enforcing
// the legal UNDEF->PREPARED->DONE transitions (spec.md §3).
func (s *Store) SetState(name string, next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("SetState: unknown object %q", name)
	}
	engine.Invariant(o.State.canAdvanceTo(next), "illegal state transition %s -> %s for %s", o.State, next, name)
	o.State = next
	o.Changed = true
	return s.persist(o)
}

// MarkCodeChanged records that o's generated code produced a non-empty
// artifact, mirrored to the on-disk `changed` marker file (§6).
func (s *Store) MarkCodeChanged(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("MarkCodeChanged: unknown object %q", name)
	}
	o.CodeChanged = true
	return os.WriteFile(filepath.Join(o.Path, "changed"), nil, 0o644)
}

// Get returns the object named "type/id", or false if it has not been
// created yet.
func (s *Store) Get(name string) (*Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[name]
	return o, ok
}

func (s *Store) byName(name string) (*Object, bool) { return s.Get(name) }

// Names returns every known object name in first-seen (enumeration)
// order, the order sequential iterate_once walks (spec.md §4.7).
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// All returns every object, in enumeration order.
func (s *Store) All() []*Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Object, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.objects[name])
	}
	return out
}

// NotDone returns every object not yet in state DONE, the working set
// validate_dependencies and iterate_once both operate over.
func (s *Store) NotDone() []*Object {
	all := s.All()
	out := all[:0:0]
	for _, o := range all {
		if o.State != StateDone {
			out = append(out, o)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

// persist mirrors o's in-memory state to its directory on disk. Callers
// must hold s.mu.
func (s *Store) persist(o *Object) error {
	if err := writeLines(filepath.Join(o.Path, "explicit_requirements"), o.ExplicitRequires); err != nil {
		return err
	}
	if err := writeLines(filepath.Join(o.Path, "autorequire"), o.Autorequire); err != nil {
		return err
	}
	if err := writeLines(filepath.Join(o.Path, "source"), o.Source); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(o.Path, "state"), []byte(o.State.String()), 0o644); err != nil {
		return err
	}

	paramDir := filepath.Join(o.Path, "parameter")
	if err := os.MkdirAll(paramDir, 0o755); err != nil {
		return err
	}
	for k, v := range o.Params {
		if err := os.WriteFile(filepath.Join(paramDir, k), []byte(v), 0o644); err != nil {
			return err
		}
	}
	for k, vs := range o.MultiParams {
		if err := writeLines(filepath.Join(paramDir, k), vs); err != nil {
			return err
		}
	}
	for k, present := range o.Booleans {
		if !present {
			continue
		}
		if err := os.WriteFile(filepath.Join(paramDir, k), nil, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeLines(path string, lines []string) error {
	if len(lines) == 0 {
		return os.WriteFile(path, nil, 0o644)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}
