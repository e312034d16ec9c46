package object

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/opal-lang/skonfig/internal/typeset"
)

// LoadStore rebuilds a Store from workDir's on-disk object tree, the path
// a reentrant emulator invocation takes: it is a fresh process with no
// in-memory knowledge of objects an earlier sibling invocation (or the
// parent engine process) already created, so it must reconstruct enough
// state from disk before CreateOrReconcile can correctly detect
// "already exists" and merge rather than blindly re-create (spec.md
// §4.3 steps 6-7; see DESIGN.md for why this is the load-bearing half of
// the reentrant-binary design note in §9).
func LoadStore(workDir, marker string, registry *typeset.Registry) (*Store, error) {
	s := NewStore(workDir, marker)
	if err := s.Reload(registry); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-walks the on-disk object tree and adds any object not
// already held in memory, without touching objects it already knows
// about (their in-memory state, kept current by CreateOrReconcile/
// SetState's own persist-on-mutate, is authoritative). This is how the
// configurator loop picks up objects a type manifest's emulator
// invocation created in a separate OS process: the ground-truth
// implementation's object_list() re-walks the object tree from disk on
// every iterate_once pass for the same reason (a manifest can create
// objects mid-run).
func (s *Store) Reload(registry *typeset.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := filepath.Join(s.workDir, "object")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Name() != s.marker {
			return nil
		}
		objDir := filepath.Dir(path)
		rel, err := filepath.Rel(root, objDir)
		if err != nil {
			return err
		}
		typeName, id := splitTypeAndID(rel)
		name := typeName + "/" + id
		if _, ok := s.objects[name]; ok {
			return nil
		}

		t, terr := registry.Get(typeName)
		if terr != nil {
			// A stale or foreign marker file; skip rather than fail the
			// whole load.
			return nil
		}

		o, err := loadObject(objDir, typeName, id, t)
		if err != nil {
			return err
		}
		s.objects[name] = o
		s.order = append(s.order, name)
		return nil
	})
}

// splitTypeAndID turns "__planet/Earth" (or "__saturn" for a singleton,
// whose object dir has no id segment) back into its type name and id.
func splitTypeAndID(rel string) (typeName, id string) {
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	typeName = parts[0]
	if len(parts) == 2 {
		id = parts[1]
	}
	return typeName, id
}

func loadObject(dir, typeName, id string, t *typeset.Type) (*Object, error) {
	o := &Object{
		TypeName:    typeName,
		ID:          id,
		Path:        dir,
		Params:      map[string]string{},
		MultiParams: map[string][]string{},
		Booleans:    map[string]bool{},
	}

	explicit, err := readLines(filepath.Join(dir, "explicit_requirements"))
	if err == nil {
		o.ExplicitRequires = explicit
	}
	autoreq, err := readLines(filepath.Join(dir, "autorequire"))
	if err == nil {
		o.Autorequire = autoreq
	}
	source, err := readLines(filepath.Join(dir, "source"))
	if err == nil {
		o.Source = source
	}
	if b, err := os.ReadFile(filepath.Join(dir, "state")); err == nil {
		o.State = parseState(strings.TrimSpace(string(b)))
	}

	paramDir := filepath.Join(dir, "parameter")
	for _, p := range t.Required {
		if v, ok := readParam(paramDir, p); ok {
			o.Params[p] = v
		}
	}
	for _, p := range t.Optional {
		if v, ok := readParam(paramDir, p); ok {
			o.Params[p] = v
		}
	}
	for _, p := range t.RequiredMulti {
		if vs, err := readLines(filepath.Join(paramDir, p)); err == nil {
			o.MultiParams[p] = vs
		}
	}
	for _, p := range t.OptionalMulti {
		if vs, err := readLines(filepath.Join(paramDir, p)); err == nil {
			o.MultiParams[p] = vs
		}
	}
	for _, p := range t.Boolean {
		if _, err := os.Stat(filepath.Join(paramDir, p)); err == nil {
			o.Booleans[p] = true
		}
	}

	return o, nil
}

func readParam(paramDir, name string) (string, bool) {
	b, err := os.ReadFile(filepath.Join(paramDir, name))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func parseState(s string) State {
	switch s {
	case "PREPARED":
		return StatePrepared
	case "DONE":
		return StateDone
	default:
		return StateUndef
	}
}
