package typeset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/opal-lang/skonfig/internal/engine"
)

// Registry is the discovered, overlaid view of every type, grounded on the
// teacher's sync.RWMutex-guarded map (core/types/registry.go), adapted to
// lazily load each Type's metadata from disk rather than from a
// code-registered handler.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type

	overlayDir string
}

// nonTypeOverlayEntries are the conf-dir top-level entries besides `__*`
// type directories that the rest of the engine reads out of the overlay:
// the initial manifest, the global explorers, and shared files (§4.2,
// §4.4, §4.5). Each is overlaid as a whole directory, last-root-wins,
// exactly like a type directory, rather than merged file by file.
var nonTypeOverlayEntries = []string{"manifest", "explorer", "files"}

// NewRegistry builds the conf overlay under overlayDir by symlinking every
// `__*` type directory, plus the manifest/explorer/files directories,
// found across confDirs, in order, so a later confDir's entry of the same
// name replaces an earlier one ("last conf-dir wins", §4.2).
func NewRegistry(confDirs []string, overlayDir string) (*Registry, error) {
	if err := os.MkdirAll(overlayDir, 0o755); err != nil {
		return nil, &engine.ConfigurationError{Field: "conf-dir", Msg: err.Error()}
	}

	r := &Registry{types: make(map[string]*Type), overlayDir: overlayDir}

	relink := func(name, confDir string) error {
		link := filepath.Join(overlayDir, name)
		target := filepath.Join(confDir, name)

		_ = os.Remove(link) // last root wins: drop any earlier link first
		abs, err := filepath.Abs(target)
		if err != nil {
			return err
		}
		if err := os.Symlink(abs, link); err != nil {
			return &engine.ConfigurationError{Field: "conf-dir", Msg: err.Error()}
		}
		return nil
	}

	for _, confDir := range confDirs {
		entries, err := os.ReadDir(confDir)
		if err != nil {
			return nil, &engine.ConfigurationError{Field: "conf-dir", Msg: fmt.Sprintf("%s: %v", confDir, err)}
		}
		for _, e := range entries {
			if !IsTypeName(e.Name()) {
				continue
			}
			if err := relink(e.Name(), confDir); err != nil {
				return nil, err
			}
		}
		for _, name := range nonTypeOverlayEntries {
			if _, err := os.Stat(filepath.Join(confDir, name)); err != nil {
				continue
			}
			if err := relink(name, confDir); err != nil {
				return nil, err
			}
		}
	}

	overlayEntries, err := os.ReadDir(overlayDir)
	if err != nil {
		return nil, err
	}
	for _, e := range overlayEntries {
		if !IsTypeName(e.Name()) {
			continue
		}
		t, err := loadType(filepath.Join(overlayDir, e.Name()), e.Name())
		if err != nil {
			return nil, fmt.Errorf("loading type %s: %w", e.Name(), err)
		}
		r.types[e.Name()] = t
	}
	return r, nil
}

// Get resolves name to its Type, or a *engine.InvalidTypeError carrying a
// fuzzy "did you mean" suggestion (SPEC_FULL §4.3 ADDED) when unknown.
func (r *Registry) Get(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, r.unknownTypeError(name)
	}
	return t, nil
}

// Has reports whether name is a known type, without constructing an error.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// All returns every discovered type, sorted by name for deterministic
// enumeration order (the Configurator walks objects in this order in
// sequential mode, §4.7).
func (r *Registry) All() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) unknownTypeError(name string) error {
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	ranked := fuzzy.RankFindFold(name, names)
	sort.Sort(ranked)
	base := &engine.InvalidTypeError{Name: name}
	if len(ranked) == 0 {
		return base
	}
	return fmt.Errorf("%w (did you mean %q?)", base, ranked[0].Target)
}

func loadType(path, name string) (*Type, error) {
	t := &Type{Name: name, Path: path, Defaults: map[string]string{}, DeprecatedParams: map[string]string{}}

	t.Required, _ = readLines(filepath.Join(path, "parameter", "required"))
	t.Optional, _ = readLines(filepath.Join(path, "parameter", "optional"))
	t.RequiredMulti, _ = readLines(filepath.Join(path, "parameter", "required_multiple"))
	t.OptionalMulti, _ = readLines(filepath.Join(path, "parameter", "optional_multiple"))
	t.Boolean, _ = readLines(filepath.Join(path, "parameter", "boolean"))

	if defaults, err := os.ReadDir(filepath.Join(path, "parameter", "default")); err == nil {
		for _, e := range defaults {
			b, err := os.ReadFile(filepath.Join(path, "parameter", "default", e.Name()))
			if err == nil {
				t.Defaults[e.Name()] = strings.TrimRight(string(b), "\n")
			}
		}
	}

	if deprecated, err := os.ReadDir(filepath.Join(path, "parameter", "deprecated")); err == nil {
		for _, e := range deprecated {
			b, err := os.ReadFile(filepath.Join(path, "parameter", "deprecated", e.Name()))
			if err == nil {
				t.DeprecatedParams[e.Name()] = strings.TrimSpace(string(b))
			}
		}
	}

	if schemas, err := os.ReadDir(filepath.Join(path, "parameter", "schema")); err == nil {
		for _, e := range schemas {
			if strings.HasSuffix(e.Name(), ".json") {
				t.SchemaParams = append(t.SchemaParams, strings.TrimSuffix(e.Name(), ".json"))
			}
		}
	}

	t.Singleton = exists(filepath.Join(path, "singleton"))
	t.Install = exists(filepath.Join(path, "install"))
	t.NonParallel = exists(filepath.Join(path, "nonparallel"))
	t.HasManifest = exists(filepath.Join(path, "manifest"))
	t.HasGencodeLocal = exists(filepath.Join(path, "gencode-local"))
	t.HasGencodeRemote = exists(filepath.Join(path, "gencode-remote"))
	t.HasFiles = isDir(filepath.Join(path, "files"))

	if depFile := filepath.Join(path, "deprecated"); exists(depFile) {
		t.Deprecated = true
		if b, err := os.ReadFile(depFile); err == nil {
			t.DeprecatedMsg = strings.TrimSpace(string(b))
		}
	}

	if entries, err := os.ReadDir(filepath.Join(path, "explorer")); err == nil {
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), ".") && !strings.HasSuffix(e.Name(), "~") {
				t.Explorers = append(t.Explorers, e.Name())
			}
		}
		sort.Strings(t.Explorers)
	}

	return t, nil
}

func readLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
