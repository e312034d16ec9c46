// Package explorer transfers and executes the global and per-type
// discovery scripts of §4.4: global explorers run once per run and
// produce host-wide facts, type explorers are transferred to the target
// at most once per type and run once per object with that object's
// parameters exposed as environment variables.
package explorer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/transport"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// FixedEnv is the environment every explorer invocation receives,
// regardless of kind (spec.md §4.4): target host aliases, the global
// explorer output path, the files path, log-level markers, and a
// C locale.
type FixedEnv struct {
	TargetHost     string
	TargetHostname string
	TargetFQDN     string
	GlobalOutPath  string // remote path holding global explorer output
	FilesPath      string // remote files/ base path
	LogLevel       string
}

func (e FixedEnv) toMap() map[string]string {
	return map[string]string{
		"__target_host":     e.TargetHost,
		"__target_hostname": e.TargetHostname,
		"__target_fqdn":     e.TargetFQDN,
		"__global":          e.GlobalOutPath,
		"__files":           e.FilesPath,
		"__cdist_log_level": e.LogLevel,
		"LANG":              "C",
		"LC_ALL":            "C",
	}
}

// Set runs explorers against a single remote peer.
type Set struct {
	Remote       transport.Remote
	LocalConfDir string // local conf overlay directory containing explorer/
	RemoteBase   string // remote path explorers are transferred under
	Env          FixedEnv

	mu        sync.Mutex
	typesSent map[string]bool // per-run transfer-once memoization, keyed by type hash
}

// NewSet constructs an explorer Set bound to one remote peer.
func NewSet(remote transport.Remote, localConfDir, remoteBase string, env FixedEnv) *Set {
	return &Set{
		Remote:       remote,
		LocalConfDir: localConfDir,
		RemoteBase:   remoteBase,
		Env:          env,
		typesSent:    make(map[string]bool),
	}
}

// RunGlobal transfers the global explorer/ directory (once) and executes
// every non-hidden script in it, returning a map of explorer name to its
// captured stdout.
func (s *Set) RunGlobal(ctx context.Context) (map[string]string, error) {
	localDir := filepath.Join(s.LocalConfDir, "explorer")
	names, err := listVisibleScripts(localDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	remoteDir := filepath.Join(s.RemoteBase, "global_explorer")
	if err := s.Remote.Mkdir(ctx, remoteDir); err != nil {
		return nil, err
	}
	if err := s.Remote.Transfer(ctx, localDir, remoteDir); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		res, err := s.Remote.RunScript(ctx, filepath.Join(remoteDir, name), s.Env.toMap(), transport.RunOpts{ReturnOutput: true})
		if err != nil {
			return nil, &engine.EntityError{EntityType: "explorer", EntityName: "global/" + name, Err: err}
		}
		out[name] = strings.TrimRight(string(res.Stdout), "\n")
	}
	return out, nil
}

// ensureTypeTransferred transfers t's explorer/ directory to its
// type-scoped remote path exactly once per run, memoized by a
// sha256-derived key the way the teacher's SessionPool keys pooled
// sessions by a hash of their descriptor (core/decorator/session_pool.go).
func (s *Set) ensureTypeTransferred(ctx context.Context, t *typeset.Type) (remoteDir string, err error) {
	key := typeKey(t)
	remoteDir = filepath.Join(s.RemoteBase, "type_explorer", key)

	s.mu.Lock()
	sent := s.typesSent[key]
	s.mu.Unlock()
	if sent {
		return remoteDir, nil
	}

	localDir := filepath.Join(t.Path, "explorer")
	if len(t.Explorers) > 0 {
		if err := s.Remote.Mkdir(ctx, remoteDir); err != nil {
			return "", err
		}
		if err := s.Remote.Transfer(ctx, localDir, remoteDir); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	s.typesSent[key] = true
	s.mu.Unlock()
	return remoteDir, nil
}

// RunForObject transfers t's explorers if not already sent this run, then
// executes each against obj's own environment, storing captured stdout
// under obj's explorer/ directory.
func (s *Set) RunForObject(ctx context.Context, t *typeset.Type, obj *object.Object) error {
	if len(t.Explorers) == 0 {
		return nil
	}
	remoteDir, err := s.ensureTypeTransferred(ctx, t)
	if err != nil {
		return err
	}

	objEnv := s.Env.toMap()
	for k, v := range obj.Params {
		objEnv["__object_"+k] = v
	}
	objEnv["__object"] = obj.Path
	objEnv["__object_id"] = obj.ID
	objEnv["__object_name"] = obj.Name()
	objEnv["__type"] = obj.TypeName

	outDir := filepath.Join(obj.Path, "explorer")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for _, name := range t.Explorers {
		res, err := s.Remote.RunScript(ctx, filepath.Join(remoteDir, name), objEnv, transport.RunOpts{ReturnOutput: true})
		if err != nil {
			return &engine.EntityError{EntityType: "explorer", EntityName: obj.Name() + "/" + name, Err: err}
		}
		if err := os.WriteFile(filepath.Join(outDir, name), res.Stdout, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func typeKey(t *typeset.Type) string {
	h := sha256.Sum256([]byte(t.Name))
	return hex.EncodeToString(h[:8])
}

// listVisibleScripts lists dir's entries, filtering hidden (leading dot)
// and backup (trailing tilde) names (spec.md §4.4), sorted for
// deterministic execution order.
func listVisibleScripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || strings.HasSuffix(e.Name(), "~") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
