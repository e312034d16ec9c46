package explorer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/transport"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// fakeRemote is an in-process transport.Remote stand-in: RunScript maps
// the remote script path back to the local file recorded by Transfer and
// returns that file's contents as stdout, so tests can assert exact output
// without a real shell.
type fakeRemote struct {
	mkdirs      []string
	transfers   [][2]string
	runScripts  []string
}

func (f *fakeRemote) Run(ctx context.Context, argv []string, env map[string]string, opts transport.RunOpts) (transport.Result, error) {
	return transport.Result{}, nil
}

func (f *fakeRemote) RunScript(ctx context.Context, path string, env map[string]string, opts transport.RunOpts) (transport.Result, error) {
	f.runScripts = append(f.runScripts, path)
	for _, tr := range f.transfers {
		if filepath.Dir(path) == tr[1] {
			path = filepath.Join(tr[0], filepath.Base(path))
			break
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return transport.Result{}, err
	}
	return transport.Result{Stdout: b}, nil
}

func (f *fakeRemote) Mkdir(ctx context.Context, path string) error {
	f.mkdirs = append(f.mkdirs, path)
	return nil
}
func (f *fakeRemote) Rmdir(ctx context.Context, path string) error  { return nil }
func (f *fakeRemote) Rmfile(ctx context.Context, path string) error { return nil }
func (f *fakeRemote) Host() string                                 { return "fake" }
func (f *fakeRemote) Transfer(ctx context.Context, src, dst string) error {
	f.transfers = append(f.transfers, [2]string{src, dst})
	return nil
}
func (f *fakeRemote) Close(ctx context.Context) error { return nil }

func writeExplorer(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o755))
}

func TestRunGlobalTransfersOnceAndCapturesOutput(t *testing.T) {
	confDir := t.TempDir()
	writeExplorer(t, filepath.Join(confDir, "explorer"), "os", "linux\n")
	writeExplorer(t, filepath.Join(confDir, "explorer"), ".hidden", "nope\n")

	fr := &fakeRemote{}
	s := NewSet(fr, confDir, "/run/skonfig", FixedEnv{TargetHost: "h"})

	out, err := s.RunGlobal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "linux", out["os"])
	_, hidden := out[".hidden"]
	assert.False(t, hidden)
	assert.Len(t, fr.transfers, 1)
}

func TestRunForObjectTransfersTypeExplorersOnce(t *testing.T) {
	typeDir := t.TempDir()
	writeExplorer(t, filepath.Join(typeDir, "explorer"), "gravity", "9.8\n")
	ty := &typeset.Type{Name: "__planet", Path: typeDir, Explorers: []string{"gravity"}}

	fr := &fakeRemote{}
	s := NewSet(fr, t.TempDir(), "/run/skonfig", FixedEnv{TargetHost: "h"})

	store := object.NewStore(t.TempDir(), ".skonfig-object")
	obj1, _, _, err := store.CreateOrReconcile("__planet", "Earth", map[string]string{"name": "Earth"}, nil, nil, nil, "/init", false)
	require.NoError(t, err)
	obj2, _, _, err := store.CreateOrReconcile("__planet", "Mars", map[string]string{"name": "Mars"}, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	require.NoError(t, s.RunForObject(context.Background(), ty, obj1))
	require.NoError(t, s.RunForObject(context.Background(), ty, obj2))

	assert.Len(t, fr.transfers, 1, "type explorers must transfer at most once per run")

	b, err := os.ReadFile(filepath.Join(obj1.Path, "explorer", "gravity"))
	require.NoError(t, err)
	assert.Equal(t, "9.8\n", string(b))
}
