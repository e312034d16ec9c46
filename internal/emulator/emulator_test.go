package emulator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/typeset"
)

func writeTypeFiles(t *testing.T, confDir, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(confDir, name)
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func newDeps(t *testing.T, confDir string) Deps {
	t.Helper()
	reg, err := typeset.NewRegistry([]string{confDir}, filepath.Join(t.TempDir(), "overlay"))
	require.NoError(t, err)
	store := object.NewStore(t.TempDir(), ".skonfig-object")
	return Deps{Registry: reg, Schemas: typeset.NewSchemaCache(), Store: store}
}

func TestEmulatorCreatesObjectWithParams(t *testing.T) {
	confDir := t.TempDir()
	writeTypeFiles(t, confDir, "__planet", map[string]string{"parameter/required": "name\n"})
	d := newDeps(t, confDir)

	name, err := Run(context.Background(), d, Request{
		TypeName: "__planet",
		Args:     []string{"earth", "--name", "Earth"},
		Env:      map[string]string{},
	})
	require.NoError(t, err)
	assert.Equal(t, "__planet/earth", name)

	obj, ok := d.Store.Get("__planet/earth")
	require.True(t, ok)
	assert.Equal(t, "Earth", obj.Params["name"])
}

func TestEmulatorMissingRequiredParameterFails(t *testing.T) {
	confDir := t.TempDir()
	writeTypeFiles(t, confDir, "__planet", map[string]string{"parameter/required": "name\n"})
	d := newDeps(t, confDir)

	_, err := Run(context.Background(), d, Request{TypeName: "__planet", Args: []string{"earth"}, Env: map[string]string{}})
	require.Error(t, err)
}

func TestEmulatorSingletonObjectHasEmptyID(t *testing.T) {
	confDir := t.TempDir()
	writeTypeFiles(t, confDir, "__test_singleton", map[string]string{"singleton": ""})
	d := newDeps(t, confDir)

	name, err := Run(context.Background(), d, Request{TypeName: "__test_singleton", Args: nil, Env: map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, "__test_singleton/", name)
}

func TestEmulatorRequireEnvVarBecomesExplicitRequirement(t *testing.T) {
	confDir := t.TempDir()
	writeTypeFiles(t, confDir, "__planet", nil)
	writeTypeFiles(t, confDir, "__moon", nil)
	d := newDeps(t, confDir)

	_, err := Run(context.Background(), d, Request{TypeName: "__planet", Args: []string{"earth"}, Env: map[string]string{}})
	require.NoError(t, err)

	_, err = Run(context.Background(), d, Request{
		TypeName: "__moon", Args: []string{"Luna"},
		Env: map[string]string{"require": "__planet/earth"},
	})
	require.NoError(t, err)

	obj, ok := d.Store.Get("__moon/Luna")
	require.True(t, ok)
	assert.Equal(t, []string{"__planet/earth"}, obj.ExplicitRequires)
}

func TestEmulatorOverrideGate(t *testing.T) {
	confDir := t.TempDir()
	writeTypeFiles(t, confDir, "__cdist_test_type", map[string]string{"parameter/optional": "param1\n"})
	d := newDeps(t, confDir)

	_, err := Run(context.Background(), d, Request{TypeName: "__cdist_test_type", Args: []string{"test"}, Env: map[string]string{}})
	require.NoError(t, err)

	_, err = Run(context.Background(), d, Request{
		TypeName: "__cdist_test_type", Args: []string{"test", "--param1", "foo"},
		Env: map[string]string{},
	})
	require.Error(t, err, "conflicting reconciliation without CDIST_OVERRIDE must fail")

	_, err = Run(context.Background(), d, Request{
		TypeName: "__cdist_test_type", Args: []string{"test", "--param1", "foo"},
		Env: map[string]string{"CDIST_OVERRIDE": "true"},
	})
	require.NoError(t, err)

	obj, ok := d.Store.Get("__cdist_test_type/test")
	require.True(t, ok)
	assert.Equal(t, "foo", obj.Params["param1"])
}

func TestEmulatorAutorequireInsideTypeManifest(t *testing.T) {
	confDir := t.TempDir()
	writeTypeFiles(t, confDir, "__saturn", map[string]string{"singleton": ""})
	writeTypeFiles(t, confDir, "__planet", nil)
	writeTypeFiles(t, confDir, "__moon", nil)
	d := newDeps(t, confDir)

	_, err := Run(context.Background(), d, Request{TypeName: "__saturn", Args: nil, Env: map[string]string{}})
	require.NoError(t, err)

	parentEnv := map[string]string{"__object_name": "__saturn/"}
	_, err = Run(context.Background(), d, Request{TypeName: "__planet", Args: []string{"Saturn"}, Env: parentEnv})
	require.NoError(t, err)
	_, err = Run(context.Background(), d, Request{TypeName: "__moon", Args: []string{"Prometheus"}, Env: parentEnv})
	require.NoError(t, err)

	parent, ok := d.Store.Get("__saturn/")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"__planet/Saturn", "__moon/Prometheus"}, parent.Autorequire)
}

func TestEmulatorOrderDependencyChainsRequirements(t *testing.T) {
	confDir := t.TempDir()
	writeTypeFiles(t, confDir, "__planet", nil)
	writeTypeFiles(t, confDir, "__file_noop", nil)
	d := newDeps(t, confDir)

	depFile := filepath.Join(t.TempDir(), ".order-dependency")
	env := map[string]string{"CDIST_ORDER_DEPENDENCY": "on", "__cdist_order_dep_file": depFile}

	_, err := Run(context.Background(), d, Request{TypeName: "__planet", Args: []string{"earth"}, Env: env})
	require.NoError(t, err)
	_, err = Run(context.Background(), d, Request{TypeName: "__planet", Args: []string{"mars"}, Env: env})
	require.NoError(t, err)
	_, err = Run(context.Background(), d, Request{TypeName: "__file_noop", Args: []string{"/tmp/skonfigtest"}, Env: env})
	require.NoError(t, err)

	earth, _ := d.Store.Get("__planet/earth")
	mars, _ := d.Store.Get("__planet/mars")
	noop, _ := d.Store.Get("__file_noop//tmp/skonfigtest")

	assert.Empty(t, earth.ExplicitRequires)
	assert.Equal(t, []string{"__planet/earth"}, mars.ExplicitRequires)
	assert.Equal(t, []string{"__planet/mars"}, noop.ExplicitRequires)
}
