package object

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/skonfig/internal/typeset"
)

func newTestRegistry(t *testing.T, typeNames ...string) *typeset.Registry {
	t.Helper()
	confDir := t.TempDir()
	for _, name := range typeNames {
		require.NoError(t, os.MkdirAll(filepath.Join(confDir, name), 0o755))
	}
	reg, err := typeset.NewRegistry([]string{confDir}, t.TempDir())
	require.NoError(t, err)
	return reg
}

func TestLoadStoreRehydratesFromDisk(t *testing.T) {
	workDir := t.TempDir()
	reg := newTestRegistry(t, "__planet")

	seed := NewStore(workDir, ".skonfig-object")
	_, _, _, err := seed.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, []string{"__sun/"}, "/init", false)
	require.NoError(t, err)
	require.NoError(t, seed.SetState("__planet/Earth", StatePrepared))

	loaded, err := LoadStore(workDir, ".skonfig-object", reg)
	require.NoError(t, err)

	obj, ok := loaded.Get("__planet/Earth")
	require.True(t, ok)
	assert.Equal(t, StatePrepared, obj.State)
	assert.Equal(t, "Earth", obj.Params["name"])
	assert.Equal(t, []string{"__sun/"}, obj.ExplicitRequires)
}

func TestReloadAddsObjectsCreatedOutOfProcessWithoutDisturbingKnownOnes(t *testing.T) {
	workDir := t.TempDir()
	reg := newTestRegistry(t, "__planet")

	s := NewStore(workDir, ".skonfig-object")
	_, _, _, err := s.CreateOrReconcile("__planet", "Earth", nil, nil, nil, nil, "/init", false)
	require.NoError(t, err)
	require.NoError(t, s.SetState("__planet/Earth", StatePrepared))

	// Simulate a sibling emulator process creating a new object directly
	// on disk, the way internal/cli's reentrant emulator dispatch does.
	other := NewStore(workDir, ".skonfig-object")
	_, _, _, err = other.CreateOrReconcile("__planet", "Mars", nil, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	require.NoError(t, s.Reload(reg))

	earth, ok := s.Get("__planet/Earth")
	require.True(t, ok)
	assert.Equal(t, StatePrepared, earth.State, "Reload must not clobber in-memory state already tracked")

	mars, ok := s.Get("__planet/Mars")
	require.True(t, ok, "Reload must pick up the object the sibling process created on disk")
	assert.Equal(t, StateUndef, mars.State)
}

func TestReloadOnEmptyWorkDirIsANoop(t *testing.T) {
	reg := newTestRegistry(t, "__planet")
	s := NewStore(t.TempDir(), ".skonfig-object")
	require.NoError(t, s.Reload(reg))
	assert.Empty(t, s.Names())
}
