package object

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), ".skonfig-object")
}

func TestCreateWritesObjectDirectory(t *testing.T) {
	s := newTestStore(t)
	obj, created, added, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, []string{"__sun/"}, "/init", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, added)
	assert.Equal(t, StateUndef, obj.State)

	_, err = os.Stat(filepath.Join(obj.Path, ".skonfig-object"))
	assert.NoError(t, err, "marker file must exist")

	b, err := os.ReadFile(filepath.Join(obj.Path, "parameter", "name"))
	require.NoError(t, err)
	assert.Equal(t, "Earth", string(b))
}

func TestReconcileSameParamsMerges(t *testing.T) {
	s := newTestStore(t)
	_, _, _, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, []string{"__sun/"}, "/init", false)
	require.NoError(t, err)

	obj, created, added, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, []string{"__moon/Luna"}, "/other-manifest", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"__moon/Luna"}, added)
	assert.ElementsMatch(t, []string{"__sun/", "__moon/Luna"}, obj.ExplicitRequires)
}

func TestReconcileConflictingParamsFailsWithoutOverride(t *testing.T) {
	s := newTestStore(t)
	_, _, _, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	_, _, _, err = s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Dirt"}, nil, nil, nil, "/init2", false)
	require.Error(t, err)
}

func TestReconcileConflictingParamsOverrideWins(t *testing.T) {
	s := newTestStore(t)
	_, _, _, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	obj, created, _, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Dirt"}, nil, nil, nil, "/init2", true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Dirt", obj.Params["name"])
}

func TestIllegalObjectIDContainingMarker(t *testing.T) {
	s := newTestStore(t)
	_, _, _, err := s.CreateOrReconcile("__planet", "foo.skonfig-object.bar",
		map[string]string{"name": "x"}, nil, nil, nil, "/init", false)
	require.Error(t, err)
}

func TestSetStateEnforcesLegalTransitions(t *testing.T) {
	s := newTestStore(t)
	obj, _, _, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	require.NoError(t, s.SetState(obj.Name(), StatePrepared))
	assert.Equal(t, StatePrepared, obj.State)
	assert.True(t, obj.Changed)

	require.NoError(t, s.SetState(obj.Name(), StateDone))
	assert.Equal(t, StateDone, obj.State)
}

func TestSetStateIllegalTransitionPanics(t *testing.T) {
	s := newTestStore(t)
	obj, _, _, err := s.CreateOrReconcile("__planet", "Earth",
		map[string]string{"name": "Earth"}, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = s.SetState(obj.Name(), StateDone) // skipping PREPARED
	})
}

func TestAutorequireRecordedOnParent(t *testing.T) {
	s := newTestStore(t)
	parent, _, _, err := s.CreateOrReconcile("__saturn", "",
		nil, nil, nil, nil, "/init", false)
	require.NoError(t, err)
	_, _, _, err = s.CreateOrReconcile("__moon", "Prometheus",
		map[string]string{"name": "Prometheus"}, nil, nil, nil, "/saturn-manifest", false)
	require.NoError(t, err)

	require.NoError(t, s.AddAutorequire(parent.Name(), "__moon/Prometheus"))
	assert.Equal(t, []string{"__moon/Prometheus"}, parent.Autorequire)
}

func TestResolveRequirementGlobAndUnknown(t *testing.T) {
	s := newTestStore(t)
	_, _, _, err := s.CreateOrReconcile("__moon", "Prometheus", nil, nil, nil, nil, "/init", false)
	require.NoError(t, err)
	_, _, _, err = s.CreateOrReconcile("__moon", "Pandora", nil, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	matches, err := s.ResolveRequirement("__moon/*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"__moon/Prometheus", "__moon/Pandora"}, matches)

	_, err = s.ResolveRequirement("__mon/Prometheus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "__moon/Prometheus")
}

func TestUnfinishedReflectsState(t *testing.T) {
	s := newTestStore(t)
	obj, _, _, err := s.CreateOrReconcile("__moon", "Prometheus", nil, nil, nil, nil, "/init", false)
	require.NoError(t, err)

	unfinished, err := s.Unfinished([]string{"__moon/Prometheus"})
	require.NoError(t, err)
	assert.True(t, unfinished)

	require.NoError(t, s.SetState(obj.Name(), StatePrepared))
	require.NoError(t, s.SetState(obj.Name(), StateDone))

	unfinished, err = s.Unfinished([]string{"__moon/Prometheus"})
	require.NoError(t, err)
	assert.False(t, unfinished)
}
