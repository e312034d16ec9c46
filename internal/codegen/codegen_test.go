package codegen

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

func writeExec(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func newObj(t *testing.T, store *object.Store, typeName, id string) *object.Object {
	t.Helper()
	obj, _, _, err := store.CreateOrReconcile(typeName, id, nil, nil, nil, nil, "/init", false)
	require.NoError(t, err)
	return obj
}

func TestProcessSingleFileGencodeLocalMarksChangedAndRuns(t *testing.T) {
	typeDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "ran")
	writeExec(t, filepath.Join(typeDir, "gencode-local"), "#!/bin/sh\necho \"touch "+marker+"\"\n")
	ty := &typeset.Type{Name: "__file_noop", Path: typeDir, HasGencodeLocal: true}

	store := object.NewStore(t.TempDir(), ".skonfig-object")
	obj := newObj(t, store, "__file_noop", "x")

	r := &Runner{Local: transport.NewLocal()}
	require.NoError(t, r.Process(context.Background(), store, ty, obj))

	_, err := os.Stat(marker)
	assert.NoError(t, err, "non-empty gencode-local artifact must be executed")

	b, err := os.ReadFile(filepath.Join(obj.Path, "code-local"))
	require.NoError(t, err)
	assert.Equal(t, "touch "+marker+"\n", string(b))
	assert.True(t, obj.CodeChanged)
}

func TestProcessEmptyGencodeDoesNotMarkChanged(t *testing.T) {
	typeDir := t.TempDir()
	writeExec(t, filepath.Join(typeDir, "gencode-local"), "#!/bin/sh\ntrue\n")
	ty := &typeset.Type{Name: "__noop", Path: typeDir, HasGencodeLocal: true}

	store := object.NewStore(t.TempDir(), ".skonfig-object")
	obj := newObj(t, store, "__noop", "x")

	r := &Runner{Local: transport.NewLocal()}
	require.NoError(t, r.Process(context.Background(), store, ty, obj))
	assert.False(t, obj.CodeChanged)
}

func TestProcessDryRunSkipsArtifactExecution(t *testing.T) {
	typeDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "should-not-exist")
	writeExec(t, filepath.Join(typeDir, "gencode-local"), "#!/bin/sh\necho \"touch "+marker+"\"\n")
	ty := &typeset.Type{Name: "__file_noop", Path: typeDir, HasGencodeLocal: true}

	store := object.NewStore(t.TempDir(), ".skonfig-object")
	obj := newObj(t, store, "__file_noop", "x")

	r := &Runner{Local: transport.NewLocal(), DryRun: true}
	require.NoError(t, r.Process(context.Background(), store, ty, obj))

	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "dry run must not execute the artifact")
	assert.True(t, obj.CodeChanged, "gencode output itself still counts as changed under dry-run")
}

func TestProcessDirectoryGencodeConcatenatesSortedEntries(t *testing.T) {
	typeDir := t.TempDir()
	writeExec(t, filepath.Join(typeDir, "gencode-local", "b"), "#!/bin/sh\necho second\n")
	writeExec(t, filepath.Join(typeDir, "gencode-local", "a"), "#!/bin/sh\necho first\n")
	ty := &typeset.Type{Name: "__multi", Path: typeDir, HasGencodeLocal: true}

	store := object.NewStore(t.TempDir(), ".skonfig-object")
	obj := newObj(t, store, "__multi", "x")

	r := &Runner{Local: transport.NewLocal(), DryRun: true}
	require.NoError(t, r.Process(context.Background(), store, ty, obj))

	b, err := os.ReadFile(filepath.Join(obj.Path, "code-local"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(b))
}
