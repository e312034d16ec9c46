package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsZeroValue(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Settings{}, s)
}

func TestLoadDecodesHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs = 4
remote_exec = "ssh"
conf_dir = ["/etc/skonfig/conf"]
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Jobs)
	assert.Equal(t, "ssh", s.RemoteExec)
	assert.Equal(t, []string{"/etc/skonfig/conf"}, s.ConfDir)
}

func TestMergeFlagsWinOverFile(t *testing.T) {
	file := Settings{Jobs: 2, RemoteExec: "ssh"}
	cli := Settings{Jobs: 8}

	merged := Merge(file, cli)
	assert.Equal(t, 8, merged.Jobs, "cli flag must win over file value")
	assert.Equal(t, "ssh", merged.RemoteExec, "file value used when cli leaves it unset")
}

func TestMergeFallsBackToDefaults(t *testing.T) {
	merged := Merge(Settings{}, Settings{})
	assert.Equal(t, Default(), merged)
}
