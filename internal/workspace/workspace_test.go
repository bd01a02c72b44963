package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRequiresExistingDirectory(t *testing.T) {
	dir := t.TempDir()

	ws, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, ws.Root)
	assert.Equal(t, filepath.Join(dir, "state"), ws.StateDir)
	assert.Equal(t, filepath.Join(dir, "secrets"), ws.SecretsDir)
	assert.Equal(t, filepath.Join(dir, "config.yml"), ws.ConfigPath)
	assert.Equal(t, filepath.Join(dir, "state", "planloom.sqlite"), ws.PlanDBPath)
	assert.Equal(t, filepath.Join(dir, "state", "jobs.sqlite"), ws.JobsDBPath)

	_, err = Resolve(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = Resolve("")
	assert.Error(t, err)
}

func TestResolveRejectsFileAsRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Resolve(file)
	assert.Error(t, err)
}

func TestNewDoesNotRequireRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not-yet")

	ws, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, ws.Root)

	require.NoError(t, os.MkdirAll(ws.Root, 0o755))
	require.NoError(t, ws.EnsureDirs())
	for _, d := range []string{ws.StateDir, ws.SecretsDir} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	ws, err := Resolve(dir)
	require.NoError(t, err)

	got, err := ws.ResolvePath("notes/today.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes", "today.md"), got)

	got, err = ws.ResolvePath("/absolute/elsewhere")
	require.NoError(t, err)
	assert.Equal(t, "/absolute/elsewhere", got)

	got, err = ws.ResolvePath("  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/plans")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "plans"), got)

	_, err = expandHome("~other/plans")
	assert.Error(t, err)
}
