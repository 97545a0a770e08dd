package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathsFor_LayoutUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	p := PathsFor(ExecModeUser, dir)

	assert.Equal(t, dir, p.DataDir)
	assert.Equal(t, filepath.Join(dir, "timebank.log"), p.LogPath)
	assert.Equal(t, filepath.Join(dir, "timebank.pid"), p.PIDPath)
	assert.Equal(t, os.Geteuid() == 0, p.IsRoot)
}

func TestUserPaths_UsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SUDO_USER", "")

	p := UserPaths()
	assert.Equal(t, ExecModeUser, p.Mode)
	assert.Equal(t, filepath.Join(home, ".timebank"), p.DataDir)
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	p := PathsFor(ExecModeUser, dir)

	require.NoError(t, p.EnsureDataDir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestExecMode_String(t *testing.T) {
	tests := []struct {
		mode ExecMode
		want string
	}{
		{ExecModeSystem, "system (root)"},
		{ExecModeUser, "user (non-root)"},
		{ExecMode("other"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mode.String())
	}
}
