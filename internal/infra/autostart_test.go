package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var daemonArgs = []string{"/usr/local/bin/timebank", "daemon", "--config", "/etc/timebank.yaml"}

func TestAutostartManager_LinuxInstall(t *testing.T) {
	home := t.TempDir()
	runner := newScriptedRunner()
	runner.On("systemctl --user daemon-reload", "", nil)
	runner.On("systemctl --user enable --now timebank.service", "", nil)

	m, err := NewAutostartManagerWithDeps("linux", home, "/tmp/timebank.log", runner)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "systemd", "user", "timebank.service"), m.Path())
	assert.False(t, m.IsInstalled())

	require.NoError(t, m.Install(context.Background(), daemonArgs))
	assert.True(t, m.IsInstalled())

	content, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "ExecStart=/usr/local/bin/timebank daemon --config /etc/timebank.yaml\n")
	assert.Equal(t, []string{
		"systemctl --user daemon-reload",
		"systemctl --user enable --now timebank.service",
	}, runner.calls)

	assert.False(t, m.NeedsUpdate(daemonArgs))
	assert.True(t, m.NeedsUpdate([]string{"/opt/timebank", "daemon"}))
}

func TestAutostartManager_DarwinInstall(t *testing.T) {
	home := t.TempDir()
	runner := newScriptedRunner()
	m, err := NewAutostartManagerWithDeps("darwin", home, "/tmp/timebank.log", runner)
	require.NoError(t, err)
	runner.On("launchctl load "+m.Path(), "", nil)

	require.NoError(t, m.Install(context.Background(), daemonArgs))

	content, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "<string>com.timebank.daemon</string>")
	assert.Contains(t, string(content), "<string>--config</string>")
	assert.Contains(t, string(content), "<string>/tmp/timebank.log</string>")
}

func TestAutostartManager_LoadFailure(t *testing.T) {
	runner := newScriptedRunner()
	m, err := NewAutostartManagerWithDeps("linux", t.TempDir(), "", runner)
	require.NoError(t, err)

	// systemctl unknown to the runner fails
	err = m.Install(context.Background(), daemonArgs)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, m.IsInstalled(), "unit stays written for a later retry")
}

func TestAutostartManager_Uninstall(t *testing.T) {
	runner := newScriptedRunner()
	runner.On("systemctl --user daemon-reload", "", nil)
	runner.On("systemctl --user enable --now timebank.service", "", nil)
	runner.On("systemctl --user disable --now timebank.service", "", nil)

	m, err := NewAutostartManagerWithDeps("linux", t.TempDir(), "", runner)
	require.NoError(t, err)
	require.NoError(t, m.Install(context.Background(), daemonArgs))

	require.NoError(t, m.Uninstall(context.Background()))
	assert.False(t, m.IsInstalled())

	// Uninstalling twice is fine.
	assert.NoError(t, m.Uninstall(context.Background()))
}

func TestAutostartManager_Unsupported(t *testing.T) {
	_, err := NewAutostartManagerWithDeps("windows", t.TempDir(), "", newScriptedRunner())
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}
