package infra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// LaunchAgent plist template (macOS, runs as user)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>

    <key>ProcessType</key>
    <string>Interactive</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>
`

// systemd user unit template (Linux)
const systemdUnitTemplate = `[Unit]
Description=Screen-time bank monitor
After=graphical-session.target
PartOf=graphical-session.target

[Service]
Type=simple
ExecStart={{range $i, $a := .Args}}{{if $i}} {{end}}{{$a}}{{end}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=graphical-session.target
`

const autostartLabel = "com.timebank.daemon"

type unitConfig struct {
	Label   string
	Args    []string
	LogPath string
}

// AutostartManager installs the daemon as a per-user login service:
// a LaunchAgent on macOS, a systemd user unit on Linux.
type AutostartManager struct {
	goos     string
	unitPath string
	logPath  string
	runner   CommandRunner
}

// NewAutostartManager creates a manager for the current platform.
func NewAutostartManager(paths *Paths) (*AutostartManager, error) {
	return NewAutostartManagerWithDeps(runtime.GOOS, GetRealUserHome(), paths.LogPath, &RealCommandRunner{})
}

// NewAutostartManagerWithDeps creates a manager with injected dependencies (for testing).
func NewAutostartManagerWithDeps(goos, home, logPath string, runner CommandRunner) (*AutostartManager, error) {
	var unitPath string
	switch goos {
	case "darwin":
		unitPath = filepath.Join(home, "Library", "LaunchAgents", autostartLabel+".plist")
	case "linux":
		unitPath = filepath.Join(home, ".config", "systemd", "user", appName+".service")
	default:
		return nil, ErrUnsupportedPlatform
	}
	return &AutostartManager{
		goos:     goos,
		unitPath: unitPath,
		logPath:  logPath,
		runner:   runner,
	}, nil
}

// Path returns the unit file path.
func (m *AutostartManager) Path() string {
	return m.unitPath
}

// generateContent renders the unit for the given daemon command line.
func (m *AutostartManager) generateContent(args []string) ([]byte, error) {
	tmplStr := systemdUnitTemplate
	if m.goos == "darwin" {
		tmplStr = launchAgentTemplate
	}

	tmpl, err := template.New("unit").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, unitConfig{
		Label:   autostartLabel,
		Args:    args,
		LogPath: m.logPath,
	}); err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit and loads it. args is the full daemon command line.
func (m *AutostartManager) Install(ctx context.Context, args []string) error {
	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0755); err != nil {
		return err
	}

	content, err := m.generateContent(args)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.unitPath, content, 0644); err != nil {
		return err
	}

	return m.load(ctx)
}

// Uninstall unloads and removes the unit.
func (m *AutostartManager) Uninstall(ctx context.Context) error {
	// Ignore errors if not loaded
	_ = m.unload(ctx)

	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if m.goos == "linux" {
		_, _ = m.runner.Run(ctx, "systemctl", "--user", "daemon-reload")
	}
	return nil
}

// IsInstalled checks if the unit file exists.
func (m *AutostartManager) IsInstalled() bool {
	_, err := os.Stat(m.unitPath)
	return err == nil
}

// NeedsUpdate checks if the unit exists but differs from the expected content.
func (m *AutostartManager) NeedsUpdate(args []string) bool {
	if !m.IsInstalled() {
		return false
	}
	current, err := os.ReadFile(m.unitPath)
	if err != nil {
		return true
	}
	expected, err := m.generateContent(args)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

func (m *AutostartManager) load(ctx context.Context) error {
	if m.goos == "darwin" {
		_, err := m.runner.Run(ctx, "launchctl", "load", m.unitPath)
		return err
	}
	if _, err := m.runner.Run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	_, err := m.runner.Run(ctx, "systemctl", "--user", "enable", "--now", appName+".service")
	return err
}

func (m *AutostartManager) unload(ctx context.Context) error {
	if m.goos == "darwin" {
		_, err := m.runner.Run(ctx, "launchctl", "unload", m.unitPath)
		return err
	}
	_, err := m.runner.Run(ctx, "systemctl", "--user", "disable", "--now", appName+".service")
	return err
}
