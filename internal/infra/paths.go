// Package infra implements infrastructure concerns.
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the daemon.
type ExecMode string

const (
	// ExecModeUser keeps state under the invoking user's home directory
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps state under /var/lib (root required)
	ExecModeSystem ExecMode = "system"
)

const appName = "timebank"

// Paths holds file locations based on execution mode.
type Paths struct {
	Mode    ExecMode
	DataDir string // Encrypted store and key
	LogPath string // Daemon log file
	PIDPath string // Written by the daemon on start
	IsRoot  bool
}

// DetectPaths determines file locations based on effective UID.
func DetectPaths() *Paths {
	if os.Geteuid() == 0 && os.Getenv("SUDO_USER") == "" {
		return PathsFor(ExecModeSystem, "/var/lib/"+appName)
	}
	return UserPaths()
}

// UserPaths returns user mode locations regardless of current euid.
// When running under sudo, uses SUDO_USER to get the invoking user's home directory.
func UserPaths() *Paths {
	return PathsFor(ExecModeUser, filepath.Join(GetRealUserHome(), "."+appName))
}

// PathsFor lays out all files under dataDir.
func PathsFor(mode ExecMode, dataDir string) *Paths {
	return &Paths{
		Mode:    mode,
		DataDir: dataDir,
		LogPath: filepath.Join(dataDir, appName+".log"),
		PIDPath: filepath.Join(dataDir, appName+".pid"),
		IsRoot:  os.Geteuid() == 0,
	}
}

// EnsureDataDir creates the data directory with owner-only permissions.
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir, 0700)
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
