package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// StartDaemon spawns the monitor daemon as a detached copy of this binary.
func StartDaemon(configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable, configPath)
}

// StartDaemonWithPath spawns the daemon from a specific binary.
// Hidden "daemon" command: timebank daemon --config <path>
func StartDaemonWithPath(binaryPath, configPath string) error {
	cmd := exec.Command(binaryPath, DaemonArgs(configPath)...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd.Start()
}

// DaemonArgs returns the arguments used to launch the daemon.
func DaemonArgs(configPath string) []string {
	args := []string{"daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}
