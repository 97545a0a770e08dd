package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

// ErrUnsupportedPlatform is returned by observers on platforms without a backend.
var ErrUnsupportedPlatform = errors.New("foreground observation not supported on this platform")

const defaultCommandTimeout = 500 * time.Millisecond

// macOS frontmost application name.
const frontmostScript = `tell application "System Events" to get name of first application process whose frontmost is true`

var (
	// IODisplayWrangler power states: 4 is fully on.
	displayPowerRe = regexp.MustCompile(`"CurrentPowerState"\s*=\s*(\d+)`)
	// Set in the console user's session dictionary while the lock screen is up.
	screenLockedRe = regexp.MustCompile(`"CGSSessionScreenIsLocked"\s*=\s*Yes`)
)

// DesktopObserver implements domain.ForegroundObserver by shelling out to
// platform tools.
//
//	linux:  xdotool for the focused window PID, loginctl for the lock state
//	darwin: osascript for the frontmost app, ioreg for lock state and display power
type DesktopObserver struct {
	runner         CommandRunner
	processManager domain.ProcessManager
	goos           string
	sessionID      string
	commandTimeout time.Duration
}

// NewDesktopObserver creates an observer for the current platform.
func NewDesktopObserver(pm domain.ProcessManager) *DesktopObserver {
	return NewDesktopObserverWithDeps(&RealCommandRunner{}, pm, runtime.GOOS)
}

// NewDesktopObserverWithDeps creates an observer with injected dependencies (for testing).
func NewDesktopObserverWithDeps(runner CommandRunner, pm domain.ProcessManager, goos string) *DesktopObserver {
	session := os.Getenv("XDG_SESSION_ID")
	if session == "" {
		session = "auto"
	}
	return &DesktopObserver{
		runner:         runner,
		processManager: pm,
		goos:           goos,
		sessionID:      session,
		commandTimeout: defaultCommandTimeout,
	}
}

// CurrentForegroundApp returns the process name of the focused application.
func (o *DesktopObserver) CurrentForegroundApp(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.commandTimeout)
	defer cancel()

	switch o.goos {
	case "linux":
		out, err := o.runner.Run(ctx, "xdotool", "getactivewindow", "getwindowpid")
		if err != nil {
			return "", fmt.Errorf("xdotool: %w", err)
		}
		raw := strings.TrimSpace(string(out))
		if raw == "" {
			return "", nil
		}
		pid, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Errorf("parse window pid %q: %w", raw, err)
		}
		return o.processManager.NameOf(pid)

	case "darwin":
		out, err := o.runner.Run(ctx, "osascript", "-e", frontmostScript)
		if err != nil {
			return "", fmt.Errorf("osascript: %w", err)
		}
		return strings.TrimSpace(string(out)), nil

	default:
		return "", ErrUnsupportedPlatform
	}
}

// IsDisplayInteractive reports whether the display is on and the session unlocked.
func (o *DesktopObserver) IsDisplayInteractive(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.commandTimeout)
	defer cancel()

	switch o.goos {
	case "linux":
		out, err := o.runner.Run(ctx, "loginctl", "show-session", o.sessionID, "-p", "LockedHint", "--value")
		if err != nil {
			return false, fmt.Errorf("loginctl: %w", err)
		}
		return strings.TrimSpace(string(out)) != "yes", nil

	case "darwin":
		root, err := o.runner.Run(ctx, "ioreg", "-n", "Root", "-d", "1")
		if err != nil {
			return false, fmt.Errorf("ioreg root: %w", err)
		}
		if screenLockedRe.Match(root) {
			return false, nil
		}

		out, err := o.runner.Run(ctx, "ioreg", "-n", "IODisplayWrangler", "-r", "-d", "1")
		if err != nil {
			return false, fmt.Errorf("ioreg: %w", err)
		}
		m := displayPowerRe.FindSubmatch(out)
		if m == nil {
			// No wrangler on Apple Silicon; the lock state above decides.
			return true, nil
		}
		state, _ := strconv.Atoi(string(m[1]))
		return state >= 4, nil

	default:
		return false, ErrUnsupportedPlatform
	}
}

var _ domain.ForegroundObserver = (*DesktopObserver)(nil)
