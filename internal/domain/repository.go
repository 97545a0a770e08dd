package domain

import (
	"context"
	"time"
)

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// NameOf returns the executable name of a running process.
	NameOf(pid int) (string, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// ForegroundObserver reports what the user is looking at. Polled, not pushed.
type ForegroundObserver interface {
	// CurrentForegroundApp returns the identifier of the focused app,
	// or "" when nothing is focused.
	CurrentForegroundApp(ctx context.Context) (string, error)

	// IsDisplayInteractive reports whether the display is on and unlocked.
	IsDisplayInteractive(ctx context.Context) (bool, error)
}

// ClassificationStore persists app classifications.
type ClassificationStore interface {
	// Get returns ErrClassificationNotFound when no record exists.
	Get(ctx context.Context, appID string) (*Classification, error)
	Upsert(ctx context.Context, c Classification) error
	Delete(ctx context.Context, appID string) error
	List(ctx context.Context) ([]Classification, error)
}

// ConfigStore is the persistent key-value store behind the ledger and reset markers.
// Writes are serialized by the implementation.
type ConfigStore interface {
	GetInt(ctx context.Context, key string, def int64) (int64, error)
	SetInt(ctx context.Context, key string, value int64) error

	// UpdateInt runs fn on the current value inside a single write transaction.
	// When fn returns ok=false nothing is written and (current, false) is returned.
	UpdateInt(ctx context.Context, key string, def int64, fn func(current int64) (next int64, ok bool)) (int64, bool, error)

	GetFloat(ctx context.Context, key string, def float64) (float64, error)
	SetFloat(ctx context.Context, key string, value float64) error

	GetBool(ctx context.Context, key string, def bool) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
}

// Ledger is the only way to mutate the balance.
type Ledger interface {
	// Credit adds amount seconds. No upper bound.
	Credit(ctx context.Context, amount int64) error

	// Debit subtracts amount seconds if the balance covers it.
	// Returns false (and no error) on insufficient funds.
	Debit(ctx context.Context, amount int64) (bool, error)

	// SetAbsolute overwrites the balance, clamping negatives to zero.
	SetAbsolute(ctx context.Context, value int64) error

	// Read returns the latest committed balance.
	Read(ctx context.Context) (int64, error)
}

// AlertSurface is the user-facing interception surface. All calls are fire-and-forget.
type AlertSurface interface {
	TriggerBlock(appID, appName string)
	ShowReminder(dwellSeconds int64)
	UpdateStatusText(message string)
}

// DaemonRegistry records the running daemon so CLI commands can find it.
type DaemonRegistry interface {
	// Register saves the daemon PID, replacing any previous entry.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// Current returns the registered daemon, nil when none.
	Current() (*RegistryEntry, error)

	// Clear removes the registration.
	Clear() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// Clock abstracts time for the monitor and the reset policy.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
