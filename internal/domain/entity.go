// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies an application for balance accounting.
type Category string

const (
	// CategoryNone means no classification record exists for the app.
	// It is never stored, only returned by lookups.
	CategoryNone         Category = ""
	CategoryPositive     Category = "positive"
	CategoryNegative     Category = "negative"
	CategoryUnclassified Category = "unclassified"
)

// ParseCategory converts user input ("positive", "NEG", ...) to a storable Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "pos", "+":
		return CategoryPositive, nil
	case "negative", "neg", "-":
		return CategoryNegative, nil
	case "unclassified", "none", "":
		return CategoryUnclassified, nil
	}
	return CategoryNone, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// String returns the stored representation, "none" for CategoryNone.
func (c Category) String() string {
	if c == CategoryNone {
		return "none"
	}
	return string(c)
}

// Classification is a single app -> category record.
type Classification struct {
	AppID     string
	AppName   string
	Category  Category
	AddedAt   time.Time
	UpdatedAt time.Time
}

// DisplayName returns AppName, falling back to the app identifier.
func (c *Classification) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.AppName != "" {
		return c.AppName
	}
	return c.AppID
}

// Store keys for values shared with the presentation layer.
const (
	KeyBalance        = "current_balance"
	KeyExchangeRatio  = "exchange_ratio"
	KeyLastResetDate  = "last_reset_date"
	KeyLastClearDate  = "last_clear_date"
	KeyMonitorEnabled = "monitor_enabled"
)

// ResetMarkers are the persisted timestamps owned by the reset policy.
// Values are epoch milliseconds, 0 means "never".
type ResetMarkers struct {
	LastDailyResetAt  int64
	LastManualClearAt int64
}

// MonitorState is the explicit state of the usage monitor.
type MonitorState int

const (
	StateIdle MonitorState = iota
	StateScreenOff
	StateTracking
)

func (s MonitorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScreenOff:
		return "screen_off"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// MonitorSession is the in-memory state of one monitor loop lifetime.
// It is owned by a single goroutine and never persisted.
type MonitorSession struct {
	State        MonitorState
	LastApp      string
	LastSampleAt time.Time
	ScreenWasOff bool
	LastBlockAt  time.Time

	// Continuous negative-app session.
	ActiveNegativeApp    string
	NegativeDwellSeconds int64
	LastReminderAt       time.Time

	// Fractional credit of the current positive dwell, below one second.
	CreditCarry float64
}

// ResetNegativeTracking forgets the current negative-app session.
func (s *MonitorSession) ResetNegativeTracking() {
	s.ActiveNegativeApp = ""
	s.NegativeDwellSeconds = 0
	s.LastReminderAt = time.Time{}
}

// Daemon represents the running monitor daemon process.
type Daemon struct {
	PID        int
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry is the persisted daemon state (for status/stop commands).
type RegistryEntry struct {
	PID           int    `json:"pid"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
