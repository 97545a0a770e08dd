package infra

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

const alertTitle = "Time Bank"

// NotifyFunc delivers a desktop notification.
type NotifyFunc func(title, message string) error

func beeepNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

func beeepAlert(title, message string) error {
	return beeep.Alert(title, message, "")
}

// DesktopAlerts implements domain.AlertSurface with desktop notifications.
// Calls return immediately; delivery happens on a goroutine.
type DesktopAlerts struct {
	notify NotifyFunc
	alert  NotifyFunc
	logger *zap.Logger

	mu     sync.RWMutex
	status string
	wg     sync.WaitGroup
}

// NewDesktopAlerts creates an alert surface backed by beeep.
func NewDesktopAlerts(logger *zap.Logger) *DesktopAlerts {
	return NewDesktopAlertsWithNotifier(beeepNotify, beeepAlert, logger)
}

// NewDesktopAlertsWithNotifier creates an alert surface with injected delivery (for testing).
func NewDesktopAlertsWithNotifier(notify, alert NotifyFunc, logger *zap.Logger) *DesktopAlerts {
	return &DesktopAlerts{
		notify: notify,
		alert:  alert,
		logger: logger,
	}
}

// TriggerBlock tells the user the app was blocked for lack of balance.
func (a *DesktopAlerts) TriggerBlock(appID, appName string) {
	name := appName
	if name == "" {
		name = appID
	}
	a.deliver(a.alert, fmt.Sprintf("%s is blocked: your time bank is empty. Earn time with productive apps.", name))
}

// ShowReminder tells the user how long the current negative app has been used.
func (a *DesktopAlerts) ShowReminder(dwellSeconds int64) {
	a.deliver(a.notify, fmt.Sprintf("You have been on this app for %s.", FormatDwell(dwellSeconds)))
}

// UpdateStatusText records the latest status line.
func (a *DesktopAlerts) UpdateStatusText(message string) {
	a.mu.Lock()
	a.status = message
	a.mu.Unlock()
	a.logger.Debug("status", zap.String("text", message))
}

// StatusText returns the latest status line.
func (a *DesktopAlerts) StatusText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Wait blocks until queued notifications are delivered.
func (a *DesktopAlerts) Wait() {
	a.wg.Wait()
}

func (a *DesktopAlerts) deliver(fn NotifyFunc, message string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(alertTitle, message); err != nil {
			a.logger.Debug("notification failed", zap.Error(err))
		}
	}()
}

// FormatDwell renders seconds below a minute, whole minutes otherwise.
func FormatDwell(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := seconds / 60
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

var _ domain.AlertSurface = (*DesktopAlerts)(nil)
