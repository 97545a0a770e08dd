// Package daemon implements the usage monitor loop and its supervisor.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/metrics"
	"github.com/eliteGoblin/focusd/timebank/internal/usecase"
)

// DailyResetter applies the once-per-day balance reset.
type DailyResetter interface {
	ApplyDaily(ctx context.Context) (bool, error)
}

// Accounting is the monitor's view of the accounting routine.
type Accounting interface {
	Transition(ctx context.Context, s *domain.MonitorSession, app string, now time.Time) (usecase.Outcome, error)
	Account(ctx context.Context, s *domain.MonitorSession, app string, elapsed int64, now time.Time) (usecase.Outcome, error)
}

// MonitorConfig holds monitor configuration.
type MonitorConfig struct {
	TickInterval time.Duration // How often to sample the foreground app
	SelfAppID    string        // Our own app identifier, never accounted
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	self := "timebank"
	if exe, err := os.Executable(); err == nil {
		self = filepath.Base(exe)
	}
	return MonitorConfig{
		TickInterval: 100 * time.Millisecond,
		SelfAppID:    self,
	}
}

// Monitor is the usage monitor state machine. One Monitor runs one loop;
// its session is owned by that loop's goroutine.
type Monitor struct {
	config     MonitorConfig
	observer   domain.ForegroundObserver
	accounting Accounting
	reset      DailyResetter
	clock      domain.Clock
	logger     *zap.Logger

	session domain.MonitorSession
}

// NewMonitor creates a monitor.
func NewMonitor(
	config MonitorConfig,
	observer domain.ForegroundObserver,
	accounting Accounting,
	reset DailyResetter,
	clock domain.Clock,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		config:     config,
		observer:   observer,
		accounting: accounting,
		reset:      reset,
		clock:      clock,
		logger:     logger,
	}
}

// Run starts the monitor loop.
// This blocks until context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		zap.Duration("tick", m.config.TickInterval),
		zap.String("self", m.config.SelfAppID))

	m.Start(ctx)

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()

		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Start resets the session and applies the daily reset. Run calls it once
// before the first tick.
func (m *Monitor) Start(ctx context.Context) {
	if _, err := m.reset.ApplyDaily(ctx); err != nil {
		m.logger.Error("daily reset failed", zap.Error(err))
	}
	m.session = domain.MonitorSession{
		State:        domain.StateIdle,
		LastSampleAt: m.clock.Now(),
	}
}

// State returns the current state of the state machine.
func (m *Monitor) State() domain.MonitorState {
	return m.session.State
}

// Session returns a copy of the current session.
func (m *Monitor) Session() domain.MonitorSession {
	return m.session
}

// Tick runs one sampling step. A panic inside the step is logged and the
// step is abandoned.
func (m *Monitor) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TickErrors.Inc()
			metrics.Ticks.WithLabelValues("error").Inc()
			m.logger.Error("monitor tick panicked", zap.Any("panic", r))
		}
	}()

	outcome, err := m.step(ctx)
	if err != nil {
		metrics.TickErrors.Inc()
		m.logger.Warn("monitor tick failed", zap.Error(err))
		outcome = "error"
	}
	metrics.Ticks.WithLabelValues(outcome).Inc()
}

func (m *Monitor) step(ctx context.Context) (string, error) {
	s := &m.session
	now := m.clock.Now()

	interactive, err := m.observer.IsDisplayInteractive(ctx)
	if err != nil {
		return "", fmt.Errorf("query display: %w", err)
	}

	if !interactive {
		if !s.ScreenWasOff {
			m.logger.Debug("display off, pausing accounting")
		}
		s.ScreenWasOff = true
		s.State = domain.StateScreenOff
		s.LastSampleAt = now
		return "screen_off", nil
	}

	if s.ScreenWasOff {
		m.logger.Debug("display back, resuming")
		s.ScreenWasOff = false
		s.State = domain.StateIdle
		s.LastApp = ""
		s.LastSampleAt = now
		return "screen_off", nil
	}

	app, err := m.observer.CurrentForegroundApp(ctx)
	if err != nil {
		return "", fmt.Errorf("query foreground app: %w", err)
	}
	if app == "" || app == m.config.SelfAppID {
		return "self", nil
	}

	if app != s.LastApp {
		return "transition", m.transition(ctx, s, app, now)
	}
	return "dwell", m.dwell(ctx, s, app, now)
}

func (m *Monitor) transition(ctx context.Context, s *domain.MonitorSession, app string, now time.Time) error {
	m.logger.Debug("foreground app changed",
		zap.String("from", s.LastApp),
		zap.String("to", app))

	outcome, err := m.accounting.Transition(ctx, s, app, now)
	if err != nil {
		return err
	}

	// An exhausted negative app stays a transition until it is left, so
	// every tick re-checks it against the cooldown.
	if outcome == usecase.OutcomeBlocked || outcome == usecase.OutcomeSuppressed {
		return nil
	}

	s.LastApp = app
	s.LastSampleAt = now
	s.State = domain.StateTracking
	return nil
}

func (m *Monitor) dwell(ctx context.Context, s *domain.MonitorSession, app string, now time.Time) error {
	elapsed := int64(now.Sub(s.LastSampleAt) / time.Second)
	if elapsed < 1 {
		return nil
	}

	outcome, err := m.accounting.Account(ctx, s, app, elapsed, now)
	if err != nil {
		return err
	}

	m.logger.Debug("dwell accounted",
		zap.String("app", app),
		zap.Int64("elapsed", elapsed),
		zap.Stringer("outcome", outcome))

	s.LastSampleAt = now
	return nil
}
