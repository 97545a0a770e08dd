// Package usecase contains application business logic.
package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/metrics"
)

// EnforcementGate fires the block alert for an exhausted negative app,
// at most once per cooldown window. The cooldown timestamp lives in the
// MonitorSession so the transition and dwell paths share it.
type EnforcementGate struct {
	cooldown       time.Duration
	alerts         domain.AlertSurface
	processManager domain.ProcessManager // nil disables killing
	logger         *zap.Logger
}

// NewEnforcementGate creates a gate that only raises alerts.
func NewEnforcementGate(cooldown time.Duration, alerts domain.AlertSurface, logger *zap.Logger) *EnforcementGate {
	return &EnforcementGate{
		cooldown: cooldown,
		alerts:   alerts,
		logger:   logger,
	}
}

// NewEnforcementGateWithKill creates a gate that also kills the blocked
// app's processes when it fires.
func NewEnforcementGateWithKill(
	cooldown time.Duration,
	alerts domain.AlertSurface,
	pm domain.ProcessManager,
	logger *zap.Logger,
) *EnforcementGate {
	g := NewEnforcementGate(cooldown, alerts, logger)
	g.processManager = pm
	return g
}

// TryBlock fires the block if the cooldown has elapsed since the last one.
// On fire the session's block timestamp is set and negative tracking reset.
// Reports whether the block fired.
func (g *EnforcementGate) TryBlock(s *domain.MonitorSession, now time.Time, appID, appName string) bool {
	if !s.LastBlockAt.IsZero() && now.Sub(s.LastBlockAt) < g.cooldown {
		metrics.Blocks.WithLabelValues("suppressed").Inc()
		g.logger.Debug("block suppressed by cooldown",
			zap.String("app", appID),
			zap.Duration("since_last", now.Sub(s.LastBlockAt)))
		return false
	}

	s.LastBlockAt = now
	s.ResetNegativeTracking()

	metrics.Blocks.WithLabelValues("fired").Inc()
	g.logger.Info("blocking app, balance exhausted",
		zap.String("app", appID),
		zap.String("name", appName))

	g.alerts.TriggerBlock(appID, appName)

	if g.processManager != nil {
		g.killProcesses(appID)
	}
	return true
}

// killProcesses terminates every process whose name matches appID.
func (g *EnforcementGate) killProcesses(appID string) []int {
	pids, err := g.processManager.FindByName(appID)
	if err != nil {
		g.logger.Warn("failed to find processes",
			zap.String("pattern", appID),
			zap.Error(err))
		return nil
	}

	self := g.processManager.GetCurrentPID()
	killed := make([]int, 0, len(pids))
	for _, pid := range pids {
		if pid == self {
			continue
		}
		if err := g.processManager.Kill(pid); err != nil {
			g.logger.Warn("failed to kill process",
				zap.Int("pid", pid),
				zap.Error(err))
			continue
		}
		g.logger.Info("killed process",
			zap.String("app", appID),
			zap.Int("pid", pid))
		killed = append(killed, pid)
	}
	return killed
}
