package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/metrics"
)

// Classifier resolves an app identifier to its classification record.
// found is false for an unclassified app; err reports a store failure.
type Classifier interface {
	Resolve(ctx context.Context, appID string) (c *domain.Classification, found bool, err error)
}

// Outcome describes what an accounting step did.
type Outcome int

const (
	OutcomeNone       Outcome = iota // nothing changed
	OutcomeCredited                  // positive app earned balance
	OutcomeDebited                   // negative app spent balance
	OutcomeBlocked                   // block alert fired
	OutcomeSuppressed                // block due but inside the cooldown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCredited:
		return "credited"
	case OutcomeDebited:
		return "debited"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// AccountingConfig holds accounting configuration.
type AccountingConfig struct {
	DefaultRatio     float64       // Exchange ratio used when none is stored
	ReminderInterval time.Duration // Minimum time between dwell reminders
}

// DefaultAccountingConfig returns default accounting configuration.
func DefaultAccountingConfig() AccountingConfig {
	return AccountingConfig{
		DefaultRatio:     1.0,
		ReminderInterval: 5 * time.Second,
	}
}

// roundingTolerance is the relative distance from an integer still treated
// as float error, so 100 x 1.15 earns 115, not 114.
const roundingTolerance = 1e-12

// Accountant turns foreground observations into ledger mutations and alerts.
type Accountant struct {
	config     AccountingConfig
	classifier Classifier
	ledger     domain.Ledger
	store      domain.ConfigStore
	gate       *EnforcementGate
	alerts     domain.AlertSurface
	logger     *zap.Logger
}

// NewAccountant creates an accountant.
func NewAccountant(
	config AccountingConfig,
	classifier Classifier,
	ledger domain.Ledger,
	store domain.ConfigStore,
	gate *EnforcementGate,
	alerts domain.AlertSurface,
	logger *zap.Logger,
) *Accountant {
	return &Accountant{
		config:     config,
		classifier: classifier,
		ledger:     ledger,
		store:      store,
		gate:       gate,
		alerts:     alerts,
		logger:     logger,
	}
}

// Transition handles a switch to app. Negative tracking is restarted unless
// app is the tracked negative app, and an exhausted negative app is blocked
// immediately without waiting for dwell time.
func (a *Accountant) Transition(ctx context.Context, s *domain.MonitorSession, app string, now time.Time) (Outcome, error) {
	c, ok, err := a.classifier.Resolve(ctx, app)
	if err != nil {
		return OutcomeNone, err
	}
	s.CreditCarry = 0

	if !ok || c.Category != domain.CategoryNegative {
		if app != s.ActiveNegativeApp {
			s.ResetNegativeTracking()
		}
		return OutcomeNone, nil
	}

	if app != s.ActiveNegativeApp {
		s.ActiveNegativeApp = app
		s.NegativeDwellSeconds = 0
		s.LastReminderAt = now
	}

	balance, err := a.ledger.Read(ctx)
	if err != nil {
		return OutcomeNone, err
	}
	if balance > 0 {
		return OutcomeNone, nil
	}
	return a.block(s, now, c), nil
}

// Account applies elapsed seconds of continuous use of app.
func (a *Accountant) Account(ctx context.Context, s *domain.MonitorSession, app string, elapsed int64, now time.Time) (Outcome, error) {
	c, ok, err := a.classifier.Resolve(ctx, app)
	if err != nil {
		return OutcomeNone, err
	}
	if !ok {
		return OutcomeNone, nil
	}

	switch c.Category {
	case domain.CategoryPositive:
		return a.credit(ctx, s, c, elapsed)
	case domain.CategoryNegative:
		return a.debit(ctx, s, c, elapsed, now)
	default:
		return OutcomeNone, nil
	}
}

// credit adds floor(elapsed*ratio) seconds. The fractional part is carried
// in the session so a dwell split across ticks earns the same as one
// uninterrupted dwell.
func (a *Accountant) credit(ctx context.Context, s *domain.MonitorSession, c *domain.Classification, elapsed int64) (Outcome, error) {
	ratio, err := a.ratio(ctx)
	if err != nil {
		return OutcomeNone, err
	}

	total := float64(elapsed)*ratio + s.CreditCarry
	earned := wholeSeconds(total)
	if earned <= 0 {
		s.CreditCarry = total
		return OutcomeNone, nil
	}
	if err := a.ledger.Credit(ctx, earned); err != nil {
		return OutcomeNone, err
	}
	s.CreditCarry = 0
	if earned < math.MaxInt64 {
		s.CreditCarry = math.Max(0, total-float64(earned))
	}

	a.logger.Debug("positive app credited",
		zap.String("app", c.AppID),
		zap.Int64("elapsed", elapsed),
		zap.Int64("earned", earned))
	a.alerts.UpdateStatusText(fmt.Sprintf("Using %s, earned %ds", c.DisplayName(), earned))
	return OutcomeCredited, nil
}

// wholeSeconds floors total to whole seconds, saturating at math.MaxInt64.
func wholeSeconds(total float64) int64 {
	if total >= math.MaxInt64 {
		return math.MaxInt64
	}
	if r := math.Round(total); math.Abs(total-r) <= roundingTolerance*math.Max(1, math.Abs(total)) {
		return int64(r)
	}
	return int64(math.Floor(total))
}

func (a *Accountant) debit(ctx context.Context, s *domain.MonitorSession, c *domain.Classification, elapsed int64, now time.Time) (Outcome, error) {
	balance, err := a.ledger.Read(ctx)
	if err != nil {
		return OutcomeNone, err
	}

	a.trackDwell(s, c.AppID, elapsed, now)

	if balance <= 0 {
		return a.block(s, now, c), nil
	}

	ok, err := a.ledger.Debit(ctx, elapsed)
	if err != nil {
		return OutcomeNone, err
	}
	if !ok {
		return a.block(s, now, c), nil
	}

	a.logger.Debug("negative app debited",
		zap.String("app", c.AppID),
		zap.Int64("cost", elapsed))
	a.alerts.UpdateStatusText(fmt.Sprintf("Using %s, spent %ds", c.DisplayName(), elapsed))
	return OutcomeDebited, nil
}

// trackDwell accumulates continuous negative use and shows a reminder every
// ReminderInterval. It never touches the ledger.
func (a *Accountant) trackDwell(s *domain.MonitorSession, app string, elapsed int64, now time.Time) {
	if app != s.ActiveNegativeApp {
		s.ActiveNegativeApp = app
		s.NegativeDwellSeconds = elapsed
		s.LastReminderAt = now
		return
	}

	s.NegativeDwellSeconds += elapsed
	if now.Sub(s.LastReminderAt) >= a.config.ReminderInterval {
		metrics.Reminders.Inc()
		a.alerts.ShowReminder(s.NegativeDwellSeconds)
		s.LastReminderAt = now
	}
}

func (a *Accountant) block(s *domain.MonitorSession, now time.Time, c *domain.Classification) Outcome {
	if a.gate.TryBlock(s, now, c.AppID, c.DisplayName()) {
		return OutcomeBlocked
	}
	return OutcomeSuppressed
}

// ratio reads the stored exchange ratio, falling back to the default for
// missing or non-positive values.
func (a *Accountant) ratio(ctx context.Context) (float64, error) {
	ratio, err := a.store.GetFloat(ctx, domain.KeyExchangeRatio, a.config.DefaultRatio)
	if err != nil {
		return 0, fmt.Errorf("read exchange ratio: %w", err)
	}
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return a.config.DefaultRatio, nil
	}
	return ratio, nil
}
