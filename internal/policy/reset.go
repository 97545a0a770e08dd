// Package policy implements the balance reset rules: the daily replenishment
// and the throttled manual clear.
package policy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

// ResetConfig holds reset policy configuration.
type ResetConfig struct {
	DailyBalance  int64         // Balance granted by the daily reset, in seconds
	ClearBalance  int64         // Balance granted by a manual clear, in seconds
	ClearThrottle time.Duration // Minimum time between manual clears
}

// DefaultResetConfig returns default reset configuration.
func DefaultResetConfig() ResetConfig {
	return ResetConfig{
		DailyBalance:  60,
		ClearBalance:  300,
		ClearThrottle: 7 * 24 * time.Hour,
	}
}

// ResetPolicy applies resets through the ledger and persists its markers
// in the config store.
type ResetPolicy struct {
	config ResetConfig
	ledger domain.Ledger
	store  domain.ConfigStore
	clock  domain.Clock
	logger *zap.Logger
}

// NewResetPolicy creates a reset policy.
func NewResetPolicy(
	config ResetConfig,
	ledger domain.Ledger,
	store domain.ConfigStore,
	clock domain.Clock,
	logger *zap.Logger,
) *ResetPolicy {
	return &ResetPolicy{
		config: config,
		ledger: ledger,
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ApplyDaily sets the balance to the daily grant if no daily reset happened
// since local midnight. Reports whether a reset was applied.
func (p *ResetPolicy) ApplyDaily(ctx context.Context) (bool, error) {
	now := p.clock.Now()

	last, err := p.store.GetInt(ctx, domain.KeyLastResetDate, 0)
	if err != nil {
		return false, fmt.Errorf("read last reset: %w", err)
	}

	if last >= StartOfDay(now).UnixMilli() {
		p.logger.Debug("daily reset already applied",
			zap.Time("last_reset", time.UnixMilli(last)))
		return false, nil
	}

	if err := p.ledger.SetAbsolute(ctx, p.config.DailyBalance); err != nil {
		return false, fmt.Errorf("daily reset: %w", err)
	}
	if err := p.store.SetInt(ctx, domain.KeyLastResetDate, now.UnixMilli()); err != nil {
		return false, fmt.Errorf("record daily reset: %w", err)
	}

	p.logger.Info("daily reset applied",
		zap.Int64("balance", p.config.DailyBalance))
	return true, nil
}

// CanClear reports whether a manual clear is allowed now.
func (p *ResetPolicy) CanClear(ctx context.Context) (bool, error) {
	wait, err := p.TimeUntilNextClear(ctx)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// TimeUntilNextClear returns how long until the next manual clear is allowed,
// zero when it is allowed now.
func (p *ResetPolicy) TimeUntilNextClear(ctx context.Context) (time.Duration, error) {
	last, err := p.store.GetInt(ctx, domain.KeyLastClearDate, 0)
	if err != nil {
		return 0, fmt.Errorf("read last clear: %w", err)
	}
	if last == 0 {
		return 0, nil
	}

	elapsed := p.clock.Now().Sub(time.UnixMilli(last))
	if elapsed >= p.config.ClearThrottle {
		return 0, nil
	}
	return p.config.ClearThrottle - elapsed, nil
}

// Clear sets the balance to the clear grant and records the clear time.
// Classifications are not touched.
func (p *ResetPolicy) Clear(ctx context.Context) error {
	allowed, err := p.CanClear(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrClearThrottled
	}

	if err := p.ledger.SetAbsolute(ctx, p.config.ClearBalance); err != nil {
		return fmt.Errorf("manual clear: %w", err)
	}
	if err := p.store.SetInt(ctx, domain.KeyLastClearDate, p.clock.Now().UnixMilli()); err != nil {
		return fmt.Errorf("record manual clear: %w", err)
	}

	p.logger.Info("manual clear applied",
		zap.Int64("balance", p.config.ClearBalance))
	return nil
}

// Markers returns the persisted reset timestamps.
func (p *ResetPolicy) Markers(ctx context.Context) (domain.ResetMarkers, error) {
	daily, err := p.store.GetInt(ctx, domain.KeyLastResetDate, 0)
	if err != nil {
		return domain.ResetMarkers{}, fmt.Errorf("read last reset: %w", err)
	}
	cleared, err := p.store.GetInt(ctx, domain.KeyLastClearDate, 0)
	if err != nil {
		return domain.ResetMarkers{}, fmt.Errorf("read last clear: %w", err)
	}
	return domain.ResetMarkers{
		LastDailyResetAt:  daily,
		LastManualClearAt: cleared,
	}, nil
}
