// Package ledger implements the balance ledger on top of a domain.ConfigStore.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/metrics"
)

// LedgerImpl implements domain.Ledger.
// The mutex serializes writers inside this process; the store's write
// transaction serializes writers across processes.
type LedgerImpl struct {
	mu     sync.Mutex
	store  domain.ConfigStore
	logger *zap.Logger
}

// NewLedger creates a ledger backed by store.
func NewLedger(store domain.ConfigStore, logger *zap.Logger) *LedgerImpl {
	return &LedgerImpl{
		store:  store,
		logger: logger,
	}
}

// Credit adds amount seconds to the balance, saturating at math.MaxInt64.
func (l *LedgerImpl) Credit(ctx context.Context, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit %d: %w", amount, domain.ErrNegativeAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, _, err := l.store.UpdateInt(ctx, domain.KeyBalance, 0, func(current int64) (int64, bool) {
		current = clamp(current)
		if amount > math.MaxInt64-current {
			return math.MaxInt64, true
		}
		return current + amount, true
	})
	if err != nil {
		return fmt.Errorf("credit %d: %w", amount, err)
	}

	metrics.LedgerSeconds.WithLabelValues("credit").Add(float64(amount))
	metrics.Balance.Set(float64(balance))
	l.logger.Debug("balance credited",
		zap.Int64("amount", amount),
		zap.Int64("balance", balance))
	return nil
}

// Debit subtracts amount seconds when the balance covers it.
// Insufficient funds is a normal outcome (false, nil), not an error.
func (l *LedgerImpl) Debit(ctx context.Context, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("debit %d: %w", amount, domain.ErrNegativeAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok, err := l.store.UpdateInt(ctx, domain.KeyBalance, 0, func(current int64) (int64, bool) {
		current = clamp(current)
		if current < amount {
			return current, false
		}
		return current - amount, true
	})
	if err != nil {
		return false, fmt.Errorf("debit %d: %w", amount, err)
	}

	if !ok {
		metrics.DebitsRejected.Inc()
		l.logger.Debug("debit rejected, insufficient balance",
			zap.Int64("amount", amount),
			zap.Int64("balance", balance))
		return false, nil
	}

	metrics.LedgerSeconds.WithLabelValues("debit").Add(float64(amount))
	metrics.Balance.Set(float64(balance))
	l.logger.Debug("balance debited",
		zap.Int64("amount", amount),
		zap.Int64("balance", balance))
	return true, nil
}

// SetAbsolute overwrites the balance. Negative values are stored as zero.
func (l *LedgerImpl) SetAbsolute(ctx context.Context, value int64) error {
	value = clamp(value)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.SetInt(ctx, domain.KeyBalance, value); err != nil {
		return fmt.Errorf("set balance %d: %w", value, err)
	}

	metrics.Balance.Set(float64(value))
	l.logger.Info("balance set", zap.Int64("balance", value))
	return nil
}

// Read returns the latest committed balance.
func (l *LedgerImpl) Read(ctx context.Context) (int64, error) {
	balance, err := l.store.GetInt(ctx, domain.KeyBalance, 0)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return clamp(balance), nil
}

// clamp hides a corrupted negative value from readers.
func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// Ensure LedgerImpl implements domain.Ledger.
var _ domain.Ledger = (*LedgerImpl)(nil)
