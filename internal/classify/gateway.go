// Package classify resolves application identifiers to categories.
package classify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

// Gateway is a read-only view over the classification store.
type Gateway struct {
	store  domain.ClassificationStore
	logger *zap.Logger
}

// NewGateway creates a gateway over store.
func NewGateway(store domain.ClassificationStore, logger *zap.Logger) *Gateway {
	return &Gateway{
		store:  store,
		logger: logger,
	}
}

// Classify returns the category of appID, or CategoryNone when the app has
// no record or the store cannot be read.
func (g *Gateway) Classify(ctx context.Context, appID string) domain.Category {
	c, ok := g.Lookup(ctx, appID)
	if !ok {
		return domain.CategoryNone
	}
	return c.Category
}

// Lookup returns the full record for appID. Store failures read as a miss.
func (g *Gateway) Lookup(ctx context.Context, appID string) (*domain.Classification, bool) {
	c, ok, err := g.Resolve(ctx, appID)
	if err != nil {
		g.logger.Debug("classification lookup failed",
			zap.String("app", appID),
			zap.Error(err))
		return nil, false
	}
	return c, ok
}

// Resolve returns the record for appID. A missing record is (nil, false, nil);
// a store failure is returned so the caller can retry the sample.
func (g *Gateway) Resolve(ctx context.Context, appID string) (*domain.Classification, bool, error) {
	if appID == "" {
		return nil, false, nil
	}

	c, err := g.store.Get(ctx, appID)
	if err != nil {
		if errors.Is(err, domain.ErrClassificationNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("classify %s: %w", appID, err)
	}
	return c, true, nil
}
