package service

import (
	"context"
	"fmt"

	"earnings-service/internal/util"

	"go.uber.org/zap"
)

// IdempotencyGuard decides whether a checkout session has already been
// materialized. The Redis marker is a shortcut; the orders table is the
// authority and its unique session_id constraint backs up the check.
type IdempotencyGuard struct {
	orders  OrderRepository
	markers SessionMarkers
	logger  *zap.Logger
}

// NewIdempotencyGuard creates a guard. markers may be nil.
func NewIdempotencyGuard(orders OrderRepository, markers SessionMarkers) *IdempotencyGuard {
	return &IdempotencyGuard{
		orders:  orders,
		markers: markers,
		logger:  util.GetLogger(),
	}
}

// AlreadyProcessed reports whether an Order exists for the session.
func (g *IdempotencyGuard) AlreadyProcessed(ctx context.Context, sessionID string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "IdempotencyGuard.AlreadyProcessed")
	defer span.End()

	if g.markers != nil {
		seen, err := g.markers.IsSessionProcessed(ctx, sessionID)
		if err != nil {
			g.logger.Warn("Session marker lookup failed, falling back to database",
				zap.String("session_id", sessionID), zap.Error(err))
		} else if seen {
			return true, nil
		}
	}

	order, err := g.orders.GetOrderBySessionID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency: %w", err)
	}
	return order != nil, nil
}

// MarkProcessed records the session in Redis. Failures only cost a database
// lookup on the next delivery, so they are logged and dropped.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, sessionID string, orderID int64) {
	if g.markers == nil {
		return
	}
	if err := g.markers.MarkSessionProcessed(ctx, sessionID, orderID); err != nil {
		g.logger.Warn("Failed to mark session processed",
			zap.String("session_id", sessionID), zap.Int64("order_id", orderID), zap.Error(err))
	}
}
