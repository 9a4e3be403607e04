package store

import (
	"context"
	"database/sql"
	"errors"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
)

// CreateOrder inserts an order. A second order for the same session fails
// with apperr.KindDuplicate.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (session_id, payment_intent_id, buyer_email, total_amount, currency, status, referral_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		order.SessionID, order.PaymentIntentID, order.BuyerEmail, order.TotalAmount,
		order.Currency, order.Status, order.ReferralCode,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	return classify("store.CreateOrder", err)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "store.GetOrderByID", "order not found: %d", id)
	}
	if err != nil {
		return nil, classify("store.GetOrderByID", err)
	}
	return &order, nil
}

// GetOrderBySessionID returns nil when no order exists for the session
func (s *Store) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE session_id = $1", sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("store.GetOrderBySessionID", err)
	}
	return &order, nil
}

// UpdateOrderStatusByPaymentIntent sets the status of the orders paid with
// paymentIntentID. It returns how many orders carry the payment intent and
// how many of them changed; an order already in status is matched but not
// changed.
func (s *Store) UpdateOrderStatusByPaymentIntent(ctx context.Context, paymentIntentID, status string) (matched, changed int64, err error) {
	query := `
		WITH updated AS (
			UPDATE orders SET status = $1, updated_at = NOW()
			WHERE payment_intent_id = $2 AND status <> $1
			RETURNING id
		)
		SELECT
			(SELECT COUNT(*) FROM orders WHERE payment_intent_id = $2) AS matched,
			(SELECT COUNT(*) FROM updated) AS changed`

	var counts struct {
		Matched int64 `db:"matched"`
		Changed int64 `db:"changed"`
	}
	if err := s.db.GetContext(ctx, &counts, query, status, paymentIntentID); err != nil {
		return 0, 0, classify("store.UpdateOrderStatusByPaymentIntent", err)
	}
	return counts.Matched, counts.Changed, nil
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, seller_id, quantity, unit_price, total_price,
			designer_earnings, platform_fee, commission_tier, commission_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		item.OrderID, item.ProductID, item.SellerID, item.Quantity, item.UnitPrice, item.TotalPrice,
		item.DesignerEarnings, item.PlatformFee, item.CommissionTier, item.CommissionPct,
	).Scan(&item.ID, &item.CreatedAt)
	return classify("store.CreateOrderItem", err)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, classify("store.GetOrderItemsByOrderID", err)
}
