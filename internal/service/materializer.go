package service

import (
	"context"
	"fmt"

	"earnings-service/internal/apperr"
	"earnings-service/internal/commission"
	"earnings-service/internal/models"
	"earnings-service/internal/paymentprovider"
	"earnings-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckAmounts validates the authoritative line items against the declared
// session total.
func CheckAmounts(session paymentprovider.CheckoutSession, items []paymentprovider.LineItem, tolerance int64) error {
	const op = "service.CheckAmounts"

	if len(items) == 0 {
		return apperr.New(apperr.KindValidation, op, "session %s has no line items", session.ID)
	}

	var sum int64
	for _, li := range items {
		sum += li.AmountTotal
	}

	diff := sum - session.AmountTotal
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return apperr.New(apperr.KindValidation, op,
			"amount mismatch for session %s: declared %d, line items sum to %d", session.ID, session.AmountTotal, sum)
	}
	return nil
}

// OrderMaterializer turns a validated session into Order and OrderItem rows.
type OrderMaterializer struct {
	orders  OrderRepository
	sellers SellerRepository
	tiers   *commission.Table
	logger  *zap.Logger
}

// NewOrderMaterializer creates a materializer. A nil table means
// commission.DefaultTable.
func NewOrderMaterializer(orders OrderRepository, sellers SellerRepository, tiers *commission.Table) *OrderMaterializer {
	if tiers == nil {
		tiers = commission.DefaultTable
	}
	return &OrderMaterializer{
		orders:  orders,
		sellers: sellers,
		tiers:   tiers,
		logger:  util.GetLogger(),
	}
}

// CreateOrder inserts the Order for a session. A concurrent delivery that
// won the insert surfaces as KindDuplicate.
func (m *OrderMaterializer) CreateOrder(ctx context.Context, session paymentprovider.CheckoutSession) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderMaterializer.CreateOrder",
		attribute.String("session_id", session.ID))
	defer span.End()

	status := models.OrderStatusPending
	if session.Paid() {
		status = models.OrderStatusCompleted
	}

	order := &models.Order{
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntentID,
		BuyerEmail:      session.CustomerEmail,
		TotalAmount:     session.AmountTotal,
		Currency:        session.Currency,
		Status:          status,
		ReferralCode:    session.ReferralCode,
	}

	if err := m.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	util.OrdersMaterializedTotal.Inc()
	m.logger.Info("Order materialized",
		zap.Int64("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.Int64("total_amount", order.TotalAmount))
	return order, nil
}

// CreateItem inserts one OrderItem priced at the seller's tier as it stands
// before this sale. The returned seller carries that pre-sale total.
func (m *OrderMaterializer) CreateItem(ctx context.Context, order *models.Order, li paymentprovider.LineItem) (*models.OrderItem, *models.Seller, error) {
	const op = "service.CreateItem"

	ctx, span := util.StartSpan(ctx, "OrderMaterializer.CreateItem",
		attribute.Int64("order_id", order.ID),
		attribute.String("line_item_id", li.ID))
	defer span.End()

	if li.SellerID == "" {
		return nil, nil, apperr.New(apperr.KindNotFound, op, "line item %s has no seller_id metadata", li.ID)
	}
	if li.ProductID == "" {
		return nil, nil, apperr.New(apperr.KindNotFound, op, "line item %s has no product_id metadata", li.ID)
	}
	if li.Quantity <= 0 || li.AmountTotal <= 0 {
		return nil, nil, apperr.New(apperr.KindValidation, op,
			"line item %s has quantity %d and amount %d", li.ID, li.Quantity, li.AmountTotal)
	}

	seller, err := m.sellers.GetSeller(ctx, li.SellerID)
	if err != nil {
		return nil, nil, err
	}

	tier := m.tiers.Resolve(seller.SalesTotal)
	designer, platform := commission.Split(li.AmountTotal, tier)

	unitPrice := li.UnitAmount
	if unitPrice == 0 {
		unitPrice = li.AmountTotal / li.Quantity
	}

	item := &models.OrderItem{
		OrderID:          order.ID,
		ProductID:        li.ProductID,
		SellerID:         seller.ID,
		Quantity:         li.Quantity,
		UnitPrice:        unitPrice,
		TotalPrice:       li.AmountTotal,
		DesignerEarnings: designer,
		PlatformFee:      platform,
		CommissionTier:   tier.Name,
		CommissionPct:    tier.DesignerPct,
	}

	if err := m.orders.CreateOrderItem(ctx, item); err != nil {
		return nil, nil, fmt.Errorf("failed to create order item for line item %s: %w", li.ID, err)
	}

	util.OrderItemsCreatedTotal.WithLabelValues(tier.Name).Inc()
	return item, seller, nil
}
