package service

import (
	"context"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/broker"
	"earnings-service/internal/models"
	"earnings-service/internal/paymentprovider"
	"earnings-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Webhook outcomes
const (
	StatusProcessed     = "processed"
	StatusDuplicate     = "duplicate"
	StatusRejected      = "rejected"
	StatusIgnored       = "ignored"
	StatusStatusUpdated = "status_updated"
)

// Line item outcomes
const (
	ItemCredited        = "credited"
	ItemAlreadyCredited = "already_credited"
	ItemSkipped         = "skipped"
	ItemCreditFailed    = "credit_failed"
)

// WebhookResult is the acknowledgment for one delivered event.
type WebhookResult struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	SessionID string       `json:"session_id,omitempty"`
	OrderID   int64        `json:"order_id,omitempty"`
	Status    string       `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Items     []ItemResult `json:"items,omitempty"`
}

// ItemResult is the outcome of one line item.
type ItemResult struct {
	LineItemID  string `json:"line_item_id"`
	SellerID    string `json:"seller_id,omitempty"`
	OrderItemID int64  `json:"order_item_id,omitempty"`
	Status      string `json:"status"`
	Path        string `json:"path,omitempty"`
	Error       string `json:"error,omitempty"`
	SalesError  string `json:"sales_error,omitempty"`
}

// DispatcherDeps are the collaborators of a Dispatcher.
type DispatcherDeps struct {
	Provider     paymentprovider.Provider
	Orders       OrderRepository
	Guard        *IdempotencyGuard
	Materializer *OrderMaterializer
	Ledger       *EarningsLedger
	Sales        *SalesAccumulator
	Referrals    *ReferralService
	Publisher    LedgerEventPublisher
	// AmountTolerance is the accepted difference between the declared
	// session total and the line-item sum, in minor units.
	AmountTolerance int64
}

// Dispatcher verifies provider webhooks and routes them through the ledger
// pipeline.
type Dispatcher struct {
	provider     paymentprovider.Provider
	orders       OrderRepository
	guard        *IdempotencyGuard
	materializer *OrderMaterializer
	ledger       *EarningsLedger
	sales        *SalesAccumulator
	referrals    *ReferralService
	publisher    LedgerEventPublisher
	tolerance    int64
	logger       *zap.Logger
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		provider:     deps.Provider,
		orders:       deps.Orders,
		guard:        deps.Guard,
		materializer: deps.Materializer,
		ledger:       deps.Ledger,
		sales:        deps.Sales,
		referrals:    deps.Referrals,
		publisher:    deps.Publisher,
		tolerance:    deps.AmountTolerance,
		logger:       util.GetLogger(),
	}
}

// HandleWebhook verifies and processes one delivery. A returned error means
// the provider should retry: authentication and decode failures are
// client errors, everything else is internal. Per-item failures and amount
// mismatches are reported in the result, never as an error.
func (d *Dispatcher) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "Dispatcher.HandleWebhook")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	event, err := d.provider.VerifyEvent(payload, signature)
	if err != nil {
		kind := apperr.KindOf(err)
		util.WebhookRejectedTotal.WithLabelValues(kind.String()).Inc()
		d.logger.Warn("Webhook rejected",
			zap.String("error_kind", kind.String()), zap.Error(err))
		return nil, err
	}

	util.WebhooksReceivedTotal.WithLabelValues(event.EventType()).Inc()
	span.SetAttributes(
		attribute.String("event_id", event.EventID()),
		attribute.String("event_type", event.EventType()))

	switch e := event.(type) {
	case *paymentprovider.CheckoutCompleted:
		return d.handleCheckoutCompleted(ctx, e)
	case *paymentprovider.PaymentSucceeded:
		return d.handlePaymentStatus(ctx, e, e.PaymentIntent, models.OrderStatusCompleted)
	case *paymentprovider.PaymentFailed:
		return d.handlePaymentStatus(ctx, e, e.PaymentIntent, models.OrderStatusFailed)
	default:
		d.logger.Info("Ignoring webhook event",
			zap.String("event_id", event.EventID()), zap.String("event_type", event.EventType()))
		return &WebhookResult{
			EventID:   event.EventID(),
			EventType: event.EventType(),
			Status:    StatusIgnored,
		}, nil
	}
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, e *paymentprovider.CheckoutCompleted) (*WebhookResult, error) {
	session := e.Session
	result := &WebhookResult{
		EventID:   e.EventID(),
		EventType: e.EventType(),
		SessionID: session.ID,
	}

	done, err := d.guard.AlreadyProcessed(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if done {
		return d.duplicate(result), nil
	}

	lineItems, err := d.provider.ListLineItems(ctx, session.ID)
	if err != nil {
		d.logger.Error("Failed to fetch line items",
			zap.String("session_id", session.ID),
			zap.String("error_kind", apperr.KindOf(err).String()),
			zap.Error(err))
		return nil, err
	}

	if err := CheckAmounts(session, lineItems, d.tolerance); err != nil {
		util.WebhookRejectedTotal.WithLabelValues(apperr.KindValidation.String()).Inc()
		d.logger.Error("Checkout session rejected",
			zap.String("session_id", session.ID),
			zap.String("error_kind", apperr.KindValidation.String()),
			zap.Error(err))
		result.Status = StatusRejected
		result.Reason = err.Error()
		return result, nil
	}

	order, err := d.materializer.CreateOrder(ctx, session)
	if apperr.Is(err, apperr.KindDuplicate) {
		return d.duplicate(result), nil
	}
	if err != nil {
		d.logger.Error("Failed to create order, session not processed",
			zap.String("session_id", session.ID),
			zap.String("error_kind", apperr.KindOf(err).String()),
			zap.Error(err))
		return nil, err
	}
	result.OrderID = order.ID

	failed := 0
	for _, li := range lineItems {
		item := d.processLineItem(ctx, order, li)
		if item.Status == ItemSkipped || item.Status == ItemCreditFailed {
			failed++
		}
		result.Items = append(result.Items, item)
	}

	d.guard.MarkProcessed(ctx, session.ID, order.ID)

	if d.referrals != nil {
		if _, err := d.referrals.CreditForOrder(ctx, order); err != nil {
			d.logger.Warn("Referral credit failed",
				zap.Int64("order_id", order.ID),
				zap.String("referral_code", order.ReferralCode),
				zap.Error(err))
		}
	}

	event := &models.OrderMaterializedEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeOrderMaterialized),
		OrderID:     order.ID,
		SessionID:   session.ID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		ItemCount:   len(lineItems),
		FailedItems: failed,
	}
	if err := d.publisher.PublishOrderMaterialized(ctx, event); err != nil {
		d.logger.Error("Failed to publish OrderMaterialized event", zap.Error(err))
	}

	result.Status = StatusProcessed
	return result, nil
}

// processLineItem never fails the session: every error ends up in the
// returned ItemResult.
func (d *Dispatcher) processLineItem(ctx context.Context, order *models.Order, li paymentprovider.LineItem) ItemResult {
	res := ItemResult{LineItemID: li.ID, SellerID: li.SellerID}

	item, seller, err := d.materializer.CreateItem(ctx, order, li)
	if err != nil {
		kind := apperr.KindOf(err)
		util.OrderItemsSkippedTotal.WithLabelValues(kind.String()).Inc()
		fields := []zap.Field{
			zap.Int64("order_id", order.ID),
			zap.String("line_item_id", li.ID),
			zap.String("seller_id", li.SellerID),
			zap.String("error_kind", kind.String()),
			zap.Error(err),
		}
		if kind == apperr.KindNotFound || kind == apperr.KindValidation {
			d.logger.Warn("Line item skipped", fields...)
		} else {
			d.logger.Error("Line item skipped", fields...)
		}
		res.Status = ItemSkipped
		res.Error = err.Error()
		return res
	}
	res.OrderItemID = item.ID

	outcome, err := d.ledger.CreditSale(ctx, item)
	switch {
	case err != nil:
		res.Status = ItemCreditFailed
		res.Error = err.Error()
	case outcome.AlreadyCredited:
		res.Status = ItemAlreadyCredited
	default:
		res.Status = ItemCredited
		res.Path = string(outcome.Path)
	}

	if err := d.sales.Add(ctx, seller.ID, item.TotalPrice, seller.SalesTotal, order.ID); err != nil {
		res.SalesError = err.Error()
	}
	return res
}

func (d *Dispatcher) duplicate(result *WebhookResult) *WebhookResult {
	util.SessionsDuplicateTotal.Inc()
	d.logger.Info("Checkout session already processed",
		zap.String("session_id", result.SessionID),
		zap.String("event_id", result.EventID))
	result.Status = StatusDuplicate
	return result
}

func (d *Dispatcher) handlePaymentStatus(ctx context.Context, e paymentprovider.Event, pi paymentprovider.PaymentIntent, status string) (*WebhookResult, error) {
	matched, changed, err := d.orders.UpdateOrderStatusByPaymentIntent(ctx, pi.ID, status)
	if err != nil {
		d.logger.Error("Failed to update order status",
			zap.String("payment_intent_id", pi.ID), zap.String("status", status), zap.Error(err))
		return nil, err
	}

	switch {
	case matched == 0:
		d.logger.Info("No order for payment intent",
			zap.String("payment_intent_id", pi.ID), zap.String("status", status))
	case changed == 0:
		d.logger.Info("Order already in status",
			zap.String("payment_intent_id", pi.ID), zap.String("status", status))
	default:
		util.OrderStatusUpdatesTotal.WithLabelValues(status).Inc()
		d.logger.Info("Order status updated",
			zap.String("payment_intent_id", pi.ID),
			zap.String("status", status),
			zap.String("failure_reason", pi.FailureReason))
	}

	return &WebhookResult{
		EventID:   e.EventID(),
		EventType: e.EventType(),
		Status:    StatusStatusUpdated,
	}, nil
}
