package worker

import (
	"context"

	"earnings-service/internal/broker"
	"earnings-service/internal/models"
	"earnings-service/internal/util"

	"go.uber.org/zap"
)

// SaleTransactionFinder re-reads the ledger for an alerted order item.
type SaleTransactionFinder interface {
	FindSaleTransaction(ctx context.Context, orderItemID int64) (*models.WalletTransaction, error)
}

// AlertWorker turns LEDGER_ALERT events into operator alerts. It only reads
// the ledger; reconciliation stays manual.
type AlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       SaleTransactionFinder
	logger       *zap.Logger
}

// NewAlertWorker creates a new alert worker
func NewAlertWorker(consumer *broker.Consumer, ledger SaleTransactionFinder) *AlertWorker {
	w := &AlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ledger:       ledger,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnLedgerAlert(w.handleLedgerAlert)
	return w
}

// Start blocks consuming the ledger topic until ctx is done.
func (w *AlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting ledger alert worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AlertWorker) Stop() error {
	w.logger.Info("Stopping ledger alert worker")
	return w.consumer.Close()
}

func (w *AlertWorker) handleLedgerAlert(ctx context.Context, event *models.LedgerAlertEvent) error {
	ctx, span := util.StartSpan(ctx, "AlertWorker.handleLedgerAlert")
	defer span.End()

	fields := []zap.Field{
		zap.String("alert_event_id", event.EventID),
		zap.String("error_type", event.ErrorType),
		zap.Int64("order_id", event.OrderID),
		zap.Int64("order_item_id", event.OrderItemID),
		zap.String("seller_id", event.SellerID),
		zap.Int64("amount", event.Amount),
		zap.String("message", event.Message),
	}

	tx, err := w.ledger.FindSaleTransaction(ctx, event.OrderItemID)
	switch {
	case err != nil:
		fields = append(fields, zap.String("reconciliation", "unknown"), zap.Error(err))
	case tx != nil:
		w.logger.Info("Ledger alert already reconciled",
			append(fields, zap.Int64("transaction_id", tx.ID))...)
		return nil
	default:
		fields = append(fields, zap.String("reconciliation", "pending"))
	}

	util.LedgerAlertsTotal.Inc()
	w.logger.Error("LEDGER ALERT: seller earnings unpaid, manual reconciliation required", fields...)
	return nil
}
