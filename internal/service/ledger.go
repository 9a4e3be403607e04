package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/broker"
	"earnings-service/internal/models"
	"earnings-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// reportTimeout bounds diagnostic and alert writes, which run detached from
// the request context.
const reportTimeout = 5 * time.Second

var (
	// errSaleAlreadyRecorded is returned by the fallback when the sale row
	// already exists, e.g. the atomic call committed but its reply was lost.
	errSaleAlreadyRecorded = errors.New("sale transaction already recorded")

	// errBalanceAheadOfLog is returned by the fallback when the balance was
	// written but the sale row could not be inserted because one appeared
	// in between. The wallet now holds the amount twice.
	errBalanceAheadOfLog = errors.New("wallet balance written but sale transaction already recorded")
)

// CreditOutcome is the result of a sale credit.
type CreditOutcome struct {
	Path            Path
	AlreadyCredited bool
	Transaction     *models.WalletTransaction
}

// EarningsLedger credits seller wallets. Sale credits are idempotent on the
// order item: at most one sale transaction exists per OrderItem.
type EarningsLedger struct {
	wallets     WalletRepository
	diagnostics DiagnosticSink
	publisher   LedgerEventPublisher
	logger      *zap.Logger
}

// NewEarningsLedger creates a ledger.
func NewEarningsLedger(wallets WalletRepository, diagnostics DiagnosticSink, publisher LedgerEventPublisher) *EarningsLedger {
	return &EarningsLedger{
		wallets:     wallets,
		diagnostics: diagnostics,
		publisher:   publisher,
		logger:      util.GetLogger(),
	}
}

// CreditSale credits the designer share of an OrderItem to the seller. It
// checks for an existing sale transaction, tries the atomic routine, falls
// back to the manual read-modify-write once, then re-reads the transaction.
// An unverifiable credit is recorded for operators and returned as
// KindVerification; it is never retried here.
func (l *EarningsLedger) CreditSale(ctx context.Context, item *models.OrderItem) (*CreditOutcome, error) {
	const op = "service.CreditSale"

	ctx, span := util.StartSpan(ctx, "EarningsLedger.CreditSale",
		attribute.Int64("order_item_id", item.ID),
		attribute.String("seller_id", item.SellerID))
	defer span.End()

	existing, err := l.wallets.FindSaleTransaction(ctx, item.ID)
	if err != nil {
		l.reportUnverified(ctx, item, fmt.Sprintf("sale credit pre-check failed, credit not attempted: %v", err))
		return nil, apperr.Wrap(apperr.KindPersistence, op, err)
	}
	if existing != nil {
		l.logger.Info("Sale already credited",
			zap.Int64("order_item_id", item.ID), zap.Int64("transaction_id", existing.ID))
		return &CreditOutcome{AlreadyCredited: true, Transaction: existing}, nil
	}

	if _, err := l.wallets.GetOrCreateWallet(ctx, item.SellerID); err != nil {
		l.logger.Warn("Failed to ensure wallet before credit",
			zap.String("seller_id", item.SellerID), zap.Error(err))
	}

	orderID, itemID := item.OrderID, item.ID
	credit := models.WalletCredit{
		UserID:      item.SellerID,
		Amount:      item.DesignerEarnings,
		Type:        models.TransactionTypeSale,
		OrderID:     &orderID,
		OrderItemID: &itemID,
		Description: fmt.Sprintf("Sale of %s (order %d, %s tier)", item.ProductID, item.OrderID, item.CommissionTier),
	}

	path, writeErr := l.credit(ctx, credit)
	if errors.Is(writeErr, errBalanceAheadOfLog) {
		msg := fmt.Sprintf("fallback credited balance but sale row already existed: %v", writeErr)
		l.reportUnverified(ctx, item, msg)
		return &CreditOutcome{Path: path}, apperr.New(apperr.KindVerification, op,
			"wallet credit for order item %d unverified: %s", item.ID, msg)
	}
	if apperr.Is(writeErr, apperr.KindDuplicate) || errors.Is(writeErr, errSaleAlreadyRecorded) {
		l.logger.Info("Sale credit already recorded by a concurrent delivery",
			zap.Int64("order_item_id", item.ID))
		return &CreditOutcome{Path: path, AlreadyCredited: true}, nil
	}
	if writeErr != nil {
		l.logger.Error("Wallet credit failed on both paths",
			zap.Int64("order_item_id", item.ID),
			zap.String("seller_id", item.SellerID),
			zap.String("error_kind", apperr.KindPersistence.String()),
			zap.Error(writeErr))
	}

	tx, err := l.wallets.FindSaleTransaction(ctx, item.ID)
	if err != nil || tx == nil {
		msg := "sale transaction missing after credit"
		if err != nil {
			msg = fmt.Sprintf("sale transaction re-read failed: %v", err)
		}
		if writeErr != nil {
			msg = fmt.Sprintf("%s (write error: %v)", msg, writeErr)
		}
		l.reportUnverified(ctx, item, msg)
		return &CreditOutcome{Path: path}, apperr.New(apperr.KindVerification, op,
			"wallet credit for order item %d unverified: %s", item.ID, msg)
	}

	l.logger.Info("Sale credited",
		zap.Int64("order_item_id", item.ID),
		zap.String("seller_id", item.SellerID),
		zap.Int64("amount", item.DesignerEarnings),
		zap.String("path", string(path)))

	event := &models.EarningsCreditedEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeEarningsCredited),
		OrderID:     item.OrderID,
		OrderItemID: item.ID,
		SellerID:    item.SellerID,
		Amount:      item.DesignerEarnings,
		Tier:        item.CommissionTier,
		Path:        string(path),
	}
	if err := l.publisher.PublishEarningsCredited(ctx, event); err != nil {
		l.logger.Error("Failed to publish EarningsCredited event", zap.Error(err))
	}

	return &CreditOutcome{Path: path, Transaction: tx}, nil
}

// CreditReferral credits a promoter through the same two paths as a sale,
// without the existence check or verification.
func (l *EarningsLedger) CreditReferral(ctx context.Context, credit models.WalletCredit) (Path, error) {
	ctx, span := util.StartSpan(ctx, "EarningsLedger.CreditReferral",
		attribute.String("user_id", credit.UserID))
	defer span.End()

	credit.Type = models.TransactionTypeReferral
	return l.credit(ctx, credit)
}

func (l *EarningsLedger) credit(ctx context.Context, credit models.WalletCredit) (Path, error) {
	start := time.Now()

	_, path, err := TryThenFallback(ctx,
		func(ctx context.Context) (int64, error) {
			return l.wallets.CreditWallet(ctx, credit)
		},
		func(ctx context.Context) (int64, error) {
			l.logger.Warn("Atomic wallet credit failed, using fallback",
				zap.String("user_id", credit.UserID), zap.String("type", credit.Type))
			return l.manualCredit(ctx, credit)
		},
	)

	util.LedgerPathLatency.WithLabelValues("wallet_credit", string(path)).Observe(time.Since(start).Seconds())
	if err == nil {
		util.WalletCreditsTotal.WithLabelValues(credit.Type, string(path)).Inc()
	}
	return path, err
}

// manualCredit is the degraded path: read the wallet, write the new balance,
// then append the transaction. Two concurrent fallbacks for the same wallet
// can lose an update; the balance write and the insert are not atomic.
//
// A failed atomic call may still have committed, so a sale credit re-checks
// for its transaction before touching the balance.
func (l *EarningsLedger) manualCredit(ctx context.Context, credit models.WalletCredit) (int64, error) {
	const op = "service.manualCredit"

	isSale := credit.Type == models.TransactionTypeSale && credit.OrderItemID != nil
	if isSale {
		existing, err := l.wallets.FindSaleTransaction(ctx, *credit.OrderItemID)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			return 0, apperr.Wrap(apperr.KindDuplicate, op, errSaleAlreadyRecorded)
		}
	}

	wallet, err := l.wallets.GetOrCreateWallet(ctx, credit.UserID)
	if err != nil {
		return 0, err
	}

	wallet.Balance += credit.Amount
	wallet.TotalEarnings += credit.Amount
	if err := l.wallets.UpdateWalletBalances(ctx, wallet); err != nil {
		return 0, err
	}

	tx := &models.WalletTransaction{
		WalletID:    wallet.ID,
		UserID:      credit.UserID,
		Type:        credit.Type,
		Amount:      credit.Amount,
		Status:      models.TransactionStatusCompleted,
		OrderID:     credit.OrderID,
		OrderItemID: credit.OrderItemID,
		Description: credit.Description,
	}
	if err := l.wallets.InsertWalletTransaction(ctx, tx); err != nil {
		if isSale && apperr.Is(err, apperr.KindDuplicate) {
			return 0, apperr.Wrap(apperr.KindVerification, op, fmt.Errorf("%w: %v", errBalanceAheadOfLog, err))
		}
		return 0, err
	}
	return tx.ID, nil
}

// reportUnverified records the failure for operators. The writes outlive a
// cancelled request.
func (l *EarningsLedger) reportUnverified(ctx context.Context, item *models.OrderItem, msg string) {
	util.WalletCreditVerificationFailures.Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	l.logger.Error("Wallet credit unverified, manual reconciliation required",
		zap.Int64("order_id", item.OrderID),
		zap.Int64("order_item_id", item.ID),
		zap.String("seller_id", item.SellerID),
		zap.Int64("amount", item.DesignerEarnings),
		zap.String("error_kind", apperr.KindVerification.String()),
		zap.String("reason", msg))

	metadata, _ := json.Marshal(map[string]interface{}{
		"order_item_id": item.ID,
		"amount":        item.DesignerEarnings,
		"product_id":    item.ProductID,
		"tier":          item.CommissionTier,
	})
	orderID := item.OrderID
	rec := &models.DiagnosticRecord{
		ErrorType: models.DiagnosticWalletCreditUnverified,
		SellerID:  item.SellerID,
		OrderID:   &orderID,
		Message:   msg,
		Metadata:  metadata,
	}
	if err := l.diagnostics.RecordDiagnostic(ctx, rec); err != nil {
		l.logger.Error("Failed to record diagnostic", zap.Error(err))
	}

	alert := &models.LedgerAlertEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeLedgerAlert),
		ErrorType:   models.DiagnosticWalletCreditUnverified,
		OrderID:     item.OrderID,
		OrderItemID: item.ID,
		SellerID:    item.SellerID,
		Amount:      item.DesignerEarnings,
		Message:     msg,
	}
	if err := l.publisher.PublishLedgerAlert(ctx, alert); err != nil {
		l.logger.Error("Failed to publish LedgerAlert event", zap.Error(err))
	}
}
