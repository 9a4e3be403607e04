package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
	"earnings-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SalesAccumulator adds gross sale amounts to a seller's sales_total. It is
// independent of the wallet credit and never fatal to a sale.
type SalesAccumulator struct {
	sellers     SellerRepository
	diagnostics DiagnosticSink
	logger      *zap.Logger
}

func NewSalesAccumulator(sellers SellerRepository, diagnostics DiagnosticSink) *SalesAccumulator {
	return &SalesAccumulator{
		sellers:     sellers,
		diagnostics: diagnostics,
		logger:      util.GetLogger(),
	}
}

// Add increments sales_total by amount. before is the total observed when
// the sale was priced; the result is verified to be at least before+amount.
//
// An increment that failed after committing is re-applied by the fallback,
// so sales_total can run ahead by amount. There is no per-sale row to check
// against; the verification only catches the total falling short.
func (a *SalesAccumulator) Add(ctx context.Context, sellerID string, amount, before, orderID int64) error {
	const op = "service.AddSales"

	ctx, span := util.StartSpan(ctx, "SalesAccumulator.Add",
		attribute.String("seller_id", sellerID),
		attribute.Int64("amount", amount))
	defer span.End()

	start := time.Now()
	_, path, err := TryThenFallback(ctx,
		func(ctx context.Context) (int64, error) {
			return a.sellers.IncrementSalesTotal(ctx, sellerID, amount)
		},
		func(ctx context.Context) (int64, error) {
			a.logger.Warn("Atomic sales total increment failed, using fallback",
				zap.String("seller_id", sellerID))
			seller, err := a.sellers.GetSeller(ctx, sellerID)
			if err != nil {
				return 0, err
			}
			total := seller.SalesTotal + amount
			if err := a.sellers.SetSalesTotal(ctx, sellerID, total); err != nil {
				return 0, err
			}
			return total, nil
		},
	)
	util.LedgerPathLatency.WithLabelValues("sales_total", string(path)).Observe(time.Since(start).Seconds())

	if err != nil {
		util.SalesTotalUpdatesTotal.WithLabelValues(string(path), "failed").Inc()
		a.logger.Warn("Sales total update failed",
			zap.String("seller_id", sellerID), zap.Int64("amount", amount), zap.Error(err))
	}

	seller, rerr := a.sellers.GetSeller(ctx, sellerID)
	expected := before + amount
	if rerr != nil || seller.SalesTotal < expected {
		var msg string
		if rerr != nil {
			msg = fmt.Sprintf("sales_total re-read failed: %v", rerr)
		} else {
			msg = fmt.Sprintf("sales_total %d below expected %d", seller.SalesTotal, expected)
		}
		a.recordUnverified(ctx, sellerID, orderID, amount, msg)
		util.SalesTotalUpdatesTotal.WithLabelValues(string(path), "unverified").Inc()
		return apperr.New(apperr.KindVerification, op, "seller %s: %s", sellerID, msg)
	}

	if err != nil {
		return err
	}
	util.SalesTotalUpdatesTotal.WithLabelValues(string(path), "ok").Inc()
	return nil
}

func (a *SalesAccumulator) recordUnverified(ctx context.Context, sellerID string, orderID, amount int64, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	a.logger.Warn("Sales total unverified",
		zap.String("seller_id", sellerID),
		zap.Int64("order_id", orderID),
		zap.String("error_kind", apperr.KindVerification.String()),
		zap.String("reason", msg))

	metadata, _ := json.Marshal(map[string]interface{}{"amount": amount})
	rec := &models.DiagnosticRecord{
		ErrorType: models.DiagnosticSalesTotalUnverified,
		SellerID:  sellerID,
		OrderID:   &orderID,
		Message:   msg,
		Metadata:  metadata,
	}
	if err := a.diagnostics.RecordDiagnostic(ctx, rec); err != nil {
		a.logger.Error("Failed to record diagnostic", zap.Error(err))
	}
}
