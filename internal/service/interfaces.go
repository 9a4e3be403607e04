package service

import (
	"context"

	"earnings-service/internal/models"
)

// OrderRepository persists orders and their items.
type OrderRepository interface {
	GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	UpdateOrderStatusByPaymentIntent(ctx context.Context, paymentIntentID, status string) (matched, changed int64, err error)
}

// SellerRepository reads sellers and mutates sales_total. Only the
// SalesAccumulator calls the mutating methods.
type SellerRepository interface {
	GetSeller(ctx context.Context, id string) (*models.Seller, error)
	IncrementSalesTotal(ctx context.Context, sellerID string, amount int64) (int64, error)
	SetSalesTotal(ctx context.Context, sellerID string, total int64) error
}

// WalletRepository mutates wallets. Only the EarningsLedger calls it.
type WalletRepository interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*models.Wallet, error)
	CreditWallet(ctx context.Context, credit models.WalletCredit) (int64, error)
	UpdateWalletBalances(ctx context.Context, wallet *models.Wallet) error
	InsertWalletTransaction(ctx context.Context, tx *models.WalletTransaction) error
	FindSaleTransaction(ctx context.Context, orderItemID int64) (*models.WalletTransaction, error)
}

// DiagnosticSink is an append-only store for operator reconciliation.
type DiagnosticSink interface {
	RecordDiagnostic(ctx context.Context, rec *models.DiagnosticRecord) error
}

// PromoterRepository resolves referral codes.
type PromoterRepository interface {
	GetPromoterByReferralCode(ctx context.Context, code string) (*models.Promoter, error)
}

// SessionMarkers is a fast, expiring record of processed checkout sessions.
type SessionMarkers interface {
	IsSessionProcessed(ctx context.Context, sessionID string) (bool, error)
	MarkSessionProcessed(ctx context.Context, sessionID string, orderID int64) error
}

// LedgerEventPublisher publishes ledger domain events.
type LedgerEventPublisher interface {
	PublishOrderMaterialized(ctx context.Context, event *models.OrderMaterializedEvent) error
	PublishEarningsCredited(ctx context.Context, event *models.EarningsCreditedEvent) error
	PublishLedgerAlert(ctx context.Context, event *models.LedgerAlertEvent) error
}
