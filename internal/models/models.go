package models

import (
	"encoding/json"
	"time"
)

// Order is the single record materialized for a completed checkout session.
type Order struct {
	ID              int64     `db:"id" json:"id"`
	SessionID       string    `db:"session_id" json:"session_id"`
	PaymentIntentID string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	BuyerEmail      string    `db:"buyer_email" json:"buyer_email,omitempty"`
	TotalAmount     int64     `db:"total_amount" json:"total_amount"`
	Currency        string    `db:"currency" json:"currency"`
	Status          string    `db:"status" json:"status"`
	ReferralCode    string    `db:"referral_code" json:"referral_code,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is one sold line item. The commission fields are a snapshot of
// the seller's tier at the time of sale and are never recomputed.
type OrderItem struct {
	ID               int64     `db:"id" json:"id"`
	OrderID          int64     `db:"order_id" json:"order_id"`
	ProductID        string    `db:"product_id" json:"product_id"`
	SellerID         string    `db:"seller_id" json:"seller_id"`
	Quantity         int64     `db:"quantity" json:"quantity"`
	UnitPrice        int64     `db:"unit_price" json:"unit_price"`
	TotalPrice       int64     `db:"total_price" json:"total_price"`
	DesignerEarnings int64     `db:"designer_earnings" json:"designer_earnings"`
	PlatformFee      int64     `db:"platform_fee" json:"platform_fee"`
	CommissionTier   string    `db:"commission_tier" json:"commission_tier"`
	CommissionPct    int       `db:"commission_pct" json:"commission_pct"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Seller carries the cumulative gross sales used for tier lookup.
type Seller struct {
	ID         string    `db:"id" json:"id"`
	SalesTotal int64     `db:"sales_total" json:"sales_total"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Wallet holds a user's earnings. Created lazily on first credit.
type Wallet struct {
	ID             int64     `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Balance        int64     `db:"balance" json:"balance"`
	TotalEarnings  int64     `db:"total_earnings" json:"total_earnings"`
	TotalWithdrawn int64     `db:"total_withdrawn" json:"total_withdrawn"`
	PendingBalance int64     `db:"pending_balance" json:"pending_balance"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransaction is an append-only ledger row. Amount is signed.
type WalletTransaction struct {
	ID          int64     `db:"id" json:"id"`
	WalletID    int64     `db:"wallet_id" json:"wallet_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Type        string    `db:"type" json:"type"`
	Amount      int64     `db:"amount" json:"amount"`
	Status      string    `db:"status" json:"status"`
	OrderID     *int64    `db:"order_id" json:"order_id,omitempty"`
	OrderItemID *int64    `db:"order_item_id" json:"order_item_id,omitempty"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// WalletCredit describes a credit to apply through the ledger routines.
type WalletCredit struct {
	UserID      string
	Amount      int64
	Type        string
	OrderID     *int64
	OrderItemID *int64
	Description string
}

// DiagnosticRecord is written for operators to reconcile by hand. It is never
// read back by the ledger.
type DiagnosticRecord struct {
	ID        int64           `db:"id" json:"id"`
	ErrorType string          `db:"error_type" json:"error_type"`
	SellerID  string          `db:"seller_id" json:"seller_id,omitempty"`
	OrderID   *int64          `db:"order_id" json:"order_id,omitempty"`
	Message   string          `db:"message" json:"message"`
	Metadata  json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Promoter is owned by the referral subsystem; the ledger only reads it.
type Promoter struct {
	ID           int64  `db:"id" json:"id"`
	UserID       string `db:"user_id" json:"user_id"`
	ReferralCode string `db:"referral_code" json:"referral_code"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Wallet transaction types
const (
	TransactionTypeSale       = "sale"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeRefund     = "refund"
	TransactionTypeAdjustment = "adjustment"
	TransactionTypeReferral   = "referral"
)

// Wallet transaction statuses
const (
	TransactionStatusCompleted = "completed"
	TransactionStatusPending   = "pending"
	TransactionStatusFailed    = "failed"
)

// Diagnostic error types
const (
	DiagnosticWalletCreditUnverified = "wallet_credit_unverified"
	DiagnosticSalesTotalUnverified   = "sales_total_unverified"
)
