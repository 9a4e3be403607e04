package models

import "time"

// Event types published on the ledger topic
const (
	EventTypeOrderMaterialized = "ORDER_MATERIALIZED"
	EventTypeEarningsCredited  = "EARNINGS_CREDITED"
	EventTypeLedgerAlert       = "LEDGER_ALERT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderMaterializedEvent published once per processed checkout session
type OrderMaterializedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	SessionID   string `json:"session_id"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
	ItemCount   int    `json:"item_count"`
	FailedItems int    `json:"failed_items"`
}

// EarningsCreditedEvent published after a verified sale credit
type EarningsCreditedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderItemID int64  `json:"order_item_id"`
	SellerID    string `json:"seller_id"`
	Amount      int64  `json:"amount"`
	Tier        string `json:"tier"`
	Path        string `json:"path"`
}

// LedgerAlertEvent published when a wallet credit could not be verified
type LedgerAlertEvent struct {
	BaseEvent
	ErrorType   string `json:"error_type"`
	OrderID     int64  `json:"order_id"`
	OrderItemID int64  `json:"order_item_id"`
	SellerID    string `json:"seller_id"`
	Amount      int64  `json:"amount"`
	Message     string `json:"message"`
}
