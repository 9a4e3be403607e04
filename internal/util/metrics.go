package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of provider webhooks received, by event type",
	}, []string{"event_type"})

	WebhookRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_rejected_total",
		Help: "Total number of webhooks rejected before processing",
	}, []string{"reason"})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook processing",
		Buckets: prometheus.DefBuckets,
	})

	SessionsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_duplicate_total",
		Help: "Total number of checkout sessions skipped as already processed",
	})

	OrdersMaterializedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_materialized_total",
		Help: "Total number of orders created from checkout sessions",
	})

	OrderItemsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_items_created_total",
		Help: "Total number of order items created, by commission tier",
	}, []string{"tier"})

	OrderItemsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_items_skipped_total",
		Help: "Total number of line items skipped",
	}, []string{"reason"})

	OrderStatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_updates_total",
		Help: "Total number of order status transitions from payment events",
	}, []string{"status"})

	WalletCreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Total number of wallet credits, by type and write path",
	}, []string{"type", "path"})

	WalletCreditVerificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credit_verification_failures_total",
		Help: "Total number of wallet credits that could not be verified",
	})

	SalesTotalUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seller_sales_total_updates_total",
		Help: "Total number of seller sales total updates, by path and result",
	}, []string{"path", "result"})

	LedgerPathLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_write_latency_seconds",
		Help:    "Latency of ledger writes, by operation and path",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "path"})

	LedgerAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_alerts_total",
		Help: "Total number of operator alerts raised for unverified ledger writes",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
