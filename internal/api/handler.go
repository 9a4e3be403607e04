package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
	"earnings-service/internal/paymentprovider"
	"earnings-service/internal/service"
	"earnings-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// WebhookDispatcher processes one verified provider delivery.
type WebhookDispatcher interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

// LedgerQueries serves the read API.
type LedgerQueries interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error)
	GetSellerEarnings(ctx context.Context, sellerID string) (*service.SellerEarnings, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	dispatcher     WebhookDispatcher
	queries        LedgerQueries
	webhookTimeout time.Duration
	readiness      map[string]Pinger
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(dispatcher WebhookDispatcher, queries LedgerQueries, webhookTimeout time.Duration, readiness map[string]Pinger) *Handler {
	return &Handler{
		dispatcher:     dispatcher,
		queries:        queries,
		webhookTimeout: webhookTimeout,
		readiness:      readiness,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/payments", h.handleWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/sellers/:id/earnings", h.getSellerEarnings)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.readiness))
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// handleWebhook verifies and processes a provider event. Item-level failures
// are acknowledged with 200 so the provider does not redeliver the batch.
func (h *Handler) handleWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.webhookTimeout)
	defer cancel()

	result, err := h.dispatcher.HandleWebhook(ctx, payload, c.GetHeader(paymentprovider.SignatureHeader))
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("Webhook processing failed", zap.Int("status", code), zap.Error(err))
		}
		c.JSON(code, gin.H{
			"error": apperr.KindOf(err).String(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	idStr := c.Param("id")
	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return
	}

	order, items, err := h.queries.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// getSellerEarnings returns wallet and tier standing for a seller
func (h *Handler) getSellerEarnings(c *gin.Context) {
	earnings, err := h.queries.GetSellerEarnings(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Seller earnings unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, earnings)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindAuthentication, apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnconfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
