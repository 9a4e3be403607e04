// Package paymentprovider talks to the payment provider: it verifies webhook
// signatures, decodes events into typed variants and fetches authoritative
// checkout line items.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"earnings-service/config"
	"earnings-service/internal/apperr"
	"earnings-service/internal/util"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

const lineItemPageSize = 100

// LineItem is one authoritative checkout line item with the product metadata
// the marketplace attaches when creating the session.
type LineItem struct {
	ID          string
	ProductID   string
	SellerID    string
	Description string
	Quantity    int64
	UnitAmount  int64
	AmountTotal int64
}

// Provider is everything the dispatcher needs from the payment provider.
type Provider interface {
	// VerifyEvent checks the signature and decodes the payload.
	VerifyEvent(payload []byte, signatureHeader string) (Event, error)
	// ListLineItems fetches the line items of a checkout session.
	ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
}

// New returns a Stripe client, or Unconfigured when credentials are absent.
func New(cfg config.ProviderConfig) Provider {
	if !cfg.Configured() {
		return Unconfigured{}
	}
	return NewStripeClient(cfg, nil)
}

// StripeClient implements Provider with stripe-go.
type StripeClient struct {
	sessions      session.Client
	webhookSecret string
	tolerance     time.Duration
	logger        *zap.Logger
}

// NewStripeClient builds a client. A nil httpClient gets one with the
// configured timeout. cfg.APIBase overrides the API URL.
func NewStripeClient(cfg config.ProviderConfig, httpClient *http.Client) *StripeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	logger := util.GetLogger()

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIBase != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIBase, "/"))
	}

	return &StripeClient{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		webhookSecret: cfg.WebhookSecret,
		tolerance:     cfg.SignatureTolerance,
		logger:        logger,
	}
}

// VerifyEvent verifies the webhook signature and parses the event
func (c *StripeClient) VerifyEvent(payload []byte, signatureHeader string) (Event, error) {
	const op = "paymentprovider.VerifyEvent"

	_, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case err == nil:
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return nil, apperr.Wrap(apperr.KindAuthentication, op, err)
	default:
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}
	return ParseEvent(payload)
}

// ListLineItems pages through the session's line items with products expanded
func (c *StripeClient) ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	const op = "StripeClient.ListLineItems"

	ctx, span := util.StartSpan(ctx, "StripeClient.ListLineItems")
	defer span.End()

	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(lineItemPageSize)
	params.AddExpand("data.price.product")

	var items []LineItem
	iter := c.sessions.ListLineItems(params)
	for iter.Next() {
		items = append(items, toLineItem(iter.LineItem()))
	}
	if err := iter.Err(); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, apperr.New(apperr.KindNotFound, op, "checkout session %s not found", sessionID)
		}
		return nil, fmt.Errorf("failed to list line items for session %s: %w", sessionID, err)
	}

	c.logger.Debug("Fetched checkout line items",
		zap.String("session_id", sessionID),
		zap.Int("count", len(items)))

	return items, nil
}

func toLineItem(li *stripe.LineItem) LineItem {
	item := LineItem{
		ID:          li.ID,
		Description: li.Description,
		Quantity:    li.Quantity,
		AmountTotal: li.AmountTotal,
	}
	if li.Price != nil {
		item.UnitAmount = li.Price.UnitAmount
		if li.Price.Product != nil {
			item.ProductID = li.Price.Product.Metadata["product_id"]
			item.SellerID = li.Price.Product.Metadata["seller_id"]
		}
	}
	return item
}

// Unconfigured stands in for the provider when credentials are missing.
// Every call fails with apperr.KindUnconfigured.
type Unconfigured struct{}

func (Unconfigured) VerifyEvent([]byte, string) (Event, error) {
	return nil, apperr.New(apperr.KindUnconfigured, "paymentprovider.VerifyEvent", "payment provider is not configured")
}

func (Unconfigured) ListLineItems(context.Context, string) ([]LineItem, error) {
	return nil, apperr.New(apperr.KindUnconfigured, "paymentprovider.ListLineItems", "payment provider is not configured")
}
