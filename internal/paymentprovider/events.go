package paymentprovider

import (
	"encoding/json"
	"fmt"

	"earnings-service/internal/apperr"
)

// Provider event type tags
const (
	TypeCheckoutSessionCompleted = "checkout.session.completed"
	TypePaymentIntentSucceeded   = "payment_intent.succeeded"
	TypePaymentIntentFailed      = "payment_intent.payment_failed"
)

// Event is a decoded provider event. The set of variants is closed:
// CheckoutCompleted, PaymentSucceeded, PaymentFailed and Ignored.
type Event interface {
	EventID() string
	EventType() string
	isEvent()
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (e envelope) EventID() string   { return e.ID }
func (e envelope) EventType() string { return e.Type }
func (envelope) isEvent()            {}

// CheckoutSession is the provider's view of a completed checkout.
type CheckoutSession struct {
	ID              string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	PaymentIntentID string
	PaymentStatus   string
	ReferralCode    string
}

// Paid reports whether the provider has captured the funds.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

// PaymentIntent is the subset of a payment intent the ledger reads.
type PaymentIntent struct {
	ID            string
	Amount        int64
	Currency      string
	FailureReason string
}

// CheckoutCompleted drives the full ledger pipeline.
type CheckoutCompleted struct {
	envelope
	Session CheckoutSession
}

// PaymentSucceeded only updates the order status.
type PaymentSucceeded struct {
	envelope
	PaymentIntent PaymentIntent
}

// PaymentFailed only updates the order status.
type PaymentFailed struct {
	envelope
	PaymentIntent PaymentIntent
}

// Ignored is any event type the ledger does not act on.
type Ignored struct {
	envelope
}

type sessionObject struct {
	ID              string `json:"id"`
	AmountTotal     int64  `json:"amount_total"`
	Currency        string `json:"currency"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentIntent     string            `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type paymentIntentObject struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// ParseEvent decodes an already verified payload into an Event variant.
func ParseEvent(payload []byte) (Event, error) {
	const op = "paymentprovider.ParseEvent"

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("failed to unmarshal event envelope: %w", err))
	}
	if env.Type == "" {
		return nil, apperr.New(apperr.KindValidation, op, "event has no type")
	}

	switch env.Type {
	case TypeCheckoutSessionCompleted:
		var obj sessionObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("failed to unmarshal checkout session: %w", err))
		}
		if obj.ID == "" {
			return nil, apperr.New(apperr.KindValidation, op, "checkout session has no id")
		}
		return &CheckoutCompleted{envelope: env, Session: obj.toSession()}, nil

	case TypePaymentIntentSucceeded, TypePaymentIntentFailed:
		var obj paymentIntentObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("failed to unmarshal payment intent: %w", err))
		}
		pi := PaymentIntent{ID: obj.ID, Amount: obj.Amount, Currency: obj.Currency}
		if obj.LastPaymentError != nil {
			pi.FailureReason = obj.LastPaymentError.Message
		}
		if env.Type == TypePaymentIntentSucceeded {
			return &PaymentSucceeded{envelope: env, PaymentIntent: pi}, nil
		}
		return &PaymentFailed{envelope: env, PaymentIntent: pi}, nil

	default:
		return &Ignored{envelope: env}, nil
	}
}

func (o sessionObject) toSession() CheckoutSession {
	email := o.CustomerEmail
	if o.CustomerDetails != nil && o.CustomerDetails.Email != "" {
		email = o.CustomerDetails.Email
	}
	return CheckoutSession{
		ID:              o.ID,
		AmountTotal:     o.AmountTotal,
		Currency:        o.Currency,
		CustomerEmail:   email,
		PaymentIntentID: o.PaymentIntent,
		PaymentStatus:   o.PaymentStatus,
		ReferralCode:    o.Metadata["referral_code"],
	}
}
