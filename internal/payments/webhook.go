package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails signature verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// WebhookEvent is the subset of a gateway event the order workflow reacts to.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	// Confirmable is true for events whose checkout session is paid or needs no payment.
	Confirmable bool
}

// StripeWebhookVerifier authenticates Stripe webhook deliveries with the endpoint signing secret.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier returns a verifier for the given whsec_ secret.
func NewStripeWebhookVerifier(secret string) (*StripeWebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	return &StripeWebhookVerifier{secret: secret}, nil
}

// Verify checks the Stripe-Signature header and extracts the checkout session reference.
func (v *StripeWebhookVerifier) Verify(payload []byte, signatureHeader string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return out, nil
	}
	if event.Data == nil {
		return WebhookEvent{}, errors.New("stripe: event missing data")
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	out.SessionID = session.ID
	// Delayed payment methods complete the session unpaid; their async_payment_succeeded event follows.
	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		out.Confirmable = session.ID != ""
	}
	return out, nil
}
