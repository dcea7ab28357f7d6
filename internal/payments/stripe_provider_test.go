package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeStripeSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	return f.session, f.err
}

func (f *fakeStripeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestStripeProviderCreateCheckoutSession(t *testing.T) {
	expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeStripeSessions{session: &stripe.CheckoutSession{
		ID:        "cs_test_1",
		URL:       "https://checkout.stripe.com/c/pay/cs_test_1",
		ExpiresAt: expires.Unix(),
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{sessions: api})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:         500,
		Currency:       "USD",
		ProductName:    "Logo design",
		SuccessURL:     "https://app.test/success",
		CancelURL:      "https://app.test/cancel",
		Metadata:       map[string]string{"gigId": "gig_1", "clientId": "cli"},
		IdempotencyKey: "checkout:gig_1:cli",
		ExpiresAt:      expires,
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.ID != "cs_test_1" || session.RedirectURL == "" || !session.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %+v", session)
	}

	params := api.created
	if params == nil || len(params.LineItems) != 1 {
		t.Fatalf("expected one line item, got %+v", params)
	}
	price := params.LineItems[0].PriceData
	if *price.UnitAmount != 500 || *price.Currency != "usd" || *price.ProductData.Name != "Logo design" {
		t.Fatalf("unexpected price data %+v", price)
	}
	if params.Metadata["gigId"] != "gig_1" || params.PaymentIntentData.Metadata["clientId"] != "cli" {
		t.Fatalf("expected metadata copied to session and intent")
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey != "checkout:gig_1:cli" {
		t.Fatalf("expected idempotency key to be set")
	}
	if *params.ExpiresAt != expires.Unix() {
		t.Fatalf("expected expiry to be forwarded")
	}
}

func TestStripeProviderLookupSessionStatuses(t *testing.T) {
	cases := []struct {
		name    string
		session *stripe.CheckoutSession
		want    PaymentStatus
	}{
		{name: "paid", session: &stripe.CheckoutSession{ID: "cs_1", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid, AmountTotal: 500, Currency: "usd"}, want: PaymentStatusPaid},
		{name: "open", session: &stripe.CheckoutSession{ID: "cs_1", Status: stripe.CheckoutSessionStatusOpen, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}, want: PaymentStatusUnpaid},
		{name: "expired", session: &stripe.CheckoutSession{ID: "cs_1", Status: stripe.CheckoutSessionStatusExpired, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}, want: PaymentStatusExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider, err := NewStripeProvider(StripeProviderConfig{sessions: &fakeStripeSessions{session: tc.session}})
			if err != nil {
				t.Fatalf("NewStripeProvider: %v", err)
			}
			details, err := provider.LookupSession(context.Background(), "cs_1")
			if err != nil {
				t.Fatalf("LookupSession: %v", err)
			}
			if details.PaymentStatus != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, details.PaymentStatus)
			}
		})
	}
}

func TestStripeProviderLookupMissingSession(t *testing.T) {
	api := &fakeStripeSessions{err: &stripe.Error{Code: stripe.ErrorCodeResourceMissing, HTTPStatusCode: 404}}
	provider, err := NewStripeProvider(StripeProviderConfig{sessions: api})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	if _, err := provider.LookupSession(context.Background(), "cs_missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
