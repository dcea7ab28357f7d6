package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	session CheckoutSession
	details SessionDetails
	err     error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	f.lastOp = "create"
	return f.session, f.err
}

func (f *fakeProvider) LookupSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	f.lastOp = "lookup:" + sessionID
	return f.details, f.err
}

func TestManagerCreateCheckoutSessionUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_stripe"}}
	sandbox := &fakeProvider{session: CheckoutSession{ID: "cs_sandbox"}}

	mgr, err := NewManager(map[string]Provider{"stripe": stripe, "sandbox": sandbox})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "Sandbox"}, CheckoutSessionRequest{Currency: "USD"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "sandbox" {
		t.Fatalf("expected provider 'sandbox', got %q", session.Provider)
	}
	if stripe.lastOp != "" {
		t.Fatalf("expected stripe provider to remain unused")
	}
}

func TestManagerRoutesByCurrencyAndDefault(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_stripe"}}
	sandbox := &fakeProvider{session: CheckoutSession{ID: "cs_sandbox"}}

	mgr, err := NewManager(map[string]Provider{"stripe": stripe, "sandbox": sandbox},
		WithCurrencyRoutes(map[string]string{"jpy": "sandbox"}))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{Currency: "JPY"}, CheckoutSessionRequest{Currency: "JPY"})
	if err != nil || session.Provider != "sandbox" {
		t.Fatalf("expected sandbox routing, got %+v %v", session, err)
	}
	session, err = mgr.CreateCheckoutSession(ctx, PaymentContext{Currency: "USD"}, CheckoutSessionRequest{Currency: "USD"})
	if err != nil || session.Provider != "stripe" {
		t.Fatalf("expected stripe default, got %+v %v", session, err)
	}
}

func TestManagerLookupSession(t *testing.T) {
	stripe := &fakeProvider{details: SessionDetails{ID: "cs_1", PaymentStatus: PaymentStatusPaid}}
	mgr, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.LookupSession(context.Background(), "stripe", "cs_1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stripe.lastOp != "lookup:cs_1" || !details.Paid() || details.Provider != "stripe" {
		t.Fatalf("unexpected lookup result %+v (op %s)", details, stripe.lastOp)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{"stripe": &fakeProvider{}, "sandbox": &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.LookupSession(context.Background(), "paypal", "cs_1"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}

	mgr, err = NewManager(map[string]Provider{"a": &fakeProvider{}, "b": &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.CreateCheckoutSession(context.Background(), PaymentContext{}, CheckoutSessionRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider without default, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}

func TestSandboxProviderLifecycle(t *testing.T) {
	ctx := context.Background()
	sandbox := NewSandboxProvider("http://localhost:8080/", false)

	session, err := sandbox.CreateCheckoutSession(ctx, CheckoutSessionRequest{Amount: 500, Currency: "usd", Metadata: map[string]string{"gigId": "gig_1"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.RedirectURL != "http://localhost:8080/sandbox/checkout/"+session.ID {
		t.Fatalf("unexpected redirect %q", session.RedirectURL)
	}

	details, err := sandbox.LookupSession(ctx, session.ID)
	if err != nil || details.Paid() || details.Currency != "USD" || details.Metadata["gigId"] != "gig_1" {
		t.Fatalf("unexpected details %+v %v", details, err)
	}
	if err := sandbox.MarkPaid(session.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if details, _ := sandbox.LookupSession(ctx, session.ID); !details.Paid() {
		t.Fatalf("expected paid session")
	}
	if _, err := sandbox.LookupSession(ctx, "cs_missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
