package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gigmarket/api/internal/payments"
)

func TestSandboxCheckoutMarksSessionPaid(t *testing.T) {
	sandbox := payments.NewSandboxProvider("http://localhost:8080", false)
	session, err := sandbox.CreateCheckoutSession(context.Background(), payments.CheckoutSessionRequest{Amount: 5000, Currency: "usd"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	router := NewRouter(WithSandboxRoutes(NewSandboxCheckoutHandlers(sandbox).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sandbox/checkout/"+session.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse[sandboxPaymentResponse](t, rr)
	if payload.SessionReference != session.ID || payload.Status != "paid" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	details, err := sandbox.LookupSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !details.Paid() {
		t.Fatalf("expected session to be paid")
	}
}

func TestSandboxCheckoutUnknownSession(t *testing.T) {
	router := NewRouter(WithSandboxRoutes(NewSandboxCheckoutHandlers(payments.NewSandboxProvider("", false)).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sandbox/checkout/cs_missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "session_not_found" {
		t.Fatalf("unexpected error code %q", code)
	}
}
