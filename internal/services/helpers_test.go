package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/payments"
	"github.com/gigmarket/api/internal/repositories"
	"github.com/gigmarket/api/internal/repositories/memory"
)

var testNow = time.Date(2025, time.April, 2, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Emit(_ context.Context, notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

func newTestRegistry() repositories.Registry {
	return memory.NewRegistry(memory.NewStore())
}

func seedOrder(t *testing.T, reg repositories.Registry, order Order) Order {
	t.Helper()
	if order.ID == "" {
		order.ID = "ord_test"
	}
	if order.ProviderID == "" {
		order.ProviderID = "prov-1"
	}
	if order.ClientID == "" {
		order.ClientID = "cli-1"
	}
	if order.GigID == "" {
		order.GigID = "gig_1"
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = testNow.Add(-time.Hour)
		order.UpdatedAt = order.CreatedAt
	}
	stored, created, err := reg.Orders().CreateIfAbsent(context.Background(), order)
	if err != nil || !created {
		t.Fatalf("seed order: created=%v err=%v", created, err)
	}
	return stored
}

func seedGig(t *testing.T, reg repositories.Registry, gig Gig) Gig {
	t.Helper()
	if gig.ID == "" {
		gig.ID = "gig_1"
	}
	if gig.ProviderID == "" {
		gig.ProviderID = "prov-1"
	}
	if gig.Title == "" {
		gig.Title = "Logo design"
	}
	if gig.Price == 0 {
		gig.Price = 500
	}
	if gig.Currency == "" {
		gig.Currency = "USD"
	}
	if gig.DeliveryDays == 0 {
		gig.DeliveryDays = 3
	}
	if gig.Status == "" {
		gig.Status = domain.GigStatusApproved
	}
	if err := reg.Gigs().Insert(context.Background(), gig); err != nil {
		t.Fatalf("seed gig: %v", err)
	}
	return gig
}

type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	requests []payments.CheckoutSessionRequest
	status   map[string]payments.PaymentStatus
	amounts  map[string]int64
	lookups  int
	err      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{status: map[string]payments.PaymentStatus{}, amounts: map[string]int64{}}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, hint payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return payments.CheckoutSession{}, g.err
	}
	g.seq++
	id := fmt.Sprintf("cs_test_%d", g.seq)
	g.requests = append(g.requests, req)
	g.status[id] = payments.PaymentStatusUnpaid
	g.amounts[id] = req.Amount
	return payments.CheckoutSession{
		ID:          id,
		Provider:    "stripe",
		RedirectURL: "https://checkout.test/" + id,
		ExpiresAt:   req.ExpiresAt,
	}, nil
}

func (g *fakeGateway) LookupSession(_ context.Context, _ string, sessionID string) (payments.SessionDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	status, ok := g.status[sessionID]
	if !ok {
		return payments.SessionDetails{}, payments.ErrSessionNotFound
	}
	return payments.SessionDetails{
		ID:            sessionID,
		Provider:      "stripe",
		PaymentStatus: status,
		Amount:        g.amounts[sessionID],
		Currency:      "USD",
	}, nil
}

func (g *fakeGateway) markPaid(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[sessionID] = payments.PaymentStatusPaid
}

func (g *fakeGateway) collect(sessionID string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.amounts[sessionID] = amount
}
