package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SandboxProvider is an in-process gateway for local runs. Sessions are created unpaid unless AutoPay is
// set; MarkPaid flips a session to paid the way a completed hosted checkout would.
type SandboxProvider struct {
	AutoPay  bool
	BaseURL  string
	Clock    func() time.Time
	mu       sync.Mutex
	sessions map[string]SessionDetails
}

// NewSandboxProvider constructs an empty sandbox gateway.
func NewSandboxProvider(baseURL string, autoPay bool) *SandboxProvider {
	return &SandboxProvider{
		AutoPay:  autoPay,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Clock:    time.Now,
		sessions: make(map[string]SessionDetails),
	}
}

// CreateCheckoutSession records a session and returns a redirect to the sandbox checkout page.
func (p *SandboxProvider) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	now := p.Clock().UTC()
	id := "cs_sandbox_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String())

	status := PaymentStatusUnpaid
	if p.AutoPay {
		status = PaymentStatusPaid
	}
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	p.mu.Lock()
	p.sessions[id] = SessionDetails{
		ID:            id,
		Provider:      "sandbox",
		PaymentStatus: status,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		Metadata:      metadata,
	}
	p.mu.Unlock()

	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(time.Hour)
	}
	return CheckoutSession{
		ID:          id,
		Provider:    "sandbox",
		RedirectURL: fmt.Sprintf("%s/sandbox/checkout/%s", p.BaseURL, id),
		ExpiresAt:   expiresAt,
	}, nil
}

// LookupSession returns the recorded session state.
func (p *SandboxProvider) LookupSession(_ context.Context, sessionID string) (SessionDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	details, ok := p.sessions[sessionID]
	if !ok {
		return SessionDetails{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return details, nil
}

// MarkPaid flips a sandbox session to paid. Unknown ids return ErrSessionNotFound.
func (p *SandboxProvider) MarkPaid(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	details, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	details.PaymentStatus = PaymentStatusPaid
	p.sessions[sessionID] = details
	return nil
}
