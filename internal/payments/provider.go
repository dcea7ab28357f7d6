package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PaymentStatus is the normalised payment state of a checkout session.
type PaymentStatus string

const (
	// PaymentStatusPaid means funds were collected and an order may be created.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusUnpaid covers open, processing and abandoned sessions.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusExpired means the session can no longer be paid.
	PaymentStatusExpired PaymentStatus = "expired"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrSessionNotFound is returned when the gateway does not know the session reference.
	ErrSessionNotFound = errors.New("payments: session not found")
)

// CheckoutSessionRequest captures the payload required to open a hosted checkout for one gig purchase.
type CheckoutSessionRequest struct {
	Amount         int64
	Currency       string
	ProductName    string
	Description    string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	ExpiresAt      time.Time
}

// CheckoutSession represents the gateway session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// SessionDetails is the gateway's current view of a session, used at confirmation time.
type SessionDetails struct {
	ID            string
	Provider      string
	PaymentStatus PaymentStatus
	Amount        int64
	Currency      string
	Metadata      map[string]string
}

// Paid reports whether the session may materialise an order.
func (d SessionDetails) Paid() bool {
	return d.PaymentStatus == PaymentStatusPaid
}

// Provider defines the contract for payment gateway adapters.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// LookupSession returns ErrSessionNotFound (possibly wrapped) for unknown ids.
	LookupSession(ctx context.Context, sessionID string) (SessionDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normaliseKey(provider)
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = normaliseKey(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers. "stripe" is the default when registered.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{
		providers:      make(map[string]Provider, len(providers)),
		currencyRoutes: make(map[string]string),
	}
	for k, v := range providers {
		key := normaliseKey(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		m.providers[key] = v
	}
	if _, ok := m.providers["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(hint PaymentContext) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := normaliseKey(hint.PreferredProvider); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if key, ok := m.currencyRoutes[strings.ToUpper(strings.TrimSpace(hint.Currency))]; ok {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return m.defaultProvider, p, nil
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession delegates to the resolved provider and stamps the provider key on the result.
func (m *Manager) CreateCheckoutSession(ctx context.Context, hint PaymentContext, req CheckoutSessionRequest) (CheckoutSession, error) {
	key, provider, err := m.resolveProvider(hint)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = key
	return session, nil
}

// LookupSession asks the provider that created the session for its current state.
func (m *Manager) LookupSession(ctx context.Context, providerKey, sessionID string) (SessionDetails, error) {
	key, provider, err := m.resolveProvider(PaymentContext{PreferredProvider: providerKey})
	if err != nil {
		return SessionDetails{}, err
	}
	details, err := provider.LookupSession(ctx, sessionID)
	if err != nil {
		return SessionDetails{}, err
	}
	details.Provider = key
	return details, nil
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
