package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/payments"
	"github.com/gigmarket/api/internal/repositories"
)

const (
	checkoutIDPrefix         = "chk_"
	defaultSessionTTL        = time.Hour
	maxInstructionsLength    = 4000
	maxContactLength         = 200
	manualReviewGig          = "gig_unavailable"
	manualReviewAmount       = "amount_mismatch"
	checkoutMetadataGig      = "gigId"
	checkoutMetadataClient   = "clientId"
	checkoutMetadataProvider = "providerId"
	checkoutMetadataCheckout = "checkoutId"
)

// PaymentGateway is the subset of payments.Manager used by checkout.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, hint payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupSession(ctx context.Context, providerKey, sessionID string) (payments.SessionDetails, error)
}

// CheckoutServiceDeps bundles collaborators required to construct a CheckoutService.
type CheckoutServiceDeps struct {
	Gigs        repositories.GigRepository
	Orders      repositories.OrderRepository
	Sessions    repositories.CheckoutSessionRepository
	Payments    PaymentGateway
	Notifier    Notifier
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
	SuccessURL  string
	CancelURL   string
	SessionTTL  time.Duration
}

type checkoutService struct {
	gigs       repositories.GigRepository
	orders     repositories.OrderRepository
	sessions   repositories.CheckoutSessionRepository
	payments   PaymentGateway
	notifier   Notifier
	clock      func() time.Time
	newID      func() string
	logger     Logger
	successURL string
	cancelURL  string
	sessionTTL time.Duration
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Gigs == nil:
		return nil, errors.New("checkout service: gig repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Sessions == nil:
		return nil, errors.New("checkout service: checkout session repository is required")
	case deps.Payments == nil:
		return nil, errors.New("checkout service: payment gateway is required")
	case deps.Notifier == nil:
		return nil, errors.New("checkout service: notifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return checkoutIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &checkoutService{
		gigs:     deps.Gigs,
		orders:   deps.Orders,
		sessions: deps.Sessions,
		payments: deps.Payments,
		notifier: deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:      idGen,
		logger:     logger,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		sessionTTL: ttl,
	}, nil
}

// CreateCheckoutSession opens a gateway session for an approved gig and snapshots the price. No order exists
// until the payment is confirmed.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error) {
	gigID := strings.TrimSpace(cmd.GigID)
	clientID := strings.TrimSpace(cmd.ClientID)
	if gigID == "" {
		return CheckoutSessionResult{}, fmt.Errorf("%w: gig id is required", ErrValidation)
	}
	if clientID == "" {
		return CheckoutSessionResult{}, fmt.Errorf("%w: client id is required", ErrValidation)
	}

	now := s.clock()
	if cmd.Deadline != nil && !cmd.Deadline.After(now) {
		return CheckoutSessionResult{}, fmt.Errorf("%w: deadline must be in the future", ErrValidation)
	}
	instructions := limitRunes(sanitizeText(cmd.Instructions), maxInstructionsLength)
	contact := limitRunes(sanitizeText(cmd.Contact), maxContactLength)

	gig, err := s.gigs.FindByID(ctx, gigID)
	if err != nil {
		return CheckoutSessionResult{}, mapRepositoryError(err, ErrGigNotFound, nil)
	}
	if !gig.Purchasable() {
		return CheckoutSessionResult{}, fmt.Errorf("%w: gig %s is %s", ErrGigUnavailable, gig.ID, gig.Status)
	}
	if gig.ProviderID == clientID {
		return CheckoutSessionResult{}, fmt.Errorf("%w: providers cannot purchase their own gig", ErrValidation)
	}

	successURL := firstNonEmpty(cmd.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(cmd.CancelURL, s.cancelURL)
	checkoutID := s.newID()
	expiresAt := now.Add(s.sessionTTL)

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{
		PreferredProvider: cmd.Provider,
		Currency:          gig.Currency,
	}, payments.CheckoutSessionRequest{
		Amount:        gig.Price,
		Currency:      gig.Currency,
		ProductName:   gig.Title,
		CustomerEmail: strings.TrimSpace(cmd.ClientEmail),
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		Metadata: map[string]string{
			checkoutMetadataGig:      gig.ID,
			checkoutMetadataClient:   clientID,
			checkoutMetadataProvider: gig.ProviderID,
			checkoutMetadataCheckout: checkoutID,
		},
		IdempotencyKey: checkoutID,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return CheckoutSessionResult{}, fmt.Errorf("checkout: create gateway session: %w", err)
	}
	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt.UTC()
	}

	record := domain.CheckoutSession{
		Reference:    session.ID,
		Provider:     session.Provider,
		GigID:        gig.ID,
		GigTitle:     gig.Title,
		ProviderID:   gig.ProviderID,
		ClientID:     clientID,
		Amount:       gig.Price,
		Currency:     gig.Currency,
		Instructions: instructions,
		Contact:      contact,
		Deadline:     cmd.Deadline,
		RedirectURL:  session.RedirectURL,
		ExpiresAt:    &expiresAt,
		CreatedAt:    now,
	}
	if err := s.sessions.Insert(ctx, record); err != nil {
		return CheckoutSessionResult{}, mapRepositoryError(err, nil, nil)
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"sessionRef": session.ID,
		"provider":   session.Provider,
		"gigId":      gig.ID,
		"clientId":   clientID,
		"amount":     gig.Price,
		"currency":   gig.Currency,
	})

	return CheckoutSessionResult{
		SessionReference: session.ID,
		Provider:         session.Provider,
		RedirectURL:      session.RedirectURL,
		Amount:           gig.Price,
		Currency:         gig.Currency,
		ExpiresAt:        &expiresAt,
	}, nil
}

// ConfirmPayment materialises exactly one order per paid session. Browser returns and gateway webhooks converge
// here; the order id derived from the session reference makes concurrent calls collapse onto one record.
func (s *checkoutService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error) {
	ref := strings.TrimSpace(cmd.SessionReference)
	if ref == "" {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: session reference is required", ErrValidation)
	}

	session, err := s.sessions.FindByReference(ctx, ref)
	if err != nil {
		return ConfirmPaymentResult{}, mapRepositoryError(err, ErrSessionNotFound, nil)
	}
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" && actor != session.ClientID {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, ref)
	}

	orderID := domain.OrderIDForSession(ref)
	existing, err := s.orders.FindByID(ctx, orderID)
	switch {
	case err == nil:
		return ConfirmPaymentResult{Order: existing, Warnings: orderWarnings(existing)}, nil
	case !isRepositoryNotFound(err):
		return ConfirmPaymentResult{}, mapRepositoryError(err, nil, nil)
	}

	details, err := s.payments.LookupSession(ctx, session.Provider, ref)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return ConfirmPaymentResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, ref)
		}
		return ConfirmPaymentResult{}, fmt.Errorf("checkout: lookup gateway session: %w", err)
	}
	if !details.Paid() {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: session %s is %s", ErrPaymentNotCompleted, ref, details.PaymentStatus)
	}

	now := s.clock()
	order := Order{
		ID:                orderID,
		GigID:             session.GigID,
		GigTitle:          session.GigTitle,
		ProviderID:        session.ProviderID,
		ClientID:          session.ClientID,
		Price:             session.Amount,
		Currency:          session.Currency,
		Status:            domain.OrderStatusBooked,
		Instructions:      session.Instructions,
		Contact:           session.Contact,
		Deadline:          session.Deadline,
		PaymentSessionRef: ref,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if details.Amount > 0 && (details.Amount != session.Amount || !strings.EqualFold(details.Currency, session.Currency)) {
		s.logger(ctx, "checkout.payment.amount_mismatch", map[string]any{
			"sessionRef": ref,
			"expected":   session.Amount,
			"collected":  details.Amount,
			"currency":   details.Currency,
		})
		order.Flags = order.Flags.WithManualReview(manualReviewAmount)
	}

	gig, err := s.gigs.FindByID(ctx, session.GigID)
	switch {
	case err == nil && gig.Purchasable():
	case err == nil || isRepositoryNotFound(err):
		order.Flags = order.Flags.WithManualReview(manualReviewGig)
	default:
		return ConfirmPaymentResult{}, mapRepositoryError(err, nil, nil)
	}

	stored, created, err := s.orders.CreateIfAbsent(ctx, order)
	if err != nil {
		return ConfirmPaymentResult{}, mapRepositoryError(err, nil, nil)
	}
	if created {
		s.logger(ctx, "checkout.order.created", map[string]any{
			"orderId":      stored.ID,
			"sessionRef":   ref,
			"gigId":        stored.GigID,
			"manualReview": stored.Flags.ManualReview,
		})
		s.notifier.Emit(ctx, newOrderNotification(stored))
	}

	return ConfirmPaymentResult{Order: stored, Created: created, Warnings: orderWarnings(stored)}, nil
}

func orderWarnings(order Order) []error {
	if !order.Flags.ManualReview {
		return nil
	}
	var warnings []error
	for _, reason := range order.Flags.Reasons() {
		switch reason {
		case manualReviewGig:
			warnings = append(warnings, fmt.Errorf("%w: order %s flagged for manual review", ErrGigUnavailable, order.ID))
		case manualReviewAmount:
			warnings = append(warnings, fmt.Errorf("%w: order %s flagged for manual review", ErrAmountMismatch, order.ID))
		}
	}
	return warnings
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
