package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gigmarket/api/internal/platform/auth"
	"github.com/gigmarket/api/internal/platform/httpx"
	"github.com/gigmarket/api/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes checkout and payment confirmation endpoints for authenticated clients.
type CheckoutHandlers struct {
	authn           *auth.Authenticator
	checkout        services.CheckoutService
	checkoutLimiter rateLimiter
	confirmLimiter  rateLimiter
	clock           func() time.Time
	idempotency     func(http.Handler) http.Handler

	checkoutPerMinute int
	confirmPerMinute  int
}

// CheckoutOption customises checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRateLimits caps per-user session creation and confirmation calls per minute. Zero disables a limit.
func WithCheckoutRateLimits(checkoutPerMinute, confirmPerMinute int) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.checkoutPerMinute = checkoutPerMinute
		h.confirmPerMinute = confirmPerMinute
	}
}

// WithCheckoutClock overrides the clock used by rate limiting.
func WithCheckoutClock(clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithCheckoutIdempotency wraps session creation with the Idempotency-Key middleware.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.checkoutLimiter = newKeyedRateLimiter(h.checkoutPerMinute, h.clock)
	h.confirmLimiter = newKeyedRateLimiter(h.confirmPerMinute, h.clock)
	return h
}

// Routes registers POST /checkout and POST /payment/confirm on the API root.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	create := group
	if h.idempotency != nil {
		create = create.With(h.idempotency)
	}
	create.Post("/checkout", h.createSession)
	group.Post("/payment/confirm", h.confirmPayment)
}

type checkoutRequest struct {
	GigID        string `json:"gig_id"`
	Instructions string `json:"instructions"`
	Contact      string `json:"contact"`
	Deadline     string `json:"deadline"`
	Provider     string `json:"provider"`
	SuccessURL   string `json:"success_url"`
	CancelURL    string `json:"cancel_url"`
}

type checkoutResponse struct {
	SessionReference string `json:"session_reference"`
	Provider         string `json:"provider"`
	RedirectURL      string `json:"redirect_url"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ExpiresAt        string `json:"expires_at,omitempty"`
}

type confirmPaymentRequest struct {
	SessionReference string `json:"session_reference"`
}

type confirmPaymentResponse struct {
	Order    orderPayload `json:"order"`
	Created  bool         `json:"created"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeServiceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.checkoutLimiter != nil && !h.checkoutLimiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts; try again shortly", http.StatusTooManyRequests))
		return
	}

	var req checkoutRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	if strings.TrimSpace(req.GigID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "gig_id is required", http.StatusBadRequest))
		return
	}
	deadline, err := parseOptionalTime(req.Deadline)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "deadline must be an RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutSessionCommand{
		GigID:        strings.TrimSpace(req.GigID),
		ClientID:     identity.UID,
		ClientEmail:  identity.Email,
		Instructions: req.Instructions,
		Contact:      req.Contact,
		Deadline:     deadline,
		Provider:     strings.TrimSpace(req.Provider),
		SuccessURL:   strings.TrimSpace(req.SuccessURL),
		CancelURL:    strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		SessionReference: result.SessionReference,
		Provider:         result.Provider,
		RedirectURL:      result.RedirectURL,
		Amount:           result.Amount,
		Currency:         result.Currency,
		ExpiresAt:        formatTimePtr(result.ExpiresAt),
	})
}

func (h *CheckoutHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeServiceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.confirmLimiter != nil && !h.confirmLimiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many confirmation attempts; try again shortly", http.StatusTooManyRequests))
		return
	}

	var req confirmPaymentRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	reference := strings.TrimSpace(req.SessionReference)
	if reference == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session_reference is required", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		SessionReference: reference,
		ActorID:          identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildConfirmPaymentResponse(result))
}

func buildConfirmPaymentResponse(result services.ConfirmPaymentResult) confirmPaymentResponse {
	resp := confirmPaymentResponse{
		Order:   buildOrderPayload(result.Order),
		Created: result.Created,
	}
	for _, warning := range result.Warnings {
		if warning != nil {
			resp.Warnings = append(resp.Warnings, warning.Error())
		}
	}
	return resp
}
