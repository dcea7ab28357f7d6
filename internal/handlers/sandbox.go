package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gigmarket/api/internal/payments"
	"github.com/gigmarket/api/internal/platform/httpx"
)

// SandboxPayer completes sandbox checkout sessions.
type SandboxPayer interface {
	MarkPaid(sessionID string) error
}

// SandboxCheckoutHandlers stand in for the hosted checkout page when the sandbox gateway is active.
type SandboxCheckoutHandlers struct {
	payer SandboxPayer
}

// NewSandboxCheckoutHandlers constructs the sandbox checkout page handlers.
func NewSandboxCheckoutHandlers(payer SandboxPayer) *SandboxCheckoutHandlers {
	return &SandboxCheckoutHandlers{payer: payer}
}

// Routes registers the sandbox checkout page under /sandbox.
func (h *SandboxCheckoutHandlers) Routes(r chi.Router) {
	r.Get("/checkout/{sessionID}", h.pay)
}

type sandboxPaymentResponse struct {
	SessionReference string `json:"session_reference"`
	Status           string `json:"status"`
}

func (h *SandboxCheckoutHandlers) pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sandbox_unavailable", "sandbox gateway is not enabled", http.StatusNotFound))
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session id is required", http.StatusBadRequest))
		return
	}
	if err := h.payer.MarkPaid(sessionID); err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("sandbox_error", "unable to complete sandbox payment", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, sandboxPaymentResponse{SessionReference: sessionID, Status: string(payments.PaymentStatusPaid)})
}
