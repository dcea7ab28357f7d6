package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gigmarket/api/internal/payments"
	"github.com/gigmarket/api/internal/platform/httpx"
	"github.com/gigmarket/api/internal/platform/observability"
	"github.com/gigmarket/api/internal/services"
)

const (
	maxWebhookBody        = 64 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookVerifier authenticates a gateway delivery and extracts the event.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (payments.WebhookEvent, error)
}

// PaymentWebhookHandlers turns gateway callbacks into payment confirmations.
type PaymentWebhookHandlers struct {
	verifier WebhookVerifier
	checkout services.CheckoutService
}

// NewPaymentWebhookHandlers constructs webhook handlers for the Stripe endpoint.
func NewPaymentWebhookHandlers(verifier WebhookVerifier, checkout services.CheckoutService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{verifier: verifier, checkout: checkout}
}

// Routes registers POST /payments/stripe relative to the /webhooks mount.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/stripe", h.handleStripe)
}

type webhookAck struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	Ignored  bool   `json:"ignored,omitempty"`
}

func (h *PaymentWebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil || h.checkout == nil {
		writeServiceUnavailable(ctx, w, "payment_webhooks")
		return
	}

	payload, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_webhook", err.Error(), status))
		return
	}

	event, err := h.verifier.Verify(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_webhook", "webhook payload could not be parsed", http.StatusBadRequest))
		return
	}

	logger := observability.FromContext(ctx).With(zap.String("eventId", event.ID), zap.String("eventType", event.Type))
	if !event.Confirmable || event.SessionID == "" {
		logger.Debug("payment webhook ignored")
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, EventID: event.ID, Ignored: true})
		return
	}

	result, err := h.checkout.ConfirmPayment(ctx, services.ConfirmPaymentCommand{SessionReference: event.SessionID})
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			// Unknown sessions are acknowledged, not retried.
			logger.Warn("payment webhook for unknown session", zap.String("sessionId", event.SessionID))
			writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, EventID: event.ID, Ignored: true})
			return
		}
		if errors.Is(err, services.ErrPaymentNotCompleted) {
			logger.Info("payment webhook before payment settled", zap.String("sessionId", event.SessionID))
			writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, EventID: event.ID, Ignored: true})
			return
		}
		logger.Error("payment webhook confirmation failed", zap.Error(err))
		writeServiceError(ctx, w, err)
		return
	}
	logWebhookWarnings(logger, result)
	writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, EventID: event.ID, OrderID: result.Order.ID})
}

func logWebhookWarnings(logger *zap.Logger, result services.ConfirmPaymentResult) {
	for _, warning := range result.Warnings {
		if warning != nil {
			logger.Warn("payment confirmed with warning", zap.String("orderId", result.Order.ID), zap.Error(warning))
		}
	}
}
