package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gigmarket/api/internal/platform/auth"
	"github.com/gigmarket/api/internal/platform/httpx"
	"github.com/gigmarket/api/internal/platform/observability"
	"github.com/gigmarket/api/internal/services"
)

const (
	defaultRetryBatch = 100
	maxRetryBatch     = 1000
)

// OutboxRetrier re-publishes pending notifications from the outbox.
type OutboxRetrier interface {
	RetryPending(ctx context.Context, limit int) (services.RetryResult, error)
}

// InternalJobHandlers exposes maintenance endpoints invoked by the scheduler.
// The /internal mount is expected to sit behind OIDC verification.
type InternalJobHandlers struct {
	notifications OutboxRetrier
	ratings       services.RatingService
	retryBatch    int
}

// NewInternalJobHandlers constructs job handlers. retryBatch bounds a retry run when the caller omits limit.
func NewInternalJobHandlers(notifications OutboxRetrier, ratings services.RatingService, retryBatch int) *InternalJobHandlers {
	if retryBatch <= 0 {
		retryBatch = defaultRetryBatch
	}
	return &InternalJobHandlers{notifications: notifications, ratings: ratings, retryBatch: retryBatch}
}

// Routes registers job endpoints relative to the /internal mount.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/notifications:retry", h.retryNotifications)
	r.Post("/ratings:reconcile", h.reconcileRatings)
}

type retryNotificationsResponse struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type reconcileRatingsRequest struct {
	GigIDs  []string `json:"gig_ids"`
	UserIDs []string `json:"user_ids"`
}

type ratingDriftPayload struct {
	Kind     string        `json:"kind"`
	ID       string        `json:"id"`
	Stored   ratingPayload `json:"stored"`
	Computed ratingPayload `json:"computed"`
}

type reconcileRatingsResponse struct {
	Checked  int                  `json:"checked"`
	Repaired []ratingDriftPayload `json:"repaired"`
}

func (h *InternalJobHandlers) retryNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		writeServiceUnavailable(ctx, w, "notifications")
		return
	}

	limit := h.retryBatch
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(parsed, maxRetryBatch)
	}

	result, err := h.notifications.RetryPending(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	jobLogger(ctx).Info("notification outbox retried",
		zap.Int("attempted", result.Attempted),
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed),
	)
	writeJSONResponse(w, http.StatusOK, retryNotificationsResponse{
		Attempted: result.Attempted,
		Delivered: result.Delivered,
		Failed:    result.Failed,
	})
}

func (h *InternalJobHandlers) reconcileRatings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ratings == nil {
		writeServiceUnavailable(ctx, w, "ratings")
		return
	}

	var req reconcileRatingsRequest
	if !decodeJSONBody(w, r, defaultBodyLimit, &req) {
		return
	}

	result, err := h.ratings.Reconcile(ctx, services.ReconcileRatingsCommand{GigIDs: req.GigIDs, UserIDs: req.UserIDs})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := reconcileRatingsResponse{
		Checked:  result.Checked,
		Repaired: make([]ratingDriftPayload, 0, len(result.Repaired)),
	}
	for _, drift := range result.Repaired {
		resp.Repaired = append(resp.Repaired, ratingDriftPayload{
			Kind:     string(drift.Target.Kind),
			ID:       drift.Target.ID,
			Stored:   buildRatingPayload(drift.Stored),
			Computed: buildRatingPayload(drift.Computed),
		})
	}
	jobLogger(ctx).Info("rating aggregates reconciled", zap.Int("checked", result.Checked), zap.Int("repaired", len(result.Repaired)))
	writeJSONResponse(w, http.StatusOK, resp)
}

func jobLogger(ctx context.Context) *zap.Logger {
	logger := observability.FromContext(ctx)
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		logger = logger.With(zap.String("caller", caller.Email), zap.String("callerSubject", caller.Subject))
	}
	return logger
}
