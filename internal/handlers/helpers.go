package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/platform/auth"
	"github.com/gigmarket/api/internal/platform/httpx"
	"github.com/gigmarket/api/internal/platform/observability"
	"github.com/gigmarket/api/internal/platform/pagination"
	"github.com/gigmarket/api/internal/repositories"
	"github.com/gigmarket/api/internal/services"
)

const defaultBodyLimit = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

var listPagination = pagination.Options{DefaultPageSize: 20, MaxPageSize: 100}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and decodes the request body, writing the error response itself when it fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func parseListPagination(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	pager, err := pagination.FromRequest(r, listPagination)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return pager, true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

type serviceErrorMapping struct {
	target  error
	code    string
	status  int
	message string
}

// serviceErrors is checked in order; the first match decides the response.
var serviceErrors = []serviceErrorMapping{
	{services.ErrValidation, "invalid_request", http.StatusBadRequest, ""},
	{services.ErrIllegalTransition, "illegal_transition", http.StatusConflict, ""},
	{services.ErrMissingDeliverable, "missing_deliverable", http.StatusUnprocessableEntity, ""},
	{services.ErrMissingFeedback, "missing_feedback", http.StatusUnprocessableEntity, ""},
	{services.ErrRoleMismatch, "role_mismatch", http.StatusForbidden, ""},
	{services.ErrDuplicateReview, "already_reviewed", http.StatusConflict, "a review for this order and role already exists"},
	{services.ErrOrderNotCompleted, "order_not_completed", http.StatusConflict, ""},
	{services.ErrPaymentNotCompleted, "payment_not_completed", http.StatusPaymentRequired, "payment has not been completed"},
	{services.ErrSessionNotFound, "session_not_found", http.StatusNotFound, "checkout session not found"},
	{services.ErrGigUnavailable, "gig_unavailable", http.StatusConflict, "gig is not available for purchase"},
	{services.ErrConcurrencyConflict, "concurrency_conflict", http.StatusConflict, "order changed concurrently; retry"},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound, "order not found"},
	{services.ErrGigNotFound, "gig_not_found", http.StatusNotFound, "gig not found"},
	{services.ErrUnavailable, "service_unavailable", http.StatusServiceUnavailable, "storage temporarily unavailable"},
}

// writeServiceError translates service sentinels into the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, mapping := range serviceErrors {
		if !errors.Is(err, mapping.target) {
			continue
		}
		message := mapping.message
		if message == "" {
			message = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.NewError(mapping.code, message, mapping.status))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("deadline_exceeded", "request timed out", http.StatusGatewayTimeout))
		return
	}

	observability.FromContext(ctx).Error("handlers: unexpected service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}
