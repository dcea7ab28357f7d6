package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gigmarket/api/internal/platform/auth"
	"github.com/gigmarket/api/internal/repositories"
	"github.com/gigmarket/api/internal/services"
)

var handlerNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newAuthedRequest(method, target, body, uid string, roles ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles}))
	}
	return req
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeResponse[map[string]any](t, rr)
	code, _ := body["error"].(string)
	return code
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: rating out of range", services.ErrValidation), http.StatusBadRequest, "invalid_request"},
		{fmt.Errorf("%w: booked to completed", services.ErrIllegalTransition), http.StatusConflict, "illegal_transition"},
		{services.ErrMissingDeliverable, http.StatusUnprocessableEntity, "missing_deliverable"},
		{services.ErrMissingFeedback, http.StatusUnprocessableEntity, "missing_feedback"},
		{services.ErrRoleMismatch, http.StatusForbidden, "role_mismatch"},
		{services.ErrDuplicateReview, http.StatusConflict, "already_reviewed"},
		{services.ErrOrderNotCompleted, http.StatusConflict, "order_not_completed"},
		{services.ErrPaymentNotCompleted, http.StatusPaymentRequired, "payment_not_completed"},
		{services.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{services.ErrGigUnavailable, http.StatusConflict, "gig_unavailable"},
		{services.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
		{fmt.Errorf("%w: ord_1", services.ErrOrderNotFound), http.StatusNotFound, "order_not_found"},
		{services.ErrGigNotFound, http.StatusNotFound, "gig_not_found"},
		{fmt.Errorf("lookup: %w", repositories.NewStoreError("orders.find", repositories.StoreErrorUnavailable, errors.New("connection refused"))), http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(httptest.NewRequest(http.MethodGet, "/", nil).Context(), rr, tc.err)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestDecodeJSONBodyRejections(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		limit  int64
		status int
	}{
		{name: "empty", body: "", limit: 64, status: http.StatusBadRequest},
		{name: "malformed", body: "{", limit: 64, status: http.StatusBadRequest},
		{name: "too large", body: `{"feedback":"` + strings.Repeat("x", 100) + `"}`, limit: 64, status: http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			var dst map[string]any
			if decodeJSONBody(rr, req, tc.limit, &dst) {
				t.Fatalf("expected decode to fail")
			}
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}
