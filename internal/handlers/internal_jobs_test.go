package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/services"
)

type stubOutboxRetrier struct {
	limits []int
	result services.RetryResult
}

func (s *stubOutboxRetrier) RetryPending(_ context.Context, limit int) (services.RetryResult, error) {
	s.limits = append(s.limits, limit)
	return s.result, nil
}

type reconcilingRatingService struct {
	stubRatingService
	commands []services.ReconcileRatingsCommand
	result   services.ReconcileRatingsResult
}

func (s *reconcilingRatingService) Reconcile(_ context.Context, cmd services.ReconcileRatingsCommand) (services.ReconcileRatingsResult, error) {
	s.commands = append(s.commands, cmd)
	return s.result, s.err
}

func newInternalRouter(retrier OutboxRetrier, ratings services.RatingService) chi.Router {
	r := chi.NewRouter()
	r.Route("/internal", NewInternalJobHandlers(retrier, ratings, 50).Routes)
	return r
}

func TestInternalRetryNotifications(t *testing.T) {
	retrier := &stubOutboxRetrier{result: services.RetryResult{Attempted: 3, Delivered: 2, Failed: 1}}
	router := newInternalRouter(retrier, &reconcilingRatingService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/notifications:retry", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeResponse[retryNotificationsResponse](t, rr); resp.Delivered != 2 || resp.Failed != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/notifications:retry?limit=5000", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if retrier.limits[0] != 50 || retrier.limits[1] != maxRetryBatch {
		t.Fatalf("unexpected limits %v", retrier.limits)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/notifications:retry?limit=-1", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestInternalReconcileRatings(t *testing.T) {
	ratings := &reconcilingRatingService{result: services.ReconcileRatingsResult{
		Checked: 3,
		Repaired: []services.RatingDrift{{
			Target:   domain.RatingTarget{Kind: domain.RatingTargetGig, ID: "gig_1"},
			Stored:   domain.RatingAggregate{Sum: 9, Count: 3},
			Computed: domain.RatingAggregate{Sum: 4, Count: 1},
		}},
	}}
	router := newInternalRouter(&stubOutboxRetrier{}, ratings)

	req := newAuthedRequest(http.MethodPost, "/internal/ratings:reconcile", `{"gig_ids":["gig_1"],"user_ids":["prov-1"]}`, "")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cmd := ratings.commands[0]; len(cmd.GigIDs) != 1 || cmd.UserIDs[0] != "prov-1" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	resp := decodeResponse[reconcileRatingsResponse](t, rr)
	if resp.Checked != 3 || len(resp.Repaired) != 1 || resp.Repaired[0].Kind != "gig" || resp.Repaired[0].Computed.Average != 4 {
		t.Fatalf("unexpected response %+v", resp)
	}

	ratings.err = services.ErrValidation
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/internal/ratings:reconcile", `{}`, ""))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty selection, got %d", rr.Code)
	}
}
