package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/platform/auth"
	"github.com/gigmarket/api/internal/services"
)

type stubGigService struct {
	created   []services.CreateGigCommand
	moderated []services.ModerateGigCommand
	gig       domain.Gig
	err       error
}

func (s *stubGigService) CreateGig(_ context.Context, cmd services.CreateGigCommand) (domain.Gig, error) {
	s.created = append(s.created, cmd)
	gig := s.gig
	gig.ProviderID = cmd.ProviderID
	gig.Status = domain.GigStatusPending
	return gig, s.err
}

func (s *stubGigService) GetGig(_ context.Context, gigID string) (domain.Gig, error) {
	if s.err != nil {
		return domain.Gig{}, s.err
	}
	gig := s.gig
	gig.ID = gigID
	return gig, nil
}

func (s *stubGigService) ModerateGig(_ context.Context, cmd services.ModerateGigCommand) (domain.Gig, error) {
	s.moderated = append(s.moderated, cmd)
	gig := s.gig
	gig.Status = cmd.Status
	return gig, s.err
}

type stubReviewService struct {
	submitted []services.SubmitReviewCommand
	gigIDs    []string
	filters   []services.ReviewListFilter
	page      domain.CursorPage[domain.Review]
	err       error
}

func (s *stubReviewService) SubmitReview(_ context.Context, cmd services.SubmitReviewCommand) (domain.Review, error) {
	s.submitted = append(s.submitted, cmd)
	if s.err != nil {
		return domain.Review{}, s.err
	}
	return domain.Review{
		ID:         "rev_001",
		OrderID:    cmd.OrderID,
		Role:       cmd.Role,
		Rating:     cmd.Rating,
		Comment:    cmd.Comment,
		ReviewerID: cmd.ReviewerID,
		CreatedAt:  handlerNow,
	}, nil
}

func (s *stubReviewService) ReviewsForGig(_ context.Context, gigID string, _ domain.Pagination) (domain.CursorPage[domain.Review], error) {
	s.gigIDs = append(s.gigIDs, gigID)
	return s.page, s.err
}

func (s *stubReviewService) ReviewsForUser(_ context.Context, filter services.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	s.filters = append(s.filters, filter)
	return s.page, s.err
}

type stubRatingService struct {
	ratings domain.UserRatings
	err     error
}

func (s *stubRatingService) UserRatings(_ context.Context, userID string) (domain.UserRatings, error) {
	ratings := s.ratings
	ratings.UserID = userID
	return ratings, s.err
}

func (s *stubRatingService) Reconcile(context.Context, services.ReconcileRatingsCommand) (services.ReconcileRatingsResult, error) {
	return services.ReconcileRatingsResult{}, s.err
}

func newCatalogueRouter(gigs services.GigService, reviews services.ReviewService, ratings services.RatingService) chi.Router {
	r := chi.NewRouter()
	r.Route("/gigs", NewGigHandlers(nil, gigs, reviews).Routes)
	r.Route("/reviews", NewReviewHandlers(nil, reviews).Routes)
	r.Route("/users", NewUserHandlers(nil, ratings, reviews).Routes)
	return r
}

func TestGigCreateAndRead(t *testing.T) {
	gigs := &stubGigService{gig: domain.Gig{
		ID:       "gig_1",
		Title:    "Logo design",
		Price:    500,
		Currency: "USD",
		Rating:   domain.RatingAggregate{Sum: 14, Count: 3},
	}}
	router := newCatalogueRouter(gigs, &stubReviewService{}, &stubRatingService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/gigs", `{"title":"Logo design","price":500,"currency":"usd","delivery_days":3}`, "prov-1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if cmd := gigs.created[0]; cmd.ProviderID != "prov-1" || cmd.DeliveryDays != 3 {
		t.Fatalf("unexpected create command %+v", cmd)
	}
	if resp := decodeResponse[gigPayload](t, rr); resp.Status != "pending" {
		t.Fatalf("expected pending gig, got %+v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/gigs/gig_1", "", "cli-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse[gigPayload](t, rr)
	if resp.Rating.Average != 4.67 || resp.Rating.Count != 3 {
		t.Fatalf("expected derived average 4.67 over 3, got %+v", resp.Rating)
	}
}

func TestGigModerationRequiresRole(t *testing.T) {
	gigs := &stubGigService{gig: domain.Gig{ID: "gig_1"}}
	router := newCatalogueRouter(gigs, &stubReviewService{}, &stubRatingService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/gigs/gig_1:moderate", `{"status":"approved"}`, "prov-1", auth.RoleMember))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", rr.Code)
	}
	if len(gigs.moderated) != 0 {
		t.Fatalf("expected no moderation call")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/gigs/gig_1:moderate", `{"status":"Approved"}`, "mod-1", auth.RoleModerator))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for moderator, got %d: %s", rr.Code, rr.Body.String())
	}
	if cmd := gigs.moderated[0]; cmd.GigID != "gig_1" || cmd.Status != domain.GigStatusApproved || cmd.ModeratorID != "mod-1" {
		t.Fatalf("unexpected moderation command %+v", cmd)
	}
}

func TestReviewSubmissionRoutesByRole(t *testing.T) {
	reviews := &stubReviewService{}
	router := newCatalogueRouter(&stubGigService{}, reviews, &stubRatingService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/reviews", `{"order_id":"ord_1","rating":5,"comment":"Great"}`, "cli-1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/reviews/provider", `{"order_id":"ord_1","rating":4}`, "prov-1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if reviews.submitted[0].Role != domain.ReviewRoleClient || reviews.submitted[0].ReviewerID != "cli-1" {
		t.Fatalf("unexpected client review command %+v", reviews.submitted[0])
	}
	if reviews.submitted[1].Role != domain.ReviewRoleProvider || reviews.submitted[1].ReviewerID != "prov-1" {
		t.Fatalf("unexpected provider review command %+v", reviews.submitted[1])
	}

	reviews.err = services.ErrDuplicateReview
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/reviews", `{"order_id":"ord_1","rating":5}`, "cli-1"))
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "already_reviewed" {
		t.Fatalf("expected 409 already_reviewed, got %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/reviews", `{"rating":5}`, "cli-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without order_id, got %d", rr.Code)
	}
}

func TestUserRatingsAndReviews(t *testing.T) {
	ratings := &stubRatingService{ratings: domain.UserRatings{
		AsProvider: domain.RatingAggregate{Sum: 9, Count: 2},
	}}
	reviews := &stubReviewService{page: domain.CursorPage[domain.Review]{Items: []domain.Review{{ID: "rev_001", Role: domain.ReviewRoleClient, Rating: 5}}}}
	router := newCatalogueRouter(&stubGigService{}, reviews, ratings)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/users/prov-1/ratings", "", "cli-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse[userRatingsResponse](t, rr)
	if resp.AsProvider.Average != 4.5 || resp.AsProvider.Count != 2 || resp.AsClient.Count != 0 || resp.AsClient.Average != 0 {
		t.Fatalf("unexpected ratings %+v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/users/prov-1/reviews?role=provider", "", "cli-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	filter := reviews.filters[0]
	if filter.RevieweeID != "prov-1" || filter.Role == nil || *filter.Role != domain.ReviewRoleClient {
		t.Fatalf("expected client reviews of the provider, got %+v", filter)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/users/prov-1/reviews?role=admin", "", "cli-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/gigs/gig_1/reviews?page_token=bad%20token", "", "cli-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed page token, got %d", rr.Code)
	}
}
