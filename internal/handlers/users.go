package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/platform/auth"
	"github.com/gigmarket/api/internal/platform/httpx"
	"github.com/gigmarket/api/internal/services"
)

// UserHandlers serves per-user rating aggregates and received reviews.
type UserHandlers struct {
	authn   *auth.Authenticator
	ratings services.RatingService
	reviews services.ReviewService
}

// NewUserHandlers constructs user handlers guarded by Firebase authentication.
func NewUserHandlers(authn *auth.Authenticator, ratings services.RatingService, reviews services.ReviewService) *UserHandlers {
	return &UserHandlers{authn: authn, ratings: ratings, reviews: reviews}
}

// Routes registers user endpoints relative to the /users mount.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/{userID}/ratings", h.getRatings)
	r.Get("/{userID}/reviews", h.listReviews)
}

type userRatingsResponse struct {
	UserID     string        `json:"user_id"`
	AsProvider ratingPayload `json:"as_provider"`
	AsClient   ratingPayload `json:"as_client"`
	UpdatedAt  string        `json:"updated_at,omitempty"`
}

func (h *UserHandlers) getRatings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ratings == nil {
		writeServiceUnavailable(ctx, w, "ratings")
		return
	}
	ratings, err := h.ratings.UserRatings(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userRatingsResponse{
		UserID:     ratings.UserID,
		AsProvider: buildRatingPayload(ratings.AsProvider),
		AsClient:   buildRatingPayload(ratings.AsClient),
		UpdatedAt:  formatTime(ratings.UpdatedAt),
	})
}

func (h *UserHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeServiceUnavailable(ctx, w, "reviews")
		return
	}
	pager, ok := parseListPagination(w, r)
	if !ok {
		return
	}

	filter := services.ReviewListFilter{
		RevieweeID: chi.URLParam(r, "userID"),
		Pagination: pager,
	}
	if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("role"))); raw != "" {
		role, ok := parseReviewRole(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "role must be provider or client", http.StatusBadRequest))
			return
		}
		filter.Role = &role
	}

	page, err := h.reviews.ReviewsForUser(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildReviewPayload))
}

// parseReviewRole maps the role the user was reviewed as to the review kind that rates it.
// Providers are rated by client reviews; clients by provider reviews.
func parseReviewRole(raw string) (domain.ReviewRole, bool) {
	switch raw {
	case string(domain.ActorProvider), string(domain.ReviewRoleClient):
		return domain.ReviewRoleClient, true
	case string(domain.ActorClient), string(domain.ReviewRoleProvider):
		return domain.ReviewRoleProvider, true
	default:
		return "", false
	}
}
