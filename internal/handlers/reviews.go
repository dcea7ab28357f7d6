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

const maxReviewRequestBody = 8 * 1024

// ReviewHandlers accepts reviews for completed orders.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs review handlers guarded by Firebase authentication.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{authn: authn, reviews: reviews}
}

// Routes registers POST / for client reviews and POST /provider for provider reviews.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.submit(domain.ReviewRoleClient))
	r.Post("/provider", h.submit(domain.ReviewRoleProvider))
}

type submitReviewRequest struct {
	OrderID string `json:"order_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *ReviewHandlers) submit(role domain.ReviewRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.reviews == nil {
			writeServiceUnavailable(ctx, w, "reviews")
			return
		}
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		var req submitReviewRequest
		if !decodeJSONBody(w, r, maxReviewRequestBody, &req) {
			return
		}
		if strings.TrimSpace(req.OrderID) == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
			return
		}

		review, err := h.reviews.SubmitReview(ctx, services.SubmitReviewCommand{
			OrderID:    strings.TrimSpace(req.OrderID),
			Role:       role,
			ReviewerID: identity.UID,
			Rating:     req.Rating,
			Comment:    req.Comment,
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusCreated, buildReviewPayload(review))
	}
}
