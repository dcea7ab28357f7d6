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

const maxGigRequestBody = 32 * 1024

// GigHandlers exposes the gig catalogue: listing creation, reads, moderation and gig reviews.
type GigHandlers struct {
	authn   *auth.Authenticator
	gigs    services.GigService
	reviews services.ReviewService
}

// NewGigHandlers constructs gig handlers guarded by Firebase authentication.
func NewGigHandlers(authn *auth.Authenticator, gigs services.GigService, reviews services.ReviewService) *GigHandlers {
	return &GigHandlers{authn: authn, gigs: gigs, reviews: reviews}
}

// Routes registers gig endpoints relative to the /gigs mount.
func (h *GigHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createGig)
	r.Get("/{gigID}", h.getGig)
	r.Post("/{gigID}:moderate", h.moderateGig)
	r.Get("/{gigID}/reviews", h.listGigReviews)
}

type createGigRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
	DeliveryDays int    `json:"delivery_days"`
}

type moderateGigRequest struct {
	Status string `json:"status"`
}

func (h *GigHandlers) createGig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gigs == nil {
		writeServiceUnavailable(ctx, w, "gigs")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createGigRequest
	if !decodeJSONBody(w, r, maxGigRequestBody, &req) {
		return
	}

	gig, err := h.gigs.CreateGig(ctx, services.CreateGigCommand{
		ProviderID:   identity.UID,
		Title:        req.Title,
		Description:  req.Description,
		Price:        req.Price,
		Currency:     req.Currency,
		DeliveryDays: req.DeliveryDays,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildGigPayload(gig))
}

func (h *GigHandlers) getGig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gigs == nil {
		writeServiceUnavailable(ctx, w, "gigs")
		return
	}
	gig, err := h.gigs.GetGig(ctx, chi.URLParam(r, "gigID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildGigPayload(gig))
}

func (h *GigHandlers) moderateGig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gigs == nil {
		writeServiceUnavailable(ctx, w, "gigs")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !identity.HasAnyRole(auth.RoleModerator, auth.RoleStaff) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "moderator role required", http.StatusForbidden))
		return
	}

	var req moderateGigRequest
	if !decodeJSONBody(w, r, maxGigRequestBody, &req) {
		return
	}

	gig, err := h.gigs.ModerateGig(ctx, services.ModerateGigCommand{
		GigID:       chi.URLParam(r, "gigID"),
		ModeratorID: identity.UID,
		Status:      domain.GigStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildGigPayload(gig))
}

func (h *GigHandlers) listGigReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeServiceUnavailable(ctx, w, "reviews")
		return
	}
	pager, ok := parseListPagination(w, r)
	if !ok {
		return
	}
	page, err := h.reviews.ReviewsForGig(ctx, chi.URLParam(r, "gigID"), pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildReviewPayload))
}
