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

const maxOrderRequestBody = 32 * 1024

// OrderHandlers exposes order reads and lifecycle transitions to order participants.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes registers order endpoints relative to the /orders mount.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/request-revision", h.requestRevision)
}

type artifactRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type deliveryRequest struct {
	Artifacts []artifactRequest `json:"artifacts"`
	Message   string            `json:"message"`
}

type updateStatusRequest struct {
	Status   string           `json:"status"`
	Delivery *deliveryRequest `json:"delivery"`
	Feedback string           `json:"feedback"`
}

type requestRevisionRequest struct {
	Feedback string `json:"feedback"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "orders")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	pager, ok := parseListPagination(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	role := domain.ActorRole(strings.ToLower(strings.TrimSpace(query.Get("role"))))
	if role == "" {
		role = domain.ActorClient
	}
	var statuses []domain.OrderStatus
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, domain.OrderStatus(strings.ToLower(part)))
			}
		}
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID:     identity.UID,
		Role:       role,
		Status:     statuses,
		Pagination: pager,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildOrderPayload))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "orders")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "orders")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(w, r, maxOrderRequestBody, &req) {
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if target == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	// The acting role is derived from the caller's side of the order.
	cmd := services.TransitionOrderCommand{
		OrderID:  chi.URLParam(r, "orderID"),
		Target:   target,
		ActorID:  identity.UID,
		Feedback: req.Feedback,
	}
	if req.Delivery != nil {
		delivery := &domain.Delivery{Message: req.Delivery.Message}
		for _, artifact := range req.Delivery.Artifacts {
			delivery.Artifacts = append(delivery.Artifacts, domain.Artifact{Name: artifact.Name, URL: artifact.URL})
		}
		cmd.Delivery = delivery
	}

	h.transition(w, r, cmd)
}

func (h *OrderHandlers) requestRevision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "orders")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req requestRevisionRequest
	if !decodeJSONBody(w, r, maxOrderRequestBody, &req) {
		return
	}

	h.transition(w, r, services.TransitionOrderCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		Target:    domain.OrderStatusRevisionRequested,
		ActorID:   identity.UID,
		ActorRole: domain.ActorClient,
		Feedback:  req.Feedback,
	})
}

func (h *OrderHandlers) transition(w http.ResponseWriter, r *http.Request, cmd services.TransitionOrderCommand) {
	order, err := h.orders.Transition(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
