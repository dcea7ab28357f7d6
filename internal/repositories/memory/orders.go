package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

// GigRepository stores gigs in memory.
type GigRepository struct {
	store *Store
}

func (r *GigRepository) Insert(_ context.Context, gig domain.Gig) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.gigs[gig.ID]; exists {
		return repositories.Conflict("memory.gigs.insert", "gig %s already exists", gig.ID)
	}
	r.store.gigs[gig.ID] = gig
	return nil
}

func (r *GigRepository) FindByID(_ context.Context, gigID string) (domain.Gig, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	gig, ok := r.store.gigs[gigID]
	if !ok {
		return domain.Gig{}, repositories.NotFound("memory.gigs.find", "gig %s not found", gigID)
	}
	return gig, nil
}

func (r *GigRepository) UpdateStatus(_ context.Context, gigID string, status domain.GigStatus, updatedAt time.Time) (domain.Gig, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	gig, ok := r.store.gigs[gigID]
	if !ok {
		return domain.Gig{}, repositories.NotFound("memory.gigs.updateStatus", "gig %s not found", gigID)
	}
	gig.Status = status
	gig.UpdatedAt = updatedAt
	r.store.gigs[gigID] = gig
	return gig, nil
}

// Delete removes a gig; used to simulate listings vanishing between checkout and confirmation.
func (r *GigRepository) Delete(_ context.Context, gigID string) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.gigs, gigID)
}

// OrderRepository stores orders in memory.
type OrderRepository struct {
	store *Store
}

func (r *OrderRepository) CreateIfAbsent(_ context.Context, order domain.Order) (domain.Order, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.orders[order.ID]; ok {
		return cloneOrder(existing), false, nil
	}
	r.store.orders[order.ID] = cloneOrder(order)
	return cloneOrder(order), true, nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("memory.orders.find", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[update.OrderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("memory.orders.updateStatus", "order %s not found", update.OrderID)
	}
	if order.Status != update.ExpectedStatus {
		return domain.Order{}, repositories.Conflict("memory.orders.updateStatus", "order %s is %s, expected %s", order.ID, order.Status, update.ExpectedStatus)
	}
	order.Status = update.NextStatus
	if update.Delivery != nil {
		order.Delivery = cloneDelivery(update.Delivery)
	}
	if update.RevisionFeedback != nil {
		feedback := *update.RevisionFeedback
		order.RevisionFeedback = &feedback
	}
	if update.IncrementRevision {
		order.RevisionCount++
	}
	order.UpdatedAt = update.UpdatedAt
	r.store.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.store.mu.Lock()
	matches := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if strings.TrimSpace(filter.UserID) != "" && order.Participant(filter.Role) != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
			continue
		}
		matches = append(matches, cloneOrder(order))
	}
	r.store.mu.Unlock()

	newestFirst(matches, func(o domain.Order) time.Time { return o.CreatedAt }, func(o domain.Order) string { return o.ID })
	return paginate(matches, filter.Pagination)
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	if order.Deadline != nil {
		deadline := *order.Deadline
		out.Deadline = &deadline
	}
	if order.RevisionFeedback != nil {
		feedback := *order.RevisionFeedback
		out.RevisionFeedback = &feedback
	}
	out.Delivery = cloneDelivery(order.Delivery)
	return out
}

func cloneDelivery(delivery *domain.Delivery) *domain.Delivery {
	if delivery == nil {
		return nil
	}
	out := *delivery
	out.Artifacts = append([]domain.Artifact(nil), delivery.Artifacts...)
	return &out
}

// CheckoutSessionRepository stores gateway session snapshots in memory.
type CheckoutSessionRepository struct {
	store *Store
}

func (r *CheckoutSessionRepository) Insert(_ context.Context, session domain.CheckoutSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.sessions[session.Reference]; exists {
		return repositories.Conflict("memory.sessions.insert", "session %s already exists", session.Reference)
	}
	r.store.sessions[session.Reference] = session
	return nil
}

func (r *CheckoutSessionRepository) FindByReference(_ context.Context, reference string) (domain.CheckoutSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[reference]
	if !ok {
		return domain.CheckoutSession{}, repositories.NotFound("memory.sessions.find", "session %s not found", reference)
	}
	return session, nil
}
