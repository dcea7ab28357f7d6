package repositories

import (
	"context"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Gigs() GigRepository
	Orders() OrderRepository
	Reviews() ReviewRepository
	Ratings() RatingRepository
	CheckoutSessions() CheckoutSessionRepository
	Notifications() NotificationOutboxRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// GigRepository persists gig listings.
type GigRepository interface {
	Insert(ctx context.Context, gig domain.Gig) error
	FindByID(ctx context.Context, gigID string) (domain.Gig, error)
	UpdateStatus(ctx context.Context, gigID string, status domain.GigStatus, updatedAt time.Time) (domain.Gig, error)
}

// OrderRepository stores orders. Writes after creation go exclusively through UpdateStatus.
type OrderRepository interface {
	// CreateIfAbsent inserts the order keyed by its id. When an order with the same id already exists the stored
	// order is returned with created=false and nothing is written.
	CreateIfAbsent(ctx context.Context, order domain.Order) (stored domain.Order, created bool, err error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatus applies the update only when the stored status equals ExpectedStatus. A mismatch returns a
	// RepositoryError with IsConflict.
	UpdateStatus(ctx context.Context, update OrderStatusUpdate) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// ReviewRepository is the append-only review log.
type ReviewRepository interface {
	// InsertWithAggregates stores the review and applies its rating to every aggregate returned by
	// domain.RatingTargetsFor in the same transaction. A second review for the same order and role returns a
	// RepositoryError with IsConflict.
	InsertWithAggregates(ctx context.Context, review domain.Review) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Review, error)
	ListByGig(ctx context.Context, gigID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	ListByReviewee(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[domain.Review], error)
	// RatingsFor returns every rating that contributes to the target, used for reconciliation only.
	RatingsFor(ctx context.Context, target domain.RatingTarget) ([]int, error)
}

// RatingRepository reads and repairs stored rating aggregates.
type RatingRepository interface {
	// UserRatings returns zero aggregates when the user has never been rated.
	UserRatings(ctx context.Context, userID string) (domain.UserRatings, error)
	Aggregate(ctx context.Context, target domain.RatingTarget) (domain.RatingAggregate, error)
	// ReplaceAggregate overwrites the aggregate only while it still equals expected. A concurrent change returns a
	// RepositoryError with IsConflict.
	ReplaceAggregate(ctx context.Context, target domain.RatingTarget, expected, agg domain.RatingAggregate, updatedAt time.Time) error
}

// CheckoutSessionRepository stores gateway session snapshots.
type CheckoutSessionRepository interface {
	Insert(ctx context.Context, session domain.CheckoutSession) error
	FindByReference(ctx context.Context, reference string) (domain.CheckoutSession, error)
}

// NotificationOutboxRepository records notifications that could not be delivered immediately.
type NotificationOutboxRepository interface {
	Save(ctx context.Context, notification domain.Notification) error
	ListPending(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// OrderStatusUpdate describes a conditional status write.
type OrderStatusUpdate struct {
	OrderID           string
	ExpectedStatus    domain.OrderStatus
	NextStatus        domain.OrderStatus
	Delivery          *domain.Delivery
	RevisionFeedback  *string
	IncrementRevision bool
	UpdatedAt         time.Time
}

// OrderListFilter selects orders where the user participates in the given role.
type OrderListFilter struct {
	UserID     string
	Role       domain.ActorRole
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// ReviewListFilter selects reviews received by a user.
type ReviewListFilter struct {
	RevieweeID string
	Role       *domain.ReviewRole
	Pagination domain.Pagination
}
