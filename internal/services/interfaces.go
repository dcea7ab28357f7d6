package services

import (
	"context"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination       = domain.Pagination
	Gig              = domain.Gig
	GigStatus        = domain.GigStatus
	Order            = domain.Order
	OrderStatus      = domain.OrderStatus
	ActorRole        = domain.ActorRole
	Artifact         = domain.Artifact
	Delivery         = domain.Delivery
	Review           = domain.Review
	ReviewRole       = domain.ReviewRole
	RatingAggregate  = domain.RatingAggregate
	UserRatings      = domain.UserRatings
	CheckoutSession  = domain.CheckoutSession
	Notification     = domain.Notification
	HealthReport     = domain.HealthReport
	OrderListFilter  = repositories.OrderListFilter
	ReviewListFilter = repositories.ReviewListFilter
)

// Logger records structured service events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// GigService manages the listings orders are purchased from.
type GigService interface {
	CreateGig(ctx context.Context, cmd CreateGigCommand) (Gig, error)
	GetGig(ctx context.Context, gigID string) (Gig, error)
	ModerateGig(ctx context.Context, cmd ModerateGigCommand) (Gig, error)
}

// CheckoutService opens gateway sessions and turns paid sessions into orders.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error)
	// ConfirmPayment is idempotent per session reference: repeated calls return the same order.
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error)
}

// OrderService drives orders through the lifecycle state machine.
type OrderService interface {
	Transition(ctx context.Context, cmd TransitionOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, actorID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
}

// ReviewService appends reviews to completed orders and serves review listings.
type ReviewService interface {
	SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	ReviewsForGig(ctx context.Context, gigID string, pager Pagination) (domain.CursorPage[Review], error)
	ReviewsForUser(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[Review], error)
}

// RatingService reads aggregates and repairs drift from the review log.
type RatingService interface {
	UserRatings(ctx context.Context, userID string) (UserRatings, error)
	Reconcile(ctx context.Context, cmd ReconcileRatingsCommand) (ReconcileRatingsResult, error)
}

// Notifier accepts notifications for asynchronous delivery. Emit never fails the caller.
type Notifier interface {
	Emit(ctx context.Context, notification Notification)
}

// NotificationPublisher delivers a notification to the external sink.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, notification Notification) (string, error)
}

// NotificationEmitter is the Notifier with outbox maintenance hooks used by jobs and shutdown.
type NotificationEmitter interface {
	Notifier
	RetryPending(ctx context.Context, limit int) (RetryResult, error)
	Close(ctx context.Context) error
}

// SystemService aggregates health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

type CreateGigCommand struct {
	ProviderID   string
	Title        string
	Description  string
	Price        int64
	Currency     string
	DeliveryDays int
}

type ModerateGigCommand struct {
	GigID       string
	ModeratorID string
	Status      GigStatus
}

type CreateCheckoutSessionCommand struct {
	GigID        string
	ClientID     string
	ClientEmail  string
	Instructions string
	Contact      string
	Deadline     *time.Time
	Provider     string
	SuccessURL   string
	CancelURL    string
}

type CheckoutSessionResult struct {
	SessionReference string
	Provider         string
	RedirectURL      string
	Amount           int64
	Currency         string
	ExpiresAt        *time.Time
}

// ConfirmPaymentCommand carries the session reference returned by the gateway. ActorID is empty for
// gateway callbacks and must match the paying client otherwise.
type ConfirmPaymentCommand struct {
	SessionReference string
	ActorID          string
}

type ConfirmPaymentResult struct {
	Order   Order
	Created bool
	// Warnings lists non-fatal conditions such as ErrGigUnavailable.
	Warnings []error
}

// TransitionOrderCommand requests a single edge of the order state machine.
type TransitionOrderCommand struct {
	OrderID   string
	Target    OrderStatus
	ActorID   string
	ActorRole ActorRole
	Delivery  *Delivery
	Feedback  string
}

type SubmitReviewCommand struct {
	OrderID    string
	Role       ReviewRole
	ReviewerID string
	Rating     int
	Comment    string
}

type ReconcileRatingsCommand struct {
	GigIDs  []string
	UserIDs []string
}

// RatingDrift records an aggregate that differed from the review log.
type RatingDrift struct {
	Target   domain.RatingTarget
	Stored   RatingAggregate
	Computed RatingAggregate
}

type ReconcileRatingsResult struct {
	Checked  int
	Repaired []RatingDrift
}

type RetryResult struct {
	Attempted int
	Delivered int
	Failed    int
}

// SystemHealthReport is the health report with build metadata attached.
type SystemHealthReport struct {
	domain.HealthReport
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
}
