package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// GigStatus captures the moderation state of a gig listing.
type GigStatus string

const (
	// GigStatusPending marks a gig awaiting moderation.
	GigStatusPending GigStatus = "pending"
	// GigStatusApproved marks a gig that can be purchased.
	GigStatusApproved GigStatus = "approved"
	// GigStatusRejected marks a gig refused by a moderator.
	GigStatusRejected GigStatus = "rejected"
)

// Gig is a purchasable service listing owned by a provider.
type Gig struct {
	ID           string
	ProviderID   string
	Title        string
	Description  string
	Price        int64
	Currency     string
	DeliveryDays int
	Status       GigStatus
	Rating       RatingAggregate
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Purchasable reports whether new checkout sessions may be opened for the gig.
func (g Gig) Purchasable() bool {
	return g.Status == GigStatusApproved
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusBooked            OrderStatus = "booked"
	OrderStatusAccepted          OrderStatus = "accepted"
	OrderStatusInProgress        OrderStatus = "in_progress"
	OrderStatusInReview          OrderStatus = "in_review"
	OrderStatusRevisionRequested OrderStatus = "revision_requested"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusBooked,
	OrderStatusAccepted,
	OrderStatusInProgress,
	OrderStatusInReview,
	OrderStatusRevisionRequested,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// Valid reports whether the status is a known lifecycle state.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// ActorRole identifies which side of an order performs an action.
type ActorRole string

const (
	ActorProvider ActorRole = "provider"
	ActorClient   ActorRole = "client"
)

// Artifact references a delivered file stored outside the system.
type Artifact struct {
	Name string
	URL  string
}

// Delivery captures the most recent submission of work by the provider.
type Delivery struct {
	Artifacts   []Artifact
	Message     string
	SubmittedAt time.Time
}

// OrderFlags holds operational markers requiring human follow-up. ManualReviewReason joins every reason with commas.
type OrderFlags struct {
	ManualReview       bool
	ManualReviewReason string
}

// WithManualReview marks the order for manual review and appends reason to the ones already recorded.
func (f OrderFlags) WithManualReview(reason string) OrderFlags {
	f.ManualReview = true
	if f.HasReason(reason) {
		return f
	}
	if f.ManualReviewReason == "" {
		f.ManualReviewReason = reason
	} else {
		f.ManualReviewReason += "," + reason
	}
	return f
}

// Reasons lists the recorded manual review reasons in the order they were raised.
func (f OrderFlags) Reasons() []string {
	if f.ManualReviewReason == "" {
		return nil
	}
	return strings.Split(f.ManualReviewReason, ",")
}

// HasReason reports whether reason was recorded.
func (f OrderFlags) HasReason(reason string) bool {
	for _, existing := range f.Reasons() {
		if existing == reason {
			return true
		}
	}
	return false
}

// Order is a paid engagement between a client and a provider for a gig.
type Order struct {
	ID                string
	GigID             string
	GigTitle          string
	ProviderID        string
	ClientID          string
	Price             int64
	Currency          string
	Status            OrderStatus
	Instructions      string
	Contact           string
	Deadline          *time.Time
	Delivery          *Delivery
	RevisionFeedback  *string
	RevisionCount     int
	PaymentSessionRef string
	Flags             OrderFlags
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Participant returns the user id that plays the given role on the order.
func (o Order) Participant(role ActorRole) string {
	switch role {
	case ActorProvider:
		return o.ProviderID
	case ActorClient:
		return o.ClientID
	default:
		return ""
	}
}

// RoleOf returns the role the user plays on the order, if any.
func (o Order) RoleOf(userID string) (ActorRole, bool) {
	switch userID {
	case "":
		return "", false
	case o.ProviderID:
		return ActorProvider, true
	case o.ClientID:
		return ActorClient, true
	default:
		return "", false
	}
}

// ReviewRole distinguishes reviews written by clients from those written by providers.
type ReviewRole string

const (
	// ReviewRoleClient is written by the client about the provider and gig.
	ReviewRoleClient ReviewRole = "client_review"
	// ReviewRoleProvider is written by the provider about the client.
	ReviewRoleProvider ReviewRole = "provider_review"
)

// Author returns the order side allowed to write a review of this role.
func (r ReviewRole) Author() ActorRole {
	if r == ReviewRoleProvider {
		return ActorProvider
	}
	return ActorClient
}

// Valid reports whether the role is recognised.
func (r ReviewRole) Valid() bool {
	return r == ReviewRoleClient || r == ReviewRoleProvider
}

// Review is an immutable rating left on a completed order.
type Review struct {
	ID         string
	OrderID    string
	GigID      string
	Role       ReviewRole
	Rating     int
	Comment    string
	ReviewerID string
	RevieweeID string
	CreatedAt  time.Time
}

// ReviewKey returns the storage key that enforces one review per order side.
func ReviewKey(orderID string, role ReviewRole) string {
	return orderID + "_" + string(role)
}

// UserRatings holds the per-role aggregates for a user.
type UserRatings struct {
	UserID     string
	AsProvider RatingAggregate
	AsClient   RatingAggregate
	UpdatedAt  time.Time
}

// CheckoutSession snapshots what the client agreed to pay when the gateway session was opened.
type CheckoutSession struct {
	Reference    string
	Provider     string
	GigID        string
	GigTitle     string
	ProviderID   string
	ClientID     string
	Amount       int64
	Currency     string
	Instructions string
	Contact      string
	Deadline     *time.Time
	RedirectURL  string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

// NotificationType categorises user-facing notifications.
type NotificationType string

const (
	NotificationOrderCreated       NotificationType = "order.created"
	NotificationOrderStatusChanged NotificationType = "order.status_changed"
	NotificationReviewReceived     NotificationType = "review.received"
)

// NotificationStatus tracks delivery of an outbound notification.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationDelivered NotificationStatus = "delivered"
)

// Notification is a message addressed to a single user.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Message   string
	Link      string
	OrderID   string
	Status    NotificationStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HealthStatus summarises dependency health.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// DependencyHealth is the result of probing a single dependency.
type DependencyHealth struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates readiness probes.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]DependencyHealth
	GeneratedAt time.Time
}
