// Package firestore implements the repository contracts on Cloud Firestore.
package firestore

import (
	"context"

	"github.com/gigmarket/api/internal/repositories"
	pfirestore "github.com/gigmarket/api/internal/platform/firestore"
)

const (
	gigsCollection          = "gigs"
	ordersCollection        = "orders"
	reviewsCollection       = "reviews"
	userRatingsCollection   = "userRatings"
	sessionsCollection      = "checkoutSessions"
	notificationsCollection = "notifications"

	defaultPageSize = 20
	maxPageSize     = 100
)

type registry struct {
	provider      *pfirestore.Provider
	gigs          *GigRepository
	orders        *OrderRepository
	reviews       *ReviewRepository
	ratings       *RatingRepository
	sessions      *CheckoutSessionRepository
	notifications *NotificationRepository
}

// NewRegistry builds every Firestore repository on a shared provider.
func NewRegistry(provider *pfirestore.Provider) (repositories.Registry, error) {
	gigs, err := NewGigRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	reviews, err := NewReviewRepository(provider)
	if err != nil {
		return nil, err
	}
	return &registry{
		provider:      provider,
		gigs:          gigs,
		orders:        orders,
		reviews:       reviews,
		ratings:       &RatingRepository{provider: provider, gigs: gigs.docs, users: pfirestore.NewCollection[userRatingsDocument](provider, userRatingsCollection)},
		sessions:      &CheckoutSessionRepository{docs: pfirestore.NewCollection[sessionDocument](provider, sessionsCollection)},
		notifications: &NotificationRepository{docs: pfirestore.NewCollection[notificationDocument](provider, notificationsCollection)},
	}, nil
}

func (r *registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *registry) Gigs() repositories.GigRepository { return r.gigs }

func (r *registry) Orders() repositories.OrderRepository { return r.orders }

func (r *registry) Reviews() repositories.ReviewRepository { return r.reviews }

func (r *registry) Ratings() repositories.RatingRepository { return r.ratings }

func (r *registry) CheckoutSessions() repositories.CheckoutSessionRepository { return r.sessions }

func (r *registry) Notifications() repositories.NotificationOutboxRepository {
	return r.notifications
}

func normalizePageSize(size int) int {
	switch {
	case size <= 0:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	default:
		return size
	}
}
