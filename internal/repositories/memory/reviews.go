package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

// ReviewRepository stores reviews and applies aggregates under the store lock.
type ReviewRepository struct {
	store *Store
}

func (r *ReviewRepository) InsertWithAggregates(_ context.Context, review domain.Review) error {
	const op = "memory.reviews.insert"
	key := domain.ReviewKey(review.OrderID, review.Role)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.reviews[key]; exists {
		return repositories.Conflict(op, "review %s already exists", key)
	}
	for _, target := range domain.RatingTargetsFor(review) {
		r.store.applyLocked(target, review.Rating, review.CreatedAt)
	}
	r.store.reviews[key] = review
	return nil
}

func (s *Store) applyLocked(target domain.RatingTarget, rating int, at time.Time) {
	switch target.Kind {
	case domain.RatingTargetGig:
		// Listings removed after purchase keep no aggregate.
		gig, ok := s.gigs[target.ID]
		if !ok {
			return
		}
		gig.Rating = gig.Rating.Apply(rating)
		s.gigs[target.ID] = gig
	case domain.RatingTargetUserAsProvider, domain.RatingTargetUserAsClient:
		user := s.users[target.ID]
		user.UserID = target.ID
		if target.Kind == domain.RatingTargetUserAsProvider {
			user.AsProvider = user.AsProvider.Apply(rating)
		} else {
			user.AsClient = user.AsClient.Apply(rating)
		}
		user.UpdatedAt = at
		s.users[target.ID] = user
	}
}

func (r *ReviewRepository) ListByOrder(_ context.Context, orderID string) ([]domain.Review, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]domain.Review, 0, 2)
	for _, role := range []domain.ReviewRole{domain.ReviewRoleClient, domain.ReviewRoleProvider} {
		if review, ok := r.store.reviews[domain.ReviewKey(orderID, role)]; ok {
			out = append(out, review)
		}
	}
	return out, nil
}

func (r *ReviewRepository) ListByGig(_ context.Context, gigID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	matches := r.filter(func(review domain.Review) bool {
		return review.Role == domain.ReviewRoleClient && review.GigID == gigID
	})
	return paginate(matches, pager)
}

func (r *ReviewRepository) ListByReviewee(_ context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	matches := r.filter(func(review domain.Review) bool {
		if review.RevieweeID != filter.RevieweeID {
			return false
		}
		return filter.Role == nil || review.Role == *filter.Role
	})
	return paginate(matches, filter.Pagination)
}

func (r *ReviewRepository) RatingsFor(_ context.Context, target domain.RatingTarget) ([]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	reviews := make([]domain.Review, 0)
	for _, review := range r.store.reviews {
		for _, candidate := range domain.RatingTargetsFor(review) {
			if candidate == target {
				reviews = append(reviews, review)
				break
			}
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.Before(reviews[j].CreatedAt) })
	ratings := make([]int, 0, len(reviews))
	for _, review := range reviews {
		ratings = append(ratings, review.Rating)
	}
	return ratings, nil
}

func (r *ReviewRepository) filter(match func(domain.Review) bool) []domain.Review {
	r.store.mu.Lock()
	out := make([]domain.Review, 0)
	for _, review := range r.store.reviews {
		if match(review) {
			out = append(out, review)
		}
	}
	r.store.mu.Unlock()
	newestFirst(out, func(rv domain.Review) time.Time { return rv.CreatedAt }, func(rv domain.Review) string { return rv.ID })
	return out
}

// RatingRepository reads aggregates held alongside gigs and users.
type RatingRepository struct {
	store *Store
}

func (r *RatingRepository) UserRatings(_ context.Context, userID string) (domain.UserRatings, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ratings, ok := r.store.users[userID]
	if !ok {
		return domain.UserRatings{UserID: userID}, nil
	}
	return ratings, nil
}

func (r *RatingRepository) Aggregate(_ context.Context, target domain.RatingTarget) (domain.RatingAggregate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	switch target.Kind {
	case domain.RatingTargetGig:
		gig, ok := r.store.gigs[target.ID]
		if !ok {
			return domain.RatingAggregate{}, repositories.NotFound("memory.ratings.aggregate", "gig %s not found", target.ID)
		}
		return gig.Rating, nil
	case domain.RatingTargetUserAsProvider:
		return r.store.users[target.ID].AsProvider, nil
	default:
		return r.store.users[target.ID].AsClient, nil
	}
}

func (r *RatingRepository) ReplaceAggregate(_ context.Context, target domain.RatingTarget, expected, agg domain.RatingAggregate, updatedAt time.Time) error {
	const op = "memory.ratings.replace"
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	switch target.Kind {
	case domain.RatingTargetGig:
		gig, ok := r.store.gigs[target.ID]
		if !ok {
			return repositories.NotFound(op, "gig %s not found", target.ID)
		}
		if gig.Rating != expected {
			return repositories.Conflict(op, "gig %s aggregate changed", target.ID)
		}
		gig.Rating = agg
		r.store.gigs[target.ID] = gig
	default:
		user := r.store.users[target.ID]
		user.UserID = target.ID
		current := &user.AsClient
		if target.Kind == domain.RatingTargetUserAsProvider {
			current = &user.AsProvider
		}
		if *current != expected {
			return repositories.Conflict(op, "user %s aggregate changed", target.ID)
		}
		*current = agg
		user.UpdatedAt = updatedAt
		r.store.users[target.ID] = user
	}
	return nil
}

// NotificationRepository is the in-memory outbox.
type NotificationRepository struct {
	store *Store
}

func (r *NotificationRepository) Save(_ context.Context, notification domain.Notification) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.notifications[notification.ID] = notification
	return nil
}

func (r *NotificationRepository) ListPending(_ context.Context, limit int) ([]domain.Notification, error) {
	r.store.mu.Lock()
	out := make([]domain.Notification, 0)
	for _, n := range r.store.notifications {
		if n.Status == domain.NotificationPending {
			out = append(out, n)
		}
	}
	r.store.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepository) MarkDelivered(_ context.Context, notificationID string, deliveredAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n, ok := r.store.notifications[notificationID]
	if !ok {
		return repositories.NotFound("memory.notifications.markDelivered", "notification %s not found", notificationID)
	}
	n.Status = domain.NotificationDelivered
	n.UpdatedAt = deliveredAt
	r.store.notifications[notificationID] = n
	return nil
}
