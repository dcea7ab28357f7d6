package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const (
	reviewIDPrefix         = "rev_"
	minReviewRating        = 1
	maxReviewRating        = 5
	maxReviewCommentLength = 2000
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Notifier    Notifier
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Logger      Logger
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	orders   repositories.OrderRepository
	notifier Notifier
	clock    func() time.Time
	newID    func() string
	sanitize func(string) string
	logger   Logger
}

var _ ReviewService = (*reviewService)(nil)

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("review service: notifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return reviewIDPrefix + ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeText
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		reviews:  deps.Reviews,
		orders:   deps.Orders,
		notifier: deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

// SubmitReview appends a review for one side of a completed order. The repository applies the rating to the
// affected aggregates in the same transaction as the insert.
func (s *reviewService) SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	reviewerID := strings.TrimSpace(cmd.ReviewerID)
	switch {
	case orderID == "":
		return Review{}, fmt.Errorf("%w: order id is required", ErrValidation)
	case reviewerID == "":
		return Review{}, fmt.Errorf("%w: reviewer id is required", ErrValidation)
	case !cmd.Role.Valid():
		return Review{}, fmt.Errorf("%w: unknown review role %q", ErrValidation, cmd.Role)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Review{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if order.Status != domain.OrderStatusCompleted {
		return Review{}, fmt.Errorf("%w: order %s is %s", ErrOrderNotCompleted, order.ID, order.Status)
	}
	author := cmd.Role.Author()
	if order.Participant(author) != reviewerID {
		return Review{}, fmt.Errorf("%w: %s reviews must be written by the order %s", ErrRoleMismatch, cmd.Role, author)
	}
	if cmd.Rating < minReviewRating || cmd.Rating > maxReviewRating {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrValidation, minReviewRating, maxReviewRating)
	}

	review := Review{
		ID:         s.newID(),
		OrderID:    order.ID,
		GigID:      order.GigID,
		Role:       cmd.Role,
		Rating:     cmd.Rating,
		Comment:    limitRunes(s.sanitize(cmd.Comment), maxReviewCommentLength),
		ReviewerID: reviewerID,
		RevieweeID: order.Participant(counterparty(author)),
		CreatedAt:  s.clock(),
	}

	if err := s.reviews.InsertWithAggregates(ctx, review); err != nil {
		return Review{}, mapRepositoryError(err, ErrOrderNotFound, ErrDuplicateReview)
	}

	s.logger(ctx, "review.created", map[string]any{
		"reviewId": review.ID,
		"orderId":  review.OrderID,
		"role":     string(review.Role),
		"rating":   review.Rating,
	})
	s.notifier.Emit(ctx, reviewReceivedNotification(review))
	return review, nil
}

func (s *reviewService) ReviewsForGig(ctx context.Context, gigID string, pager Pagination) (domain.CursorPage[Review], error) {
	gigID = strings.TrimSpace(gigID)
	if gigID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: gig id is required", ErrValidation)
	}
	page, err := s.reviews.ListByGig(ctx, gigID, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, mapRepositoryError(err, ErrGigNotFound, nil)
	}
	return page, nil
}

func (s *reviewService) ReviewsForUser(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[Review], error) {
	filter.RevieweeID = strings.TrimSpace(filter.RevieweeID)
	if filter.RevieweeID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: unknown review role %q", ErrValidation, *filter.Role)
	}
	page, err := s.reviews.ListByReviewee(ctx, filter)
	if err != nil {
		return domain.CursorPage[Review]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}
