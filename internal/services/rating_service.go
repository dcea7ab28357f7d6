package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const (
	maxReconcileTargets = 500
	reconcileAttempts   = 3
)

// RatingServiceDeps bundles collaborators required to construct a RatingService.
type RatingServiceDeps struct {
	Ratings repositories.RatingRepository
	Reviews repositories.ReviewRepository
	Clock   func() time.Time
	Logger  Logger
}

type ratingService struct {
	ratings repositories.RatingRepository
	reviews repositories.ReviewRepository
	clock   func() time.Time
	logger  Logger
}

var _ RatingService = (*ratingService)(nil)

// NewRatingService wires dependencies into a concrete RatingService implementation.
func NewRatingService(deps RatingServiceDeps) (RatingService, error) {
	if deps.Ratings == nil {
		return nil, errors.New("rating service: rating repository is required")
	}
	if deps.Reviews == nil {
		return nil, errors.New("rating service: review repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ratingService{
		ratings: deps.Ratings,
		reviews: deps.Reviews,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *ratingService) UserRatings(ctx context.Context, userID string) (UserRatings, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserRatings{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	ratings, err := s.ratings.UserRatings(ctx, userID)
	if err != nil {
		return UserRatings{}, mapRepositoryError(err, nil, nil)
	}
	ratings.UserID = userID
	return ratings, nil
}

// Reconcile recomputes the requested aggregates from the review log and overwrites any that drifted.
func (s *ratingService) Reconcile(ctx context.Context, cmd ReconcileRatingsCommand) (ReconcileRatingsResult, error) {
	targets := make([]domain.RatingTarget, 0, len(cmd.GigIDs)+2*len(cmd.UserIDs))
	for _, id := range uniqueTrimmed(cmd.GigIDs) {
		targets = append(targets, domain.RatingTarget{Kind: domain.RatingTargetGig, ID: id})
	}
	for _, id := range uniqueTrimmed(cmd.UserIDs) {
		targets = append(targets,
			domain.RatingTarget{Kind: domain.RatingTargetUserAsProvider, ID: id},
			domain.RatingTarget{Kind: domain.RatingTargetUserAsClient, ID: id},
		)
	}
	if len(targets) == 0 {
		return ReconcileRatingsResult{}, fmt.Errorf("%w: at least one gig or user id is required", ErrValidation)
	}
	if len(targets) > maxReconcileTargets {
		return ReconcileRatingsResult{}, fmt.Errorf("%w: at most %d aggregates per run", ErrValidation, maxReconcileTargets)
	}

	var result ReconcileRatingsResult
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		drift, checked, err := s.reconcileTarget(ctx, target)
		if err != nil {
			return result, err
		}
		if !checked {
			continue
		}
		result.Checked++
		if drift == nil {
			continue
		}
		s.logger(ctx, "rating.aggregate.repaired", map[string]any{
			"kind":          string(target.Kind),
			"id":            target.ID,
			"storedCount":   drift.Stored.Count,
			"computedCount": drift.Computed.Count,
		})
		result.Repaired = append(result.Repaired, *drift)
	}
	return result, nil
}

// reconcileTarget repairs one aggregate. The replace is conditional on the aggregate read before the log, so a
// review landing in between forces a fresh pass instead of being dropped.
func (s *ratingService) reconcileTarget(ctx context.Context, target domain.RatingTarget) (*RatingDrift, bool, error) {
	for attempt := 1; attempt <= reconcileAttempts; attempt++ {
		stored, err := s.ratings.Aggregate(ctx, target)
		if err != nil {
			if isRepositoryNotFound(err) {
				return nil, false, nil
			}
			return nil, false, mapRepositoryError(err, nil, nil)
		}
		ratings, err := s.reviews.RatingsFor(ctx, target)
		if err != nil {
			return nil, false, mapRepositoryError(err, nil, nil)
		}

		computed := domain.Recompute(ratings)
		if computed == stored {
			return nil, true, nil
		}
		err = s.ratings.ReplaceAggregate(ctx, target, stored, computed, s.clock())
		switch {
		case err == nil:
			return &RatingDrift{Target: target, Stored: stored, Computed: computed}, true, nil
		case isRepositoryConflict(err):
			s.logger(ctx, "rating.aggregate.changed", map[string]any{
				"kind":    string(target.Kind),
				"id":      target.ID,
				"attempt": attempt,
			})
		case isRepositoryNotFound(err):
			return nil, false, nil
		default:
			return nil, false, mapRepositoryError(err, nil, nil)
		}
	}
	return nil, false, fmt.Errorf("%w: %s %s aggregate kept changing", ErrConcurrencyConflict, target.Kind, target.ID)
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
