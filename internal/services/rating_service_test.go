package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

func newTestRatingService(t *testing.T, reg repositories.Registry) RatingService {
	t.Helper()
	svc, err := NewRatingService(RatingServiceDeps{
		Ratings: reg.Ratings(),
		Reviews: reg.Reviews(),
		Clock:   fixedClock,
	})
	if err != nil {
		t.Fatalf("NewRatingService: %v", err)
	}
	return svc
}

func TestUserRatingsDefaultsToEmpty(t *testing.T) {
	svc := newTestRatingService(t, newTestRegistry())

	ratings, err := svc.UserRatings(context.Background(), " newcomer ")
	if err != nil {
		t.Fatalf("UserRatings: %v", err)
	}
	if ratings.UserID != "newcomer" || ratings.AsProvider.Count != 0 || ratings.AsClient.Count != 0 {
		t.Fatalf("expected empty aggregates, got %+v", ratings)
	}
	if _, err := svc.UserRatings(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	reg := newTestRegistry()
	reviews := newTestReviewService(t, reg, &recordingNotifier{})
	svc := newTestRatingService(t, reg)
	seedGig(t, reg, Gig{})
	order := seedOrder(t, reg, Order{Status: domain.OrderStatusCompleted})
	ctx := context.Background()

	for _, cmd := range []SubmitReviewCommand{
		{OrderID: order.ID, Role: domain.ReviewRoleClient, ReviewerID: order.ClientID, Rating: 4},
		{OrderID: order.ID, Role: domain.ReviewRoleProvider, ReviewerID: order.ProviderID, Rating: 2},
	} {
		if _, err := reviews.SubmitReview(ctx, cmd); err != nil {
			t.Fatalf("SubmitReview: %v", err)
		}
	}

	drifted := domain.RatingTarget{Kind: domain.RatingTargetGig, ID: "gig_1"}
	if err := reg.Ratings().ReplaceAggregate(ctx, drifted, domain.RatingAggregate{Sum: 4, Count: 1}, domain.RatingAggregate{Sum: 40, Count: 7}, testNow); err != nil {
		t.Fatalf("ReplaceAggregate: %v", err)
	}

	result, err := svc.Reconcile(ctx, ReconcileRatingsCommand{
		GigIDs:  []string{"gig_1", "gig_1", "gig_gone"},
		UserIDs: []string{order.ProviderID, order.ClientID},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Checked != 5 {
		t.Fatalf("expected 5 aggregates checked, got %d", result.Checked)
	}
	if len(result.Repaired) != 1 || result.Repaired[0].Target != drifted {
		t.Fatalf("expected gig aggregate repaired, got %+v", result.Repaired)
	}
	if result.Repaired[0].Computed != (domain.RatingAggregate{Sum: 4, Count: 1}) {
		t.Fatalf("unexpected recomputed aggregate %+v", result.Repaired[0].Computed)
	}

	gig, _ := reg.Gigs().FindByID(ctx, "gig_1")
	if gig.Rating != (domain.RatingAggregate{Sum: 4, Count: 1}) {
		t.Fatalf("expected stored aggregate repaired, got %+v", gig.Rating)
	}

	again, err := svc.Reconcile(ctx, ReconcileRatingsCommand{GigIDs: []string{"gig_1"}})
	if err != nil || len(again.Repaired) != 0 {
		t.Fatalf("expected consistent aggregates on second run, got %+v (%v)", again, err)
	}
}

func TestReconcileValidatesInput(t *testing.T) {
	svc := newTestRatingService(t, newTestRegistry())

	if _, err := svc.Reconcile(context.Background(), ReconcileRatingsCommand{GigIDs: []string{" "}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty input, got %v", err)
	}

	ids := make([]string, maxReconcileTargets/2+1)
	for i := range ids {
		ids[i] = "user-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	if _, err := svc.Reconcile(context.Background(), ReconcileRatingsCommand{UserIDs: ids}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for oversized input, got %v", err)
	}
}

// reviewAfterRead lands a review right after the reconcile pass has read the rating log.
type reviewAfterRead struct {
	repositories.ReviewRepository
	pending []domain.Review
}

func (r *reviewAfterRead) RatingsFor(ctx context.Context, target domain.RatingTarget) ([]int, error) {
	ratings, err := r.ReviewRepository.RatingsFor(ctx, target)
	for _, review := range r.pending {
		if insertErr := r.ReviewRepository.InsertWithAggregates(ctx, review); insertErr != nil {
			return nil, insertErr
		}
	}
	r.pending = nil
	return ratings, err
}

func TestReconcileKeepsReviewCommittedMidPass(t *testing.T) {
	reg := newTestRegistry()
	seedGig(t, reg, Gig{})
	ctx := context.Background()
	gigTarget := domain.RatingTarget{Kind: domain.RatingTargetGig, ID: "gig_1"}

	first := domain.Review{ID: "rev_1", OrderID: "ord_1", GigID: "gig_1", Role: domain.ReviewRoleClient, Rating: 5, ReviewerID: "cli-1", RevieweeID: "prov-1", CreatedAt: testNow}
	if err := reg.Reviews().InsertWithAggregates(ctx, first); err != nil {
		t.Fatalf("insert review: %v", err)
	}
	if err := reg.Ratings().ReplaceAggregate(ctx, gigTarget, domain.RatingAggregate{Sum: 5, Count: 1}, domain.RatingAggregate{Sum: 40, Count: 7}, testNow); err != nil {
		t.Fatalf("ReplaceAggregate: %v", err)
	}

	reviews := &reviewAfterRead{
		ReviewRepository: reg.Reviews(),
		pending: []domain.Review{{
			ID: "rev_2", OrderID: "ord_2", GigID: "gig_1", Role: domain.ReviewRoleClient, Rating: 1,
			ReviewerID: "cli-2", RevieweeID: "prov-1", CreatedAt: testNow.Add(time.Minute),
		}},
	}
	svc, err := NewRatingService(RatingServiceDeps{Ratings: reg.Ratings(), Reviews: reviews, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewRatingService: %v", err)
	}

	result, err := svc.Reconcile(ctx, ReconcileRatingsCommand{GigIDs: []string{"gig_1"}})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := domain.RatingAggregate{Sum: 6, Count: 2}
	if len(result.Repaired) != 1 || result.Repaired[0].Computed != want {
		t.Fatalf("expected repair to %+v, got %+v", want, result.Repaired)
	}
	gig, _ := reg.Gigs().FindByID(ctx, "gig_1")
	if gig.Rating != want {
		t.Fatalf("expected aggregate to include the late review, got %+v", gig.Rating)
	}
}
