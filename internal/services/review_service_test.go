package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

func newTestReviewService(t *testing.T, reg repositories.Registry, notifier Notifier) ReviewService {
	t.Helper()
	var seq int
	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  reg.Reviews(),
		Orders:   reg.Orders(),
		Notifier: notifier,
		Clock:    fixedClock,
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("rev_%03d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}
	return svc
}

func TestSubmitReviewBothRolesUpdateAggregates(t *testing.T) {
	reg := newTestRegistry()
	notifier := &recordingNotifier{}
	svc := newTestReviewService(t, reg, notifier)
	seedGig(t, reg, Gig{})
	order := seedOrder(t, reg, Order{Status: domain.OrderStatusCompleted})
	ctx := context.Background()

	clientReview, err := svc.SubmitReview(ctx, SubmitReviewCommand{
		OrderID:    order.ID,
		Role:       domain.ReviewRoleClient,
		ReviewerID: order.ClientID,
		Rating:     5,
		Comment:    "<b>Great</b>   work,\n fast  delivery",
	})
	if err != nil {
		t.Fatalf("client review: %v", err)
	}
	if clientReview.RevieweeID != order.ProviderID || clientReview.GigID != order.GigID {
		t.Fatalf("unexpected client review %+v", clientReview)
	}
	if clientReview.Comment != "Great work,\nfast delivery" {
		t.Fatalf("unexpected sanitized comment %q", clientReview.Comment)
	}

	providerReview, err := svc.SubmitReview(ctx, SubmitReviewCommand{
		OrderID:    order.ID,
		Role:       domain.ReviewRoleProvider,
		ReviewerID: order.ProviderID,
		Rating:     4,
	})
	if err != nil {
		t.Fatalf("provider review: %v", err)
	}
	if providerReview.RevieweeID != order.ClientID {
		t.Fatalf("expected client reviewee, got %s", providerReview.RevieweeID)
	}

	gig, _ := reg.Gigs().FindByID(ctx, order.GigID)
	if gig.Rating != (domain.RatingAggregate{Sum: 5, Count: 1}) {
		t.Fatalf("unexpected gig aggregate %+v", gig.Rating)
	}
	provider, _ := reg.Ratings().UserRatings(ctx, order.ProviderID)
	if provider.AsProvider != (domain.RatingAggregate{Sum: 5, Count: 1}) || provider.AsClient.Count != 0 {
		t.Fatalf("unexpected provider aggregates %+v", provider)
	}
	client, _ := reg.Ratings().UserRatings(ctx, order.ClientID)
	if client.AsClient != (domain.RatingAggregate{Sum: 4, Count: 1}) || client.AsProvider.Count != 0 {
		t.Fatalf("unexpected client aggregates %+v", client)
	}

	sent := notifier.all()
	if len(sent) != 2 || sent[0].UserID != order.ProviderID || sent[1].UserID != order.ClientID {
		t.Fatalf("expected reviewee notifications, got %+v", sent)
	}
}

func TestSubmitReviewDuplicate(t *testing.T) {
	reg := newTestRegistry()
	svc := newTestReviewService(t, reg, &recordingNotifier{})
	seedGig(t, reg, Gig{})
	order := seedOrder(t, reg, Order{Status: domain.OrderStatusCompleted})
	ctx := context.Background()
	cmd := SubmitReviewCommand{OrderID: order.ID, Role: domain.ReviewRoleClient, ReviewerID: order.ClientID, Rating: 3}

	if _, err := svc.SubmitReview(ctx, cmd); err != nil {
		t.Fatalf("first review: %v", err)
	}
	cmd.Rating = 1
	if _, err := svc.SubmitReview(ctx, cmd); !errors.Is(err, ErrDuplicateReview) {
		t.Fatalf("expected ErrDuplicateReview, got %v", err)
	}

	gig, _ := reg.Gigs().FindByID(ctx, order.GigID)
	if gig.Rating != (domain.RatingAggregate{Sum: 3, Count: 1}) {
		t.Fatalf("expected aggregate untouched by duplicate, got %+v", gig.Rating)
	}
}

func TestSubmitReviewRejections(t *testing.T) {
	reg := newTestRegistry()
	svc := newTestReviewService(t, reg, &recordingNotifier{})
	completed := seedOrder(t, reg, Order{ID: "ord_done", Status: domain.OrderStatusCompleted})
	inReview := seedOrder(t, reg, Order{ID: "ord_review", Status: domain.OrderStatusInReview})

	cases := []struct {
		name string
		cmd  SubmitReviewCommand
		want error
	}{
		{name: "not completed", cmd: SubmitReviewCommand{OrderID: inReview.ID, Role: domain.ReviewRoleClient, ReviewerID: inReview.ClientID, Rating: 5}, want: ErrOrderNotCompleted},
		{name: "provider writes client review", cmd: SubmitReviewCommand{OrderID: completed.ID, Role: domain.ReviewRoleClient, ReviewerID: completed.ProviderID, Rating: 5}, want: ErrRoleMismatch},
		{name: "client writes provider review", cmd: SubmitReviewCommand{OrderID: completed.ID, Role: domain.ReviewRoleProvider, ReviewerID: completed.ClientID, Rating: 5}, want: ErrRoleMismatch},
		{name: "rating too low", cmd: SubmitReviewCommand{OrderID: completed.ID, Role: domain.ReviewRoleClient, ReviewerID: completed.ClientID, Rating: 0}, want: ErrValidation},
		{name: "rating too high", cmd: SubmitReviewCommand{OrderID: completed.ID, Role: domain.ReviewRoleClient, ReviewerID: completed.ClientID, Rating: 6}, want: ErrValidation},
		{name: "unknown role", cmd: SubmitReviewCommand{OrderID: completed.ID, Role: "admin_review", ReviewerID: completed.ClientID, Rating: 5}, want: ErrValidation},
		{name: "missing order", cmd: SubmitReviewCommand{OrderID: "ord_missing", Role: domain.ReviewRoleClient, ReviewerID: "cli-1", Rating: 5}, want: ErrOrderNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SubmitReview(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestReviewAggregateMatchesMean(t *testing.T) {
	reg := newTestRegistry()
	svc := newTestReviewService(t, reg, &recordingNotifier{})
	seedGig(t, reg, Gig{})
	ctx := context.Background()

	ratings := []int{5, 3, 4, 1, 5, 2}
	for i, rating := range ratings {
		order := seedOrder(t, reg, Order{ID: fmt.Sprintf("ord_%d", i), ClientID: fmt.Sprintf("cli-%d", i), Status: domain.OrderStatusCompleted})
		if _, err := svc.SubmitReview(ctx, SubmitReviewCommand{OrderID: order.ID, Role: domain.ReviewRoleClient, ReviewerID: order.ClientID, Rating: rating}); err != nil {
			t.Fatalf("review %d: %v", i, err)
		}
	}

	gig, _ := reg.Gigs().FindByID(ctx, "gig_1")
	var sum int
	for _, r := range ratings {
		sum += r
	}
	mean := float64(sum) / float64(len(ratings))
	if gig.Rating.Count != int64(len(ratings)) || math.Abs(gig.Rating.Average()-mean) > 1e-9 {
		t.Fatalf("expected average %v over %d, got %+v", mean, len(ratings), gig.Rating)
	}

	page, err := svc.ReviewsForGig(ctx, "gig_1", Pagination{PageSize: 4})
	if err != nil {
		t.Fatalf("ReviewsForGig: %v", err)
	}
	if len(page.Items) != 4 || page.NextPageToken == "" {
		t.Fatalf("expected first page of 4 with token, got %d %q", len(page.Items), page.NextPageToken)
	}

	role := domain.ReviewRoleClient
	userPage, err := svc.ReviewsForUser(ctx, ReviewListFilter{RevieweeID: "prov-1", Role: &role})
	if err != nil || len(userPage.Items) != len(ratings) {
		t.Fatalf("expected %d reviews for provider, got %d (%v)", len(ratings), len(userPage.Items), err)
	}
}

func TestSubmitReviewSkipsMissingGigAggregate(t *testing.T) {
	reg := newTestRegistry()
	svc := newTestReviewService(t, reg, &recordingNotifier{})
	order := seedOrder(t, reg, Order{GigID: "gig_removed", Status: domain.OrderStatusCompleted})

	if _, err := svc.SubmitReview(context.Background(), SubmitReviewCommand{OrderID: order.ID, Role: domain.ReviewRoleClient, ReviewerID: order.ClientID, Rating: 4}); err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	provider, _ := reg.Ratings().UserRatings(context.Background(), order.ProviderID)
	if provider.AsProvider.Count != 1 {
		t.Fatalf("expected provider aggregate to be updated, got %+v", provider.AsProvider)
	}
}
