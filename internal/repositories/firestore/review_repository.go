package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gigmarket/api/internal/domain"
	pfirestore "github.com/gigmarket/api/internal/platform/firestore"
	"github.com/gigmarket/api/internal/repositories"
)

type reviewDocument struct {
	ReviewID   string    `firestore:"reviewId"`
	OrderID    string    `firestore:"orderId"`
	GigID      string    `firestore:"gigId"`
	Role       string    `firestore:"role"`
	Rating     int       `firestore:"rating"`
	Comment    string    `firestore:"comment,omitempty"`
	ReviewerID string    `firestore:"reviewerId"`
	RevieweeID string    `firestore:"revieweeId"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type userRatingsDocument struct {
	AsProviderSum   int64     `firestore:"asProviderSum"`
	AsProviderCount int64     `firestore:"asProviderCount"`
	AsClientSum     int64     `firestore:"asClientSum"`
	AsClientCount   int64     `firestore:"asClientCount"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// ReviewRepository stores reviews under <orderID>_<role> so the document id enforces one review per side.
type ReviewRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[reviewDocument]
	gigs     *pfirestore.Collection[gigDocument]
	users    *pfirestore.Collection[userRatingsDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository: firestore provider is required")
	}
	return &ReviewRepository{
		provider: provider,
		docs:     pfirestore.NewCollection[reviewDocument](provider, reviewsCollection),
		gigs:     pfirestore.NewCollection[gigDocument](provider, gigsCollection),
		users:    pfirestore.NewCollection[userRatingsDocument](provider, userRatingsCollection),
	}, nil
}

type pendingAggregate struct {
	ref    *firestore.DocumentRef
	target domain.RatingTarget
	gig    *gigDocument
	user   userRatingsDocument
}

func (r *ReviewRepository) InsertWithAggregates(ctx context.Context, review domain.Review) error {
	const op = "reviews.insertWithAggregates"
	key := domain.ReviewKey(review.OrderID, review.Role)
	reviewRef, err := r.docs.Doc(ctx, key)
	if err != nil {
		return err
	}

	targets := domain.RatingTargetsFor(review)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(reviewRef); err == nil {
			return pfirestore.ConflictError(op, "review %s already exists", key)
		} else if !pfirestore.IsNotFound(err) {
			return err
		}

		// Firestore requires every read before the first write.
		pending := make([]pendingAggregate, 0, len(targets))
		for _, target := range targets {
			item := pendingAggregate{target: target}
			ref, err := r.aggregateRef(ctx, target)
			if err != nil {
				return err
			}
			item.ref = ref
			snap, err := tx.Get(ref)
			switch {
			case err == nil:
			case pfirestore.IsNotFound(err):
				if target.Kind == domain.RatingTargetGig {
					// Listings removed after purchase keep no aggregate.
					continue
				}
			default:
				return err
			}
			if target.Kind == domain.RatingTargetGig {
				var gig gigDocument
				if err := snap.DataTo(&gig); err != nil {
					return err
				}
				item.gig = &gig
			} else if snap != nil && snap.Exists() {
				if err := snap.DataTo(&item.user); err != nil {
					return err
				}
			}
			pending = append(pending, item)
		}

		if err := tx.Create(reviewRef, encodeReview(review)); err != nil {
			return err
		}
		for _, item := range pending {
			if err := applyAggregate(tx, item, review.Rating, review.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	return pfirestore.WrapError(op, err)
}

func (r *ReviewRepository) aggregateRef(ctx context.Context, target domain.RatingTarget) (*firestore.DocumentRef, error) {
	if target.Kind == domain.RatingTargetGig {
		return r.gigs.Doc(ctx, target.ID)
	}
	return r.users.Doc(ctx, target.ID)
}

func applyAggregate(tx *firestore.Transaction, item pendingAggregate, rating int, at time.Time) error {
	switch item.target.Kind {
	case domain.RatingTargetGig:
		agg := domain.RatingAggregate{Sum: item.gig.RatingSum, Count: item.gig.RatingCount}.Apply(rating)
		return tx.Update(item.ref, []firestore.Update{
			{Path: "ratingSum", Value: agg.Sum},
			{Path: "ratingCount", Value: agg.Count},
		})
	case domain.RatingTargetUserAsProvider:
		agg := domain.RatingAggregate{Sum: item.user.AsProviderSum, Count: item.user.AsProviderCount}.Apply(rating)
		return tx.Set(item.ref, map[string]any{
			"asProviderSum":   agg.Sum,
			"asProviderCount": agg.Count,
			"updatedAt":       at,
		}, firestore.MergeAll)
	default:
		agg := domain.RatingAggregate{Sum: item.user.AsClientSum, Count: item.user.AsClientCount}.Apply(rating)
		return tx.Set(item.ref, map[string]any{
			"asClientSum":   agg.Sum,
			"asClientCount": agg.Count,
			"updatedAt":     at,
		}, firestore.MergeAll)
	}
}

func (r *ReviewRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Review, error) {
	out := make([]domain.Review, 0, 2)
	for _, role := range []domain.ReviewRole{domain.ReviewRoleClient, domain.ReviewRoleProvider} {
		doc, err := r.docs.Get(ctx, domain.ReviewKey(orderID, role))
		if err != nil {
			if pfirestore.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, nil
}

func (r *ReviewRepository) ListByGig(ctx context.Context, gigID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("gigId", "==", gigID).Where("role", "==", string(domain.ReviewRoleClient))
	})
}

func (r *ReviewRepository) ListByReviewee(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	return r.list(ctx, filter.Pagination, func(q firestore.Query) firestore.Query {
		q = q.Where("revieweeId", "==", filter.RevieweeID)
		if filter.Role != nil {
			q = q.Where("role", "==", string(*filter.Role))
		}
		return q
	})
}

func (r *ReviewRepository) list(ctx context.Context, pager domain.Pagination, where pfirestore.QueryBuilder) (domain.CursorPage[domain.Review], error) {
	token, err := decodePageToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}
	pageSize := normalizePageSize(pager.PageSize)

	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if token != nil {
			q = q.StartAfter(token.CreatedAt, token.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	page := domain.CursorPage[domain.Review]{Items: make([]domain.Review, 0, pageSize)}
	for i, doc := range docs {
		if i == pageSize {
			prev := docs[i-1]
			next, err := encodePageToken(pageToken{CreatedAt: prev.Data.CreatedAt, ID: prev.ID})
			if err != nil {
				return domain.CursorPage[domain.Review]{}, err
			}
			page.NextPageToken = next
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain())
	}
	return page, nil
}

func (r *ReviewRepository) RatingsFor(ctx context.Context, target domain.RatingTarget) ([]int, error) {
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		switch target.Kind {
		case domain.RatingTargetGig:
			q = q.Where("gigId", "==", target.ID).Where("role", "==", string(domain.ReviewRoleClient))
		case domain.RatingTargetUserAsProvider:
			q = q.Where("revieweeId", "==", target.ID).Where("role", "==", string(domain.ReviewRoleClient))
		default:
			q = q.Where("revieweeId", "==", target.ID).Where("role", "==", string(domain.ReviewRoleProvider))
		}
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	ratings := make([]int, 0, len(docs))
	for _, doc := range docs {
		ratings = append(ratings, doc.Data.Rating)
	}
	return ratings, nil
}

func encodeReview(review domain.Review) reviewDocument {
	return reviewDocument{
		ReviewID:   review.ID,
		OrderID:    review.OrderID,
		GigID:      review.GigID,
		Role:       string(review.Role),
		Rating:     review.Rating,
		Comment:    review.Comment,
		ReviewerID: review.ReviewerID,
		RevieweeID: review.RevieweeID,
		CreatedAt:  review.CreatedAt,
	}
}

func (d reviewDocument) toDomain() domain.Review {
	return domain.Review{
		ID:         d.ReviewID,
		OrderID:    d.OrderID,
		GigID:      d.GigID,
		Role:       domain.ReviewRole(d.Role),
		Rating:     d.Rating,
		Comment:    d.Comment,
		ReviewerID: d.ReviewerID,
		RevieweeID: d.RevieweeID,
		CreatedAt:  d.CreatedAt,
	}
}

// RatingRepository reads and repairs aggregates stored on gig and userRatings documents.
type RatingRepository struct {
	provider *pfirestore.Provider
	gigs     *pfirestore.Collection[gigDocument]
	users    *pfirestore.Collection[userRatingsDocument]
}

func (r *RatingRepository) UserRatings(ctx context.Context, userID string) (domain.UserRatings, error) {
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.UserRatings{UserID: userID}, nil
		}
		return domain.UserRatings{}, err
	}
	return domain.UserRatings{
		UserID:     userID,
		AsProvider: domain.RatingAggregate{Sum: doc.AsProviderSum, Count: doc.AsProviderCount},
		AsClient:   domain.RatingAggregate{Sum: doc.AsClientSum, Count: doc.AsClientCount},
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

func (r *RatingRepository) Aggregate(ctx context.Context, target domain.RatingTarget) (domain.RatingAggregate, error) {
	if target.Kind == domain.RatingTargetGig {
		gig, err := r.gigs.Get(ctx, target.ID)
		if err != nil {
			return domain.RatingAggregate{}, err
		}
		return domain.RatingAggregate{Sum: gig.RatingSum, Count: gig.RatingCount}, nil
	}
	user, err := r.UserRatings(ctx, target.ID)
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	if target.Kind == domain.RatingTargetUserAsProvider {
		return user.AsProvider, nil
	}
	return user.AsClient, nil
}

func (r *RatingRepository) ReplaceAggregate(ctx context.Context, target domain.RatingTarget, expected, agg domain.RatingAggregate, updatedAt time.Time) error {
	const op = "ratings.replaceAggregate"
	var (
		ref *firestore.DocumentRef
		err error
	)
	if target.Kind == domain.RatingTargetGig {
		ref, err = r.gigs.Doc(ctx, target.ID)
	} else {
		ref, err = r.users.Doc(ctx, target.ID)
	}
	if err != nil {
		return err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && (target.Kind == domain.RatingTargetGig || !pfirestore.IsNotFound(err)) {
			return err
		}

		var (
			current domain.RatingAggregate
			fields  map[string]any
		)
		switch target.Kind {
		case domain.RatingTargetGig:
			var gig gigDocument
			if err := snap.DataTo(&gig); err != nil {
				return err
			}
			current = domain.RatingAggregate{Sum: gig.RatingSum, Count: gig.RatingCount}
			fields = map[string]any{"ratingSum": agg.Sum, "ratingCount": agg.Count}
		default:
			var user userRatingsDocument
			if snap != nil && snap.Exists() {
				if err := snap.DataTo(&user); err != nil {
					return err
				}
			}
			if target.Kind == domain.RatingTargetUserAsProvider {
				current = domain.RatingAggregate{Sum: user.AsProviderSum, Count: user.AsProviderCount}
				fields = map[string]any{"asProviderSum": agg.Sum, "asProviderCount": agg.Count, "updatedAt": updatedAt}
			} else {
				current = domain.RatingAggregate{Sum: user.AsClientSum, Count: user.AsClientCount}
				fields = map[string]any{"asClientSum": agg.Sum, "asClientCount": agg.Count, "updatedAt": updatedAt}
			}
		}
		if current != expected {
			return pfirestore.ConflictError(op, "%s %s aggregate changed", target.Kind, target.ID)
		}
		return tx.Set(ref, fields, firestore.MergeAll)
	})
	return pfirestore.WrapError(op, err)
}
