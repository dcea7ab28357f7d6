package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const reviewColumns = `id, order_id, gig_id, role, rating, comment, reviewer_id, reviewee_id, created_at`

// ReviewRepository stores the review log; UNIQUE (order_id, role) rejects a second review per side.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

func (r *ReviewRepository) InsertWithAggregates(ctx context.Context, review domain.Review) error {
	const op = "reviews.insertWithAggregates"
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			review.ID, review.OrderID, review.GigID, string(review.Role), review.Rating, review.Comment,
			review.ReviewerID, review.RevieweeID, review.CreatedAt.UTC(),
		); err != nil {
			return err
		}
		for _, target := range domain.RatingTargetsFor(review) {
			if err := applyRating(ctx, tx, target, review.Rating, review.CreatedAt.UTC()); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapError(op, err)
}

func applyRating(ctx context.Context, tx pgx.Tx, target domain.RatingTarget, rating int, at time.Time) error {
	var err error
	switch target.Kind {
	case domain.RatingTargetGig:
		// Listings removed after purchase keep no aggregate; zero rows affected is fine.
		_, err = tx.Exec(ctx, `UPDATE gigs SET rating_sum = rating_sum + $2, rating_count = rating_count + 1 WHERE id = $1`,
			target.ID, rating)
	case domain.RatingTargetUserAsProvider:
		_, err = tx.Exec(ctx, `INSERT INTO user_ratings (user_id, as_provider_sum, as_provider_count, updated_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				as_provider_sum = user_ratings.as_provider_sum + EXCLUDED.as_provider_sum,
				as_provider_count = user_ratings.as_provider_count + 1,
				updated_at = EXCLUDED.updated_at`,
			target.ID, rating, at)
	case domain.RatingTargetUserAsClient:
		_, err = tx.Exec(ctx, `INSERT INTO user_ratings (user_id, as_client_sum, as_client_count, updated_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				as_client_sum = user_ratings.as_client_sum + EXCLUDED.as_client_sum,
				as_client_count = user_ratings.as_client_count + 1,
				updated_at = EXCLUDED.updated_at`,
			target.ID, rating, at)
	}
	return err
}

func (r *ReviewRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Review, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE order_id = $1 ORDER BY role`, orderID)
	if err != nil {
		return nil, wrapError("reviews.listByOrder", err)
	}
	reviews, err := pgx.CollectRows(rows, scanReview)
	return reviews, wrapError("reviews.listByOrder", err)
}

func (r *ReviewRepository) ListByGig(ctx context.Context, gigID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	return r.list(ctx, "reviews.listByGig", `gig_id = $1 AND role = 'client_review'`, gigID, nil, pager)
}

func (r *ReviewRepository) ListByReviewee(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	var role *string
	if filter.Role != nil {
		value := string(*filter.Role)
		role = &value
	}
	return r.list(ctx, "reviews.listByReviewee", `reviewee_id = $1`, filter.RevieweeID, role, filter.Pagination)
}

func (r *ReviewRepository) list(ctx context.Context, op, where, key string, role *string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	afterAt, afterID, err := decodeCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}
	pageSize := normalizePageSize(pager.PageSize)

	rows, err := r.pool.Query(ctx, `SELECT `+reviewColumns+` FROM reviews
		WHERE `+where+`
		  AND ($2::text IS NULL OR role = $2::text)
		  AND ($3::timestamptz IS NULL OR (created_at, id) < ($3::timestamptz, $4::text))
		ORDER BY created_at DESC, id DESC
		LIMIT $5`,
		key, role, afterAt, afterID, pageSize+1,
	)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, wrapError(op, err)
	}
	reviews, err := pgx.CollectRows(rows, scanReview)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, wrapError(op, err)
	}

	page := domain.CursorPage[domain.Review]{Items: reviews}
	if len(reviews) > pageSize {
		page.Items = reviews[:pageSize]
		last := page.Items[pageSize-1]
		if page.NextPageToken, err = encodeCursor(last.CreatedAt, last.ID); err != nil {
			return domain.CursorPage[domain.Review]{}, err
		}
	}
	return page, nil
}

func (r *ReviewRepository) RatingsFor(ctx context.Context, target domain.RatingTarget) ([]int, error) {
	var (
		column = "reviewee_id"
		role   = string(domain.ReviewRoleClient)
	)
	switch target.Kind {
	case domain.RatingTargetGig:
		column = "gig_id"
	case domain.RatingTargetUserAsClient:
		role = string(domain.ReviewRoleProvider)
	}
	rows, err := r.pool.Query(ctx, `SELECT rating FROM reviews WHERE `+column+` = $1 AND role = $2 ORDER BY created_at`, target.ID, role)
	if err != nil {
		return nil, wrapError("reviews.ratingsFor", err)
	}
	ratings, err := pgx.CollectRows(rows, pgx.RowTo[int])
	return ratings, wrapError("reviews.ratingsFor", err)
}

func scanReview(row pgx.CollectableRow) (domain.Review, error) {
	var (
		review domain.Review
		role   string
	)
	if err := row.Scan(&review.ID, &review.OrderID, &review.GigID, &role, &review.Rating, &review.Comment,
		&review.ReviewerID, &review.RevieweeID, &review.CreatedAt); err != nil {
		return domain.Review{}, err
	}
	review.Role = domain.ReviewRole(role)
	return review, nil
}

// RatingRepository reads aggregate columns on gigs and user_ratings.
type RatingRepository struct {
	pool *pgxpool.Pool
}

func (r *RatingRepository) UserRatings(ctx context.Context, userID string) (domain.UserRatings, error) {
	ratings := domain.UserRatings{UserID: userID}
	err := r.pool.QueryRow(ctx, `SELECT as_provider_sum, as_provider_count, as_client_sum, as_client_count, updated_at
		FROM user_ratings WHERE user_id = $1`, userID).Scan(
		&ratings.AsProvider.Sum, &ratings.AsProvider.Count, &ratings.AsClient.Sum, &ratings.AsClient.Count, &ratings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserRatings{UserID: userID}, nil
	}
	if err != nil {
		return domain.UserRatings{}, wrapError("ratings.userRatings", err)
	}
	return ratings, nil
}

func (r *RatingRepository) Aggregate(ctx context.Context, target domain.RatingTarget) (domain.RatingAggregate, error) {
	if target.Kind == domain.RatingTargetGig {
		var agg domain.RatingAggregate
		err := r.pool.QueryRow(ctx, `SELECT rating_sum, rating_count FROM gigs WHERE id = $1`, target.ID).Scan(&agg.Sum, &agg.Count)
		return agg, wrapError("ratings.aggregate", err)
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
	if target.Kind == domain.RatingTargetGig {
		tag, err := r.pool.Exec(ctx, `UPDATE gigs SET rating_sum = $2, rating_count = $3
			WHERE id = $1 AND rating_sum = $4 AND rating_count = $5`,
			target.ID, agg.Sum, agg.Count, expected.Sum, expected.Count)
		if err != nil {
			return wrapError(op, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gigs WHERE id = $1)`, target.ID).Scan(&exists); err != nil {
			return wrapError(op, err)
		}
		if !exists {
			return repositories.NotFound(op, "gig %s not found", target.ID)
		}
		return repositories.Conflict(op, "gig %s aggregate changed", target.ID)
	}

	sumColumn, countColumn := "as_client_sum", "as_client_count"
	if target.Kind == domain.RatingTargetUserAsProvider {
		sumColumn, countColumn = "as_provider_sum", "as_provider_count"
	}
	var tag pgconn.CommandTag
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO user_ratings (user_id, updated_at) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING`, target.ID, updatedAt.UTC()); err != nil {
			return err
		}
		var err error
		tag, err = tx.Exec(ctx, `UPDATE user_ratings SET `+sumColumn+` = $2, `+countColumn+` = $3, updated_at = $4
			WHERE user_id = $1 AND `+sumColumn+` = $5 AND `+countColumn+` = $6`,
			target.ID, agg.Sum, agg.Count, updatedAt.UTC(), expected.Sum, expected.Count)
		return err
	})
	if err != nil {
		return wrapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.Conflict(op, "user %s aggregate changed", target.ID)
	}
	return nil
}
