package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const orderColumns = `id, gig_id, gig_title, provider_id, client_id, price, currency, status, instructions, contact,
	deadline, delivery, revision_feedback, revision_count, payment_session_ref, manual_review, manual_review_reason,
	created_at, updated_at`

type artifactJSON struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type deliveryJSON struct {
	Artifacts   []artifactJSON `json:"artifacts"`
	Message     string         `json:"message,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// OrderRepository stores orders; the primary key doubles as the payment idempotency key.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func (r *OrderRepository) CreateIfAbsent(ctx context.Context, order domain.Order) (domain.Order, bool, error) {
	const op = "orders.createIfAbsent"
	tag, err := r.pool.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT DO NOTHING`,
		order.ID, order.GigID, order.GigTitle, order.ProviderID, order.ClientID, order.Price, order.Currency,
		string(order.Status), order.Instructions, order.Contact, order.Deadline, encodeDelivery(order.Delivery),
		order.RevisionFeedback, order.RevisionCount, order.PaymentSessionRef, order.Flags.ManualReview,
		order.Flags.ManualReviewReason, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
	)
	if err != nil {
		return domain.Order{}, false, wrapError(op, err)
	}
	if tag.RowsAffected() == 1 {
		return order, true, nil
	}
	existing, err := r.FindByID(ctx, order.ID)
	if err != nil {
		return domain.Order{}, false, err
	}
	return existing, false, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return domain.Order{}, wrapError("orders.findByID", err)
	}
	order, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return domain.Order{}, wrapError("orders.findByID", err)
	}
	return order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	const op = "orders.updateStatus"
	increment := 0
	if update.IncrementRevision {
		increment = 1
	}
	rows, err := r.pool.Query(ctx, `UPDATE orders SET
			status = $2,
			delivery = COALESCE($3::jsonb, delivery),
			revision_feedback = COALESCE($4::text, revision_feedback),
			revision_count = revision_count + $5,
			updated_at = $6
		WHERE id = $1 AND status = $7
		RETURNING `+orderColumns,
		update.OrderID, string(update.NextStatus), encodeDelivery(update.Delivery), update.RevisionFeedback,
		increment, update.UpdatedAt.UTC(), string(update.ExpectedStatus),
	)
	if err != nil {
		return domain.Order{}, wrapError(op, err)
	}
	order, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, wrapError(op, err)
	}
	// No row matched: either the order is missing or its status moved.
	current, findErr := r.FindByID(ctx, update.OrderID)
	if findErr != nil {
		return domain.Order{}, findErr
	}
	return domain.Order{}, repositories.Conflict(op, "order %s is %s, expected %s", current.ID, current.Status, update.ExpectedStatus)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	const op = "orders.list"
	afterAt, afterID, err := decodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := normalizePageSize(filter.Pagination.PageSize)

	column := "client_id"
	if filter.Role == domain.ActorProvider {
		column = "provider_id"
	}
	statuses := make([]string, len(filter.Status))
	for i, s := range filter.Status {
		statuses[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE `+column+` = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		  AND ($3::timestamptz IS NULL OR (created_at, id) < ($3::timestamptz, $4::text))
		ORDER BY created_at DESC, id DESC
		LIMIT $5`,
		filter.UserID, statuses, afterAt, afterID, pageSize+1,
	)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError(op, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError(op, err)
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if len(orders) > pageSize {
		page.Items = orders[:pageSize]
		last := page.Items[pageSize-1]
		if page.NextPageToken, err = encodeCursor(last.CreatedAt, last.ID); err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}
	return page, nil
}

func scanOrder(row pgx.CollectableRow) (domain.Order, error) {
	var (
		order    domain.Order
		status   string
		delivery *deliveryJSON
	)
	err := row.Scan(
		&order.ID, &order.GigID, &order.GigTitle, &order.ProviderID, &order.ClientID, &order.Price, &order.Currency,
		&status, &order.Instructions, &order.Contact, &order.Deadline, &delivery, &order.RevisionFeedback,
		&order.RevisionCount, &order.PaymentSessionRef, &order.Flags.ManualReview, &order.Flags.ManualReviewReason,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if delivery != nil {
		artifacts := make([]domain.Artifact, len(delivery.Artifacts))
		for i, a := range delivery.Artifacts {
			artifacts[i] = domain.Artifact{Name: a.Name, URL: a.URL}
		}
		order.Delivery = &domain.Delivery{Artifacts: artifacts, Message: delivery.Message, SubmittedAt: delivery.SubmittedAt}
	}
	return order, nil
}

func encodeDelivery(delivery *domain.Delivery) *deliveryJSON {
	if delivery == nil {
		return nil
	}
	artifacts := make([]artifactJSON, len(delivery.Artifacts))
	for i, a := range delivery.Artifacts {
		artifacts[i] = artifactJSON{Name: a.Name, URL: a.URL}
	}
	return &deliveryJSON{Artifacts: artifacts, Message: delivery.Message, SubmittedAt: delivery.SubmittedAt.UTC()}
}
