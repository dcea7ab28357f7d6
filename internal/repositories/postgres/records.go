package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

// GigRepository stores gigs.
type GigRepository struct {
	pool *pgxpool.Pool
}

const gigColumns = `id, provider_id, title, description, price, currency, delivery_days, status, rating_sum, rating_count, created_at, updated_at`

func (r *GigRepository) Insert(ctx context.Context, gig domain.Gig) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO gigs (`+gigColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		gig.ID, gig.ProviderID, gig.Title, gig.Description, gig.Price, gig.Currency, gig.DeliveryDays,
		string(gig.Status), gig.Rating.Sum, gig.Rating.Count, gig.CreatedAt.UTC(), gig.UpdatedAt.UTC(),
	)
	return wrapError("gigs.insert", err)
}

func (r *GigRepository) FindByID(ctx context.Context, gigID string) (domain.Gig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = $1`, gigID)
	if err != nil {
		return domain.Gig{}, wrapError("gigs.findByID", err)
	}
	gig, err := pgx.CollectExactlyOneRow(rows, scanGig)
	return gig, wrapError("gigs.findByID", err)
}

func (r *GigRepository) UpdateStatus(ctx context.Context, gigID string, status domain.GigStatus, updatedAt time.Time) (domain.Gig, error) {
	rows, err := r.pool.Query(ctx, `UPDATE gigs SET status = $2, updated_at = $3 WHERE id = $1 RETURNING `+gigColumns,
		gigID, string(status), updatedAt.UTC())
	if err != nil {
		return domain.Gig{}, wrapError("gigs.updateStatus", err)
	}
	gig, err := pgx.CollectExactlyOneRow(rows, scanGig)
	return gig, wrapError("gigs.updateStatus", err)
}

func scanGig(row pgx.CollectableRow) (domain.Gig, error) {
	var (
		gig    domain.Gig
		status string
	)
	err := row.Scan(&gig.ID, &gig.ProviderID, &gig.Title, &gig.Description, &gig.Price, &gig.Currency,
		&gig.DeliveryDays, &status, &gig.Rating.Sum, &gig.Rating.Count, &gig.CreatedAt, &gig.UpdatedAt)
	gig.Status = domain.GigStatus(status)
	return gig, err
}

// CheckoutSessionRepository stores gateway session snapshots.
type CheckoutSessionRepository struct {
	pool *pgxpool.Pool
}

func (r *CheckoutSessionRepository) Insert(ctx context.Context, s domain.CheckoutSession) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO checkout_sessions
		(reference, provider, gig_id, gig_title, provider_id, client_id, amount, currency, instructions, contact,
		 deadline, redirect_url, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.Reference, s.Provider, s.GigID, s.GigTitle, s.ProviderID, s.ClientID, s.Amount, s.Currency,
		s.Instructions, s.Contact, s.Deadline, s.RedirectURL, s.ExpiresAt, s.CreatedAt.UTC(),
	)
	return wrapError("checkoutSessions.insert", err)
}

func (r *CheckoutSessionRepository) FindByReference(ctx context.Context, reference string) (domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	err := r.pool.QueryRow(ctx, `SELECT reference, provider, gig_id, gig_title, provider_id, client_id, amount, currency,
		instructions, contact, deadline, redirect_url, expires_at, created_at
		FROM checkout_sessions WHERE reference = $1`, reference).Scan(
		&s.Reference, &s.Provider, &s.GigID, &s.GigTitle, &s.ProviderID, &s.ClientID, &s.Amount, &s.Currency,
		&s.Instructions, &s.Contact, &s.Deadline, &s.RedirectURL, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return domain.CheckoutSession{}, wrapError("checkoutSessions.findByReference", err)
	}
	return s, nil
}

// NotificationRepository is the outbox table.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func (r *NotificationRepository) Save(ctx context.Context, n domain.Notification) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO notifications
		(id, user_id, type, message, link, order_id, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		n.ID, n.UserID, string(n.Type), n.Message, n.Link, n.OrderID, string(n.Status), n.Attempts, n.LastError,
		n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
	)
	return wrapError("notifications.save", err)
}

func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = maxPageSize
	}
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, type, message, link, order_id, status, attempts, last_error, created_at, updated_at
		FROM notifications WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, wrapError("notifications.listPending", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Notification, error) {
		var (
			n          domain.Notification
			kind, stat string
		)
		err := row.Scan(&n.ID, &n.UserID, &kind, &n.Message, &n.Link, &n.OrderID, &stat, &n.Attempts, &n.LastError, &n.CreatedAt, &n.UpdatedAt)
		n.Type = domain.NotificationType(kind)
		n.Status = domain.NotificationStatus(stat)
		return n, err
	})
	return out, wrapError("notifications.listPending", err)
}

func (r *NotificationRepository) MarkDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error {
	const op = "notifications.markDelivered"
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET status = 'delivered', updated_at = $2 WHERE id = $1`,
		notificationID, deliveredAt.UTC())
	if err != nil {
		return wrapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NotFound(op, "notification %s not found", notificationID)
	}
	return nil
}
