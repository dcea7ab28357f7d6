package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gigmarket/api/internal/domain"
	pfirestore "github.com/gigmarket/api/internal/platform/firestore"
)

type sessionDocument struct {
	Provider     string     `firestore:"provider"`
	GigID        string     `firestore:"gigId"`
	GigTitle     string     `firestore:"gigTitle,omitempty"`
	ProviderID   string     `firestore:"providerId"`
	ClientID     string     `firestore:"clientId"`
	Amount       int64      `firestore:"amount"`
	Currency     string     `firestore:"currency"`
	Instructions string     `firestore:"instructions,omitempty"`
	Contact      string     `firestore:"contact,omitempty"`
	Deadline     *time.Time `firestore:"deadline,omitempty"`
	RedirectURL  string     `firestore:"redirectUrl,omitempty"`
	ExpiresAt    *time.Time `firestore:"expiresAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
}

// CheckoutSessionRepository stores the amount snapshot of each gateway session.
type CheckoutSessionRepository struct {
	docs *pfirestore.Collection[sessionDocument]
}

func (r *CheckoutSessionRepository) Insert(ctx context.Context, session domain.CheckoutSession) error {
	return r.docs.Create(ctx, session.Reference, sessionDocument{
		Provider:     session.Provider,
		GigID:        session.GigID,
		GigTitle:     session.GigTitle,
		ProviderID:   session.ProviderID,
		ClientID:     session.ClientID,
		Amount:       session.Amount,
		Currency:     session.Currency,
		Instructions: session.Instructions,
		Contact:      session.Contact,
		Deadline:     session.Deadline,
		RedirectURL:  session.RedirectURL,
		ExpiresAt:    session.ExpiresAt,
		CreatedAt:    session.CreatedAt,
	})
}

func (r *CheckoutSessionRepository) FindByReference(ctx context.Context, reference string) (domain.CheckoutSession, error) {
	doc, err := r.docs.Get(ctx, reference)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return domain.CheckoutSession{
		Reference:    reference,
		Provider:     doc.Provider,
		GigID:        doc.GigID,
		GigTitle:     doc.GigTitle,
		ProviderID:   doc.ProviderID,
		ClientID:     doc.ClientID,
		Amount:       doc.Amount,
		Currency:     doc.Currency,
		Instructions: doc.Instructions,
		Contact:      doc.Contact,
		Deadline:     doc.Deadline,
		RedirectURL:  doc.RedirectURL,
		ExpiresAt:    doc.ExpiresAt,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

type notificationDocument struct {
	UserID    string    `firestore:"userId"`
	Type      string    `firestore:"type"`
	Message   string    `firestore:"message"`
	Link      string    `firestore:"link,omitempty"`
	OrderID   string    `firestore:"orderId,omitempty"`
	Status    string    `firestore:"status"`
	Attempts  int       `firestore:"attempts"`
	LastError string    `firestore:"lastError,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// NotificationRepository is the Firestore outbox for undelivered notifications.
type NotificationRepository struct {
	docs *pfirestore.Collection[notificationDocument]
}

func (r *NotificationRepository) Save(ctx context.Context, n domain.Notification) error {
	return r.docs.Set(ctx, n.ID, notificationDocument{
		UserID:    n.UserID,
		Type:      string(n.Type),
		Message:   n.Message,
		Link:      n.Link,
		OrderID:   n.OrderID,
		Status:    string(n.Status),
		Attempts:  n.Attempts,
		LastError: n.LastError,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	})
}

func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]domain.Notification, error) {
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.NotificationPending)).OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		d := doc.Data
		out = append(out, domain.Notification{
			ID:        doc.ID,
			UserID:    d.UserID,
			Type:      domain.NotificationType(d.Type),
			Message:   d.Message,
			Link:      d.Link,
			OrderID:   d.OrderID,
			Status:    domain.NotificationStatus(d.Status),
			Attempts:  d.Attempts,
			LastError: d.LastError,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return out, nil
}

func (r *NotificationRepository) MarkDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error {
	ref, err := r.docs.Doc(ctx, notificationID)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "status", Value: string(domain.NotificationDelivered)},
		{Path: "updatedAt", Value: deliveredAt},
	})
	return pfirestore.WrapError("notifications.markDelivered", err)
}
