package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/gigmarket/api/internal/domain"
	pfirestore "github.com/gigmarket/api/internal/platform/firestore"
	"github.com/gigmarket/api/internal/repositories"
)

type artifactDocument struct {
	Name string `firestore:"name"`
	URL  string `firestore:"url"`
}

type deliveryDocument struct {
	Artifacts   []artifactDocument `firestore:"artifacts"`
	Message     string             `firestore:"message,omitempty"`
	SubmittedAt time.Time          `firestore:"submittedAt"`
}

type orderDocument struct {
	GigID              string            `firestore:"gigId"`
	GigTitle           string            `firestore:"gigTitle,omitempty"`
	ProviderID         string            `firestore:"providerId"`
	ClientID           string            `firestore:"clientId"`
	Price              int64             `firestore:"price"`
	Currency           string            `firestore:"currency"`
	Status             string            `firestore:"status"`
	Instructions       string            `firestore:"instructions,omitempty"`
	Contact            string            `firestore:"contact,omitempty"`
	Deadline           *time.Time        `firestore:"deadline,omitempty"`
	Delivery           *deliveryDocument `firestore:"delivery,omitempty"`
	RevisionFeedback   *string           `firestore:"revisionFeedback,omitempty"`
	RevisionCount      int               `firestore:"revisionCount"`
	PaymentSessionRef  string            `firestore:"paymentSessionRef"`
	ManualReview       bool              `firestore:"manualReview"`
	ManualReviewReason string            `firestore:"manualReviewReason,omitempty"`
	CreatedAt          time.Time         `firestore:"createdAt"`
	UpdatedAt          time.Time         `firestore:"updatedAt"`
}

// OrderRepository persists orders keyed by the id derived from their payment session.
type OrderRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{provider: provider, docs: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}, nil
}

func (r *OrderRepository) CreateIfAbsent(ctx context.Context, order domain.Order) (domain.Order, bool, error) {
	const op = "orders.createIfAbsent"
	ref, err := r.docs.Doc(ctx, order.ID)
	if err != nil {
		return domain.Order{}, false, err
	}

	var (
		stored  domain.Order
		created bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing orderDocument
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			stored = existing.toDomain(order.ID)
			return nil
		case status.Code(err) != codes.NotFound:
			return err
		}
		// A concurrent confirmation that commits first makes this commit fail with AlreadyExists.
		if err := tx.Create(ref, encodeOrder(order)); err != nil {
			return err
		}
		stored = order
		created = true
		return nil
	})
	if err != nil {
		var fsErr *pfirestore.Error
		if errors.As(err, &fsErr) && fsErr.IsConflict() {
			// Lost the creation race: fetch the winner.
			existing, getErr := r.FindByID(ctx, order.ID)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return domain.Order{}, false, pfirestore.WrapError(op, err)
	}
	return stored, created, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.docs.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	const op = "orders.updateStatus"
	ref, err := r.docs.Doc(ctx, update.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	var updated orderDocument
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError(op, err)
		}
		if err := snap.DataTo(&updated); err != nil {
			return err
		}
		if updated.Status != string(update.ExpectedStatus) {
			return pfirestore.ConflictError(op, "order %s is %s, expected %s", update.OrderID, updated.Status, update.ExpectedStatus)
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(update.NextStatus)},
			{Path: "updatedAt", Value: update.UpdatedAt},
		}
		updated.Status = string(update.NextStatus)
		updated.UpdatedAt = update.UpdatedAt
		if update.Delivery != nil {
			updated.Delivery = encodeDelivery(update.Delivery)
			updates = append(updates, firestore.Update{Path: "delivery", Value: updated.Delivery})
		}
		if update.RevisionFeedback != nil {
			feedback := *update.RevisionFeedback
			updated.RevisionFeedback = &feedback
			updates = append(updates, firestore.Update{Path: "revisionFeedback", Value: feedback})
		}
		if update.IncrementRevision {
			updated.RevisionCount++
			updates = append(updates, firestore.Update{Path: "revisionCount", Value: updated.RevisionCount})
		}
		return tx.Update(ref, updates, firestore.Exists)
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError(op, err)
	}
	return updated.toDomain(update.OrderID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	token, err := decodePageToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := normalizePageSize(filter.Pagination.PageSize)

	field := "clientId"
	if filter.Role == domain.ActorProvider {
		field = "providerId"
	}
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where(field, "==", filter.UserID)
		if len(filter.Status) > 0 {
			statuses := make([]string, len(filter.Status))
			for i, s := range filter.Status {
				statuses[i] = string(s)
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if token != nil {
			q = q.StartAfter(token.CreatedAt, token.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, pageSize)}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			next, err := encodePageToken(pageToken{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = next
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

func encodeOrder(order domain.Order) orderDocument {
	return orderDocument{
		GigID:              order.GigID,
		GigTitle:           order.GigTitle,
		ProviderID:         order.ProviderID,
		ClientID:           order.ClientID,
		Price:              order.Price,
		Currency:           order.Currency,
		Status:             string(order.Status),
		Instructions:       order.Instructions,
		Contact:            order.Contact,
		Deadline:           order.Deadline,
		Delivery:           encodeDelivery(order.Delivery),
		RevisionFeedback:   order.RevisionFeedback,
		RevisionCount:      order.RevisionCount,
		PaymentSessionRef:  order.PaymentSessionRef,
		ManualReview:       order.Flags.ManualReview,
		ManualReviewReason: order.Flags.ManualReviewReason,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func encodeDelivery(delivery *domain.Delivery) *deliveryDocument {
	if delivery == nil {
		return nil
	}
	artifacts := make([]artifactDocument, len(delivery.Artifacts))
	for i, a := range delivery.Artifacts {
		artifacts[i] = artifactDocument{Name: a.Name, URL: a.URL}
	}
	return &deliveryDocument{Artifacts: artifacts, Message: delivery.Message, SubmittedAt: delivery.SubmittedAt}
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                id,
		GigID:             d.GigID,
		GigTitle:          d.GigTitle,
		ProviderID:        d.ProviderID,
		ClientID:          d.ClientID,
		Price:             d.Price,
		Currency:          d.Currency,
		Status:            domain.OrderStatus(d.Status),
		Instructions:      d.Instructions,
		Contact:           d.Contact,
		Deadline:          d.Deadline,
		RevisionFeedback:  d.RevisionFeedback,
		RevisionCount:     d.RevisionCount,
		PaymentSessionRef: d.PaymentSessionRef,
		Flags:             domain.OrderFlags{ManualReview: d.ManualReview, ManualReviewReason: d.ManualReviewReason},
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.Delivery != nil {
		artifacts := make([]domain.Artifact, len(d.Delivery.Artifacts))
		for i, a := range d.Delivery.Artifacts {
			artifacts[i] = domain.Artifact{Name: a.Name, URL: a.URL}
		}
		order.Delivery = &domain.Delivery{Artifacts: artifacts, Message: d.Delivery.Message, SubmittedAt: d.Delivery.SubmittedAt}
	}
	return order
}
