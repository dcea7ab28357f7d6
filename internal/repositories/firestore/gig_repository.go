package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gigmarket/api/internal/domain"
	pfirestore "github.com/gigmarket/api/internal/platform/firestore"
)

type gigDocument struct {
	ProviderID   string    `firestore:"providerId"`
	Title        string    `firestore:"title"`
	Description  string    `firestore:"description"`
	Price        int64     `firestore:"price"`
	Currency     string    `firestore:"currency"`
	DeliveryDays int       `firestore:"deliveryDays"`
	Status       string    `firestore:"status"`
	RatingSum    int64     `firestore:"ratingSum"`
	RatingCount  int64     `firestore:"ratingCount"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// GigRepository persists gigs in the gigs collection.
type GigRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[gigDocument]
}

// NewGigRepository constructs a Firestore-backed gig repository.
func NewGigRepository(provider *pfirestore.Provider) (*GigRepository, error) {
	if provider == nil {
		return nil, errors.New("gig repository: firestore provider is required")
	}
	return &GigRepository{provider: provider, docs: pfirestore.NewCollection[gigDocument](provider, gigsCollection)}, nil
}

func (r *GigRepository) Insert(ctx context.Context, gig domain.Gig) error {
	return r.docs.Create(ctx, gig.ID, encodeGig(gig))
}

func (r *GigRepository) FindByID(ctx context.Context, gigID string) (domain.Gig, error) {
	doc, err := r.docs.Get(ctx, gigID)
	if err != nil {
		return domain.Gig{}, err
	}
	return doc.toDomain(gigID), nil
}

func (r *GigRepository) UpdateStatus(ctx context.Context, gigID string, status domain.GigStatus, updatedAt time.Time) (domain.Gig, error) {
	const op = "gigs.updateStatus"
	ref, err := r.docs.Doc(ctx, gigID)
	if err != nil {
		return domain.Gig{}, err
	}

	var updated gigDocument
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError(op, err)
		}
		if err := snap.DataTo(&updated); err != nil {
			return err
		}
		updated.Status = string(status)
		updated.UpdatedAt = updatedAt
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: updated.Status},
			{Path: "updatedAt", Value: updatedAt},
		})
	})
	if err != nil {
		return domain.Gig{}, pfirestore.WrapError(op, err)
	}
	return updated.toDomain(gigID), nil
}

func encodeGig(gig domain.Gig) gigDocument {
	return gigDocument{
		ProviderID:   gig.ProviderID,
		Title:        gig.Title,
		Description:  gig.Description,
		Price:        gig.Price,
		Currency:     gig.Currency,
		DeliveryDays: gig.DeliveryDays,
		Status:       string(gig.Status),
		RatingSum:    gig.Rating.Sum,
		RatingCount:  gig.Rating.Count,
		CreatedAt:    gig.CreatedAt,
		UpdatedAt:    gig.UpdatedAt,
	}
}

func (d gigDocument) toDomain(id string) domain.Gig {
	return domain.Gig{
		ID:           id,
		ProviderID:   d.ProviderID,
		Title:        d.Title,
		Description:  d.Description,
		Price:        d.Price,
		Currency:     d.Currency,
		DeliveryDays: d.DeliveryDays,
		Status:       domain.GigStatus(d.Status),
		Rating:       domain.RatingAggregate{Sum: d.RatingSum, Count: d.RatingCount},
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
