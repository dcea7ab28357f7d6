package handlers

import (
	"math"

	domain "github.com/gigmarket/api/internal/domain"
)

type artifactPayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type deliveryPayload struct {
	Artifacts   []artifactPayload `json:"artifacts"`
	Message     string            `json:"message,omitempty"`
	SubmittedAt string            `json:"submitted_at,omitempty"`
}

type orderFlagsPayload struct {
	ManualReview       bool   `json:"manual_review"`
	ManualReviewReason string `json:"manual_review_reason,omitempty"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	GigID            string             `json:"gig_id"`
	GigTitle         string             `json:"gig_title,omitempty"`
	ProviderID       string             `json:"provider_id"`
	ClientID         string             `json:"client_id"`
	Price            int64              `json:"price"`
	Currency         string             `json:"currency"`
	Status           string             `json:"status"`
	Instructions     string             `json:"instructions,omitempty"`
	Contact          string             `json:"contact,omitempty"`
	Deadline         string             `json:"deadline,omitempty"`
	Delivery         *deliveryPayload   `json:"delivery,omitempty"`
	RevisionFeedback *string            `json:"revision_feedback,omitempty"`
	RevisionCount    int                `json:"revision_count"`
	SessionReference string             `json:"session_reference,omitempty"`
	Flags            *orderFlagsPayload `json:"flags,omitempty"`
	CreatedAt        string             `json:"created_at"`
	UpdatedAt        string             `json:"updated_at"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		GigID:            order.GigID,
		GigTitle:         order.GigTitle,
		ProviderID:       order.ProviderID,
		ClientID:         order.ClientID,
		Price:            order.Price,
		Currency:         order.Currency,
		Status:           string(order.Status),
		Instructions:     order.Instructions,
		Contact:          order.Contact,
		Deadline:         formatTimePtr(order.Deadline),
		RevisionFeedback: order.RevisionFeedback,
		RevisionCount:    order.RevisionCount,
		SessionReference: order.PaymentSessionRef,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
	if order.Delivery != nil {
		delivery := &deliveryPayload{
			Artifacts:   make([]artifactPayload, 0, len(order.Delivery.Artifacts)),
			Message:     order.Delivery.Message,
			SubmittedAt: formatTime(order.Delivery.SubmittedAt),
		}
		for _, artifact := range order.Delivery.Artifacts {
			delivery.Artifacts = append(delivery.Artifacts, artifactPayload{Name: artifact.Name, URL: artifact.URL})
		}
		payload.Delivery = delivery
	}
	if order.Flags.ManualReview {
		payload.Flags = &orderFlagsPayload{
			ManualReview:       true,
			ManualReviewReason: order.Flags.ManualReviewReason,
		}
	}
	return payload
}

type ratingPayload struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

func buildRatingPayload(agg domain.RatingAggregate) ratingPayload {
	// Rounded to two decimals; count carries the precision.
	return ratingPayload{
		Average: math.Round(agg.Average()*100) / 100,
		Count:   agg.Count,
	}
}

type gigPayload struct {
	ID           string        `json:"id"`
	ProviderID   string        `json:"provider_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Price        int64         `json:"price"`
	Currency     string        `json:"currency"`
	DeliveryDays int           `json:"delivery_days"`
	Status       string        `json:"status"`
	Rating       ratingPayload `json:"rating"`
	CreatedAt    string        `json:"created_at"`
	UpdatedAt    string        `json:"updated_at"`
}

func buildGigPayload(gig domain.Gig) gigPayload {
	return gigPayload{
		ID:           gig.ID,
		ProviderID:   gig.ProviderID,
		Title:        gig.Title,
		Description:  gig.Description,
		Price:        gig.Price,
		Currency:     gig.Currency,
		DeliveryDays: gig.DeliveryDays,
		Status:       string(gig.Status),
		Rating:       buildRatingPayload(gig.Rating),
		CreatedAt:    formatTime(gig.CreatedAt),
		UpdatedAt:    formatTime(gig.UpdatedAt),
	}
}

type reviewPayload struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	GigID      string `json:"gig_id"`
	Role       string `json:"role"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	ReviewerID string `json:"reviewer_id"`
	RevieweeID string `json:"reviewee_id"`
	CreatedAt  string `json:"created_at"`
}

func buildReviewPayload(review domain.Review) reviewPayload {
	return reviewPayload{
		ID:         review.ID,
		OrderID:    review.OrderID,
		GigID:      review.GigID,
		Role:       string(review.Role),
		Rating:     review.Rating,
		Comment:    review.Comment,
		ReviewerID: review.ReviewerID,
		RevieweeID: review.RevieweeID,
		CreatedAt:  formatTime(review.CreatedAt),
	}
}

type pagePayload[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

func buildPagePayload[S any, T any](page domain.CursorPage[S], convert func(S) T) pagePayload[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pagePayload[T]{Items: items, NextPageToken: page.NextPageToken}
}
