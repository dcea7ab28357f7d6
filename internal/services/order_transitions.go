package services

import (
	"slices"

	domain "github.com/gigmarket/api/internal/domain"
)

type transitionKey struct {
	from domain.OrderStatus
	to   domain.OrderStatus
}

// orderTransitions is the closed set of lifecycle edges and the order side allowed to take each one.
var orderTransitions = map[transitionKey][]domain.ActorRole{
	{domain.OrderStatusBooked, domain.OrderStatusAccepted}:              {domain.ActorProvider},
	{domain.OrderStatusBooked, domain.OrderStatusCancelled}:             {domain.ActorProvider, domain.ActorClient},
	{domain.OrderStatusAccepted, domain.OrderStatusInProgress}:          {domain.ActorProvider},
	{domain.OrderStatusInProgress, domain.OrderStatusInReview}:          {domain.ActorProvider},
	{domain.OrderStatusInReview, domain.OrderStatusCompleted}:           {domain.ActorClient},
	{domain.OrderStatusInReview, domain.OrderStatusRevisionRequested}:   {domain.ActorClient},
	{domain.OrderStatusRevisionRequested, domain.OrderStatusInProgress}: {domain.ActorProvider},
}

// canTransition reports whether role may move an order from one status to another.
func canTransition(from, to domain.OrderStatus, role domain.ActorRole) bool {
	actors, ok := orderTransitions[transitionKey{from: from, to: to}]
	return ok && slices.Contains(actors, role)
}

// counterparty returns the side that is notified when role acts.
func counterparty(role domain.ActorRole) domain.ActorRole {
	if role == domain.ActorProvider {
		return domain.ActorClient
	}
	return domain.ActorProvider
}
