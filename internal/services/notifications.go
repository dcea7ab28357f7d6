package services

import (
	"fmt"
	"strings"

	domain "github.com/gigmarket/api/internal/domain"
)

func orderLink(orderID string) string {
	return "/orders/" + orderID
}

func newOrderNotification(order Order) Notification {
	return Notification{
		UserID:  order.ProviderID,
		Type:    domain.NotificationOrderCreated,
		Message: fmt.Sprintf("New order for %q", orderTitle(order)),
		Link:    orderLink(order.ID),
		OrderID: order.ID,
	}
}

func statusChangedNotification(order Order, actor ActorRole) Notification {
	return Notification{
		UserID:  order.Participant(counterparty(actor)),
		Type:    domain.NotificationOrderStatusChanged,
		Message: fmt.Sprintf("Order for %q is now %s", orderTitle(order), strings.ReplaceAll(string(order.Status), "_", " ")),
		Link:    orderLink(order.ID),
		OrderID: order.ID,
	}
}

func reviewReceivedNotification(review Review) Notification {
	return Notification{
		UserID:  review.RevieweeID,
		Type:    domain.NotificationReviewReceived,
		Message: fmt.Sprintf("You received a %d star review", review.Rating),
		Link:    orderLink(review.OrderID),
		OrderID: review.OrderID,
	}
}

func orderTitle(order Order) string {
	if title := strings.TrimSpace(order.GigTitle); title != "" {
		return title
	}
	return order.GigID
}
