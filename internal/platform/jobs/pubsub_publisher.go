package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/gigmarket/api/internal/domain"
)

// NotificationMessage is the JSON payload delivered to notification consumers.
type NotificationMessage struct {
	NotificationID string    `json:"notificationId"`
	UserID         string    `json:"userId"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	Link           string    `json:"link,omitempty"`
	OrderID        string    `json:"orderId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PubSubNotificationPublisher publishes user notifications to a Pub/Sub topic.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishNotification sends one notification and waits for the server acknowledgement.
func (p *PubSubNotificationPublisher) PublishNotification(ctx context.Context, notification domain.Notification) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(NotificationMessage{
		NotificationID: notification.ID,
		UserID:         notification.UserID,
		Type:           string(notification.Type),
		Message:        notification.Message,
		Link:           notification.Link,
		OrderID:        notification.OrderID,
		CreatedAt:      notification.CreatedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "notificationId", notification.ID)
	setAttr(attrs, "userId", notification.UserID)
	setAttr(attrs, "type", string(notification.Type))
	setAttr(attrs, "orderId", notification.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
