package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const (
	notificationIDPrefix       = "ntf_"
	defaultNotificationQueue   = 256
	defaultNotificationWorkers = 2
	defaultPublishTimeout      = 10 * time.Second
	notificationMeterName      = "github.com/gigmarket/api/internal/services/notifications"
	maxNotificationErrorLength = 500
)

// NotificationEmitterDeps bundles collaborators for the notification emitter.
type NotificationEmitterDeps struct {
	Publisher      NotificationPublisher
	Outbox         repositories.NotificationOutboxRepository
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         Logger
	Meter          metric.Meter
}

type queuedNotification struct {
	ctx          context.Context
	notification Notification
}

type notificationEmitter struct {
	publisher NotificationPublisher
	outbox    repositories.NotificationOutboxRepository
	timeout   time.Duration
	clock     func() time.Time
	newID     func() string
	logger    Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queuedNotification
	group  *errgroup.Group

	published metric.Int64Counter
	failed    metric.Int64Counter
}

var _ NotificationEmitter = (*notificationEmitter)(nil)

// NewNotificationEmitter starts the worker pool that drains the notification queue.
func NewNotificationEmitter(deps NotificationEmitterDeps) (NotificationEmitter, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification emitter: publisher is required")
	}
	if deps.Outbox == nil {
		return nil, errors.New("notification emitter: outbox repository is required")
	}

	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = defaultNotificationQueue
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultNotificationWorkers
	}
	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return notificationIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(notificationMeterName)
	}

	e := &notificationEmitter{
		publisher: deps.Publisher,
		outbox:    deps.Outbox,
		timeout:   timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
		queue:  make(chan queuedNotification, queueSize),
		group:  &errgroup.Group{},
	}

	var err error
	if e.published, err = meter.Int64Counter(
		"notifications.published",
		metric.WithDescription("Notifications accepted by the sink"),
	); err != nil {
		return nil, fmt.Errorf("notification emitter: create published counter: %w", err)
	}
	if e.failed, err = meter.Int64Counter(
		"notifications.failed",
		metric.WithDescription("Notification publish attempts that failed and were left in the outbox"),
	); err != nil {
		return nil, fmt.Errorf("notification emitter: create failed counter: %w", err)
	}

	for i := 0; i < workers; i++ {
		e.group.Go(e.work)
	}
	return e, nil
}

// Emit enqueues the notification without blocking. A full queue or a closed emitter sends it straight to the
// outbox for the retry job.
func (e *notificationEmitter) Emit(ctx context.Context, notification Notification) {
	if ctx == nil {
		ctx = context.Background()
	}
	notification = e.prepare(notification)
	if strings.TrimSpace(notification.UserID) == "" {
		e.logger(ctx, "notification.skipped", map[string]any{"type": string(notification.Type), "reason": "missing_recipient"})
		return
	}

	e.mu.RLock()
	if !e.closed {
		select {
		case e.queue <- queuedNotification{ctx: context.WithoutCancel(ctx), notification: notification}:
			e.mu.RUnlock()
			return
		default:
		}
	}
	e.mu.RUnlock()

	e.logger(ctx, "notification.queue.full", map[string]any{"notificationId": notification.ID, "userId": notification.UserID})
	if err := e.outbox.Save(context.WithoutCancel(ctx), notification); err != nil {
		e.logger(ctx, "notification.outbox.save.failed", map[string]any{"notificationId": notification.ID, "error": err})
	}
}

// RetryPending re-publishes up to limit pending outbox records, oldest first.
func (e *notificationEmitter) RetryPending(ctx context.Context, limit int) (RetryResult, error) {
	pending, err := e.outbox.ListPending(ctx, limit)
	if err != nil {
		return RetryResult{}, mapRepositoryError(err, nil, nil)
	}

	result := RetryResult{Attempted: len(pending)}
	for _, notification := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if e.deliver(ctx, notification, true) {
			result.Delivered++
		} else {
			result.Failed++
		}
	}
	if result.Attempted > 0 {
		e.logger(ctx, "notification.retry.completed", map[string]any{
			"attempted": result.Attempted,
			"delivered": result.Delivered,
			"failed":    result.Failed,
		})
	}
	return result, nil
}

// Close stops accepting queued work and waits for workers to drain the queue or for ctx to expire.
func (e *notificationEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notification emitter: drain interrupted: %w", ctx.Err())
	}
}

func (e *notificationEmitter) work() error {
	for item := range e.queue {
		e.deliver(item.ctx, item.notification, false)
	}
	return nil
}

// deliver publishes one notification. Failures are recorded in the outbox; records that came from the outbox
// are marked delivered on success.
func (e *notificationEmitter) deliver(ctx context.Context, notification Notification, fromOutbox bool) bool {
	publishCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	typeAttr := metric.WithAttributes(attribute.String("type", string(notification.Type)))
	_, err := e.publisher.PublishNotification(publishCtx, notification)
	if err == nil {
		e.published.Add(ctx, 1, typeAttr)
		if fromOutbox {
			if markErr := e.outbox.MarkDelivered(ctx, notification.ID, e.clock()); markErr != nil {
				e.logger(ctx, "notification.outbox.mark.failed", map[string]any{"notificationId": notification.ID, "error": markErr})
			}
		}
		return true
	}

	e.failed.Add(ctx, 1, typeAttr)
	notification.Attempts++
	notification.LastError = limitRunes(err.Error(), maxNotificationErrorLength)
	notification.Status = domain.NotificationPending
	notification.UpdatedAt = e.clock()
	e.logger(ctx, "notification.publish.failed", map[string]any{
		"notificationId": notification.ID,
		"userId":         notification.UserID,
		"attempts":       notification.Attempts,
		"error":          err,
	})
	if saveErr := e.outbox.Save(ctx, notification); saveErr != nil {
		e.logger(ctx, "notification.outbox.save.failed", map[string]any{"notificationId": notification.ID, "error": saveErr})
	}
	return false
}

func (e *notificationEmitter) prepare(notification Notification) Notification {
	now := e.clock()
	if strings.TrimSpace(notification.ID) == "" {
		notification.ID = e.newID()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = now
	}
	if notification.UpdatedAt.IsZero() {
		notification.UpdatedAt = notification.CreatedAt
	}
	if notification.Status == "" {
		notification.Status = domain.NotificationPending
	}
	return notification
}

// LoggingNotificationPublisher writes notifications to the log instead of an external sink. Used for local runs.
type LoggingNotificationPublisher struct {
	Logger Logger
}

// PublishNotification logs the notification and reports success.
func (p LoggingNotificationPublisher) PublishNotification(ctx context.Context, notification Notification) (string, error) {
	if p.Logger != nil {
		p.Logger(ctx, "notification.delivered.local", map[string]any{
			"notificationId": notification.ID,
			"userId":         notification.UserID,
			"type":           string(notification.Type),
			"message":        notification.Message,
		})
	}
	return notification.ID, nil
}
