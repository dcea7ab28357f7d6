package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

type stubPublisher struct {
	mu        sync.Mutex
	delivered []Notification
	fail      error
	started   chan struct{}
	release   chan struct{}
}

func (p *stubPublisher) PublishNotification(ctx context.Context, n Notification) (string, error) {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", p.fail
	}
	p.delivered = append(p.delivered, n)
	return "msg-" + n.ID, nil
}

func (p *stubPublisher) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delivered)
}

func newTestEmitter(t *testing.T, publisher NotificationPublisher, outbox repositories.NotificationOutboxRepository, queue, workers int) NotificationEmitter {
	t.Helper()
	var (
		mu  sync.Mutex
		seq int
	)
	emitter, err := NewNotificationEmitter(NotificationEmitterDeps{
		Publisher: publisher,
		Outbox:    outbox,
		QueueSize: queue,
		Workers:   workers,
		Clock:     fixedClock,
		IDGenerator: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("ntf_%03d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewNotificationEmitter: %v", err)
	}
	return emitter
}

func closeEmitter(t *testing.T, emitter NotificationEmitter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := emitter.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNotificationEmitterDelivers(t *testing.T) {
	reg := newTestRegistry()
	publisher := &stubPublisher{}
	emitter := newTestEmitter(t, publisher, reg.Notifications(), 8, 2)

	for i := 0; i < 5; i++ {
		emitter.Emit(context.Background(), Notification{UserID: "prov-1", Type: domain.NotificationOrderCreated})
	}
	emitter.Emit(context.Background(), Notification{Type: domain.NotificationOrderCreated})
	closeEmitter(t, emitter)

	if publisher.count() != 5 {
		t.Fatalf("expected 5 deliveries, got %d", publisher.count())
	}
	for _, n := range publisher.delivered {
		if n.ID == "" || n.Status != domain.NotificationPending || !n.CreatedAt.Equal(testNow) {
			t.Fatalf("expected prepared notification, got %+v", n)
		}
	}
	pending, _ := reg.Notifications().ListPending(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d", len(pending))
	}
}

func TestNotificationEmitterFailureGoesToOutboxAndRetries(t *testing.T) {
	reg := newTestRegistry()
	publisher := &stubPublisher{fail: errors.New("sink offline")}
	emitter := newTestEmitter(t, publisher, reg.Notifications(), 8, 1)
	ctx := context.Background()

	emitter.Emit(ctx, Notification{UserID: "cli-1", Type: domain.NotificationOrderStatusChanged, OrderID: "ord_1"})
	closeEmitter(t, emitter)

	pending, err := reg.Notifications().ListPending(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending record, got %d (%v)", len(pending), err)
	}
	if pending[0].Attempts != 1 || pending[0].LastError != "sink offline" || pending[0].OrderID != "ord_1" {
		t.Fatalf("unexpected outbox record %+v", pending[0])
	}

	result, err := emitter.RetryPending(ctx, 10)
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if result != (RetryResult{Attempted: 1, Failed: 1}) {
		t.Fatalf("unexpected failed retry result %+v", result)
	}
	pending, _ = reg.Notifications().ListPending(ctx, 10)
	if pending[0].Attempts != 2 {
		t.Fatalf("expected attempts to grow, got %d", pending[0].Attempts)
	}

	publisher.setFail(nil)
	result, err = emitter.RetryPending(ctx, 10)
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if result != (RetryResult{Attempted: 1, Delivered: 1}) {
		t.Fatalf("unexpected retry result %+v", result)
	}
	pending, _ = reg.Notifications().ListPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected outbox drained, got %d", len(pending))
	}
	if publisher.count() != 1 {
		t.Fatalf("expected one delivery, got %d", publisher.count())
	}
}

func TestNotificationEmitterQueueFullFallsBackToOutbox(t *testing.T) {
	reg := newTestRegistry()
	publisher := &stubPublisher{started: make(chan struct{}, 4), release: make(chan struct{})}
	emitter := newTestEmitter(t, publisher, reg.Notifications(), 1, 1)
	ctx := context.Background()

	emitter.Emit(ctx, Notification{UserID: "u-1"})
	<-publisher.started
	emitter.Emit(ctx, Notification{UserID: "u-2"})
	emitter.Emit(ctx, Notification{UserID: "u-3"})

	pending, _ := reg.Notifications().ListPending(ctx, 10)
	if len(pending) != 1 || pending[0].UserID != "u-3" || pending[0].Attempts != 0 {
		t.Fatalf("expected overflow notification in outbox, got %+v", pending)
	}

	close(publisher.release)
	closeEmitter(t, emitter)
	if publisher.count() != 2 {
		t.Fatalf("expected queued notifications delivered, got %d", publisher.count())
	}

	emitter.Emit(ctx, Notification{UserID: "u-4"})
	pending, _ = reg.Notifications().ListPending(ctx, 10)
	if len(pending) != 2 {
		t.Fatalf("expected emit after close to land in outbox, got %d", len(pending))
	}
}

func TestNotificationEmitterRequiresDependencies(t *testing.T) {
	if _, err := NewNotificationEmitter(NotificationEmitterDeps{Outbox: newTestRegistry().Notifications()}); err == nil {
		t.Fatalf("expected error without publisher")
	}
	if _, err := NewNotificationEmitter(NotificationEmitterDeps{Publisher: &stubPublisher{}}); err == nil {
		t.Fatalf("expected error without outbox")
	}
}
