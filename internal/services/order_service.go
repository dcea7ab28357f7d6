package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const (
	defaultTransitionAttempts = 3
	maxDeliveryArtifacts      = 20
	maxDeliveryMessageLength  = 2000
	maxFeedbackLength         = 2000
)

// OrderServiceDeps bundles collaborators required to construct an OrderService.
type OrderServiceDeps struct {
	Orders             repositories.OrderRepository
	Notifier           Notifier
	Clock              func() time.Time
	Logger             Logger
	TransitionAttempts int
}

type orderService struct {
	orders   repositories.OrderRepository
	notifier Notifier
	clock    func() time.Time
	logger   Logger
	attempts int
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("order service: notifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	attempts := deps.TransitionAttempts
	if attempts <= 0 {
		attempts = defaultTransitionAttempts
	}

	return &orderService{
		orders:   deps.Orders,
		notifier: deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		attempts: attempts,
	}, nil
}

// Transition applies one edge of the lifecycle. The write is conditional on the status read; a lost race is
// retried against the fresh order so the loser sees the new status and fails with ErrIllegalTransition.
func (s *orderService) Transition(ctx context.Context, cmd TransitionOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if actorID == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrValidation)
	}
	if !cmd.Target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.Target)
	}
	if cmd.ActorRole != "" && cmd.ActorRole != domain.ActorProvider && cmd.ActorRole != domain.ActorClient {
		return Order{}, fmt.Errorf("%w: unknown role %q", ErrValidation, cmd.ActorRole)
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
		}

		role := cmd.ActorRole
		if role == "" {
			derived, ok := order.RoleOf(actorID)
			if !ok {
				return Order{}, fmt.Errorf("%w: user is not a participant of order %s", ErrRoleMismatch, order.ID)
			}
			role = derived
		}
		if order.Participant(role) != actorID {
			return Order{}, fmt.Errorf("%w: user is not the %s of order %s", ErrRoleMismatch, role, order.ID)
		}
		if !canTransition(order.Status, cmd.Target, role) {
			return Order{}, fmt.Errorf("%w: %s cannot move order from %s to %s", ErrIllegalTransition, role, order.Status, cmd.Target)
		}

		update, err := s.buildUpdate(order, cmd)
		if err != nil {
			return Order{}, err
		}

		updated, err := s.orders.UpdateStatus(ctx, update)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsConflict() {
				s.logger(ctx, "order.transition.conflict", map[string]any{
					"orderId": order.ID,
					"from":    string(order.Status),
					"to":      string(cmd.Target),
					"attempt": attempt,
				})
				continue
			}
			return Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
		}

		s.logger(ctx, "order.transition.applied", map[string]any{
			"orderId": updated.ID,
			"from":    string(order.Status),
			"to":      string(updated.Status),
			"actor":   actorID,
			"role":    string(role),
		})
		s.notifier.Emit(ctx, statusChangedNotification(updated, role))
		return updated, nil
	}

	return Order{}, fmt.Errorf("%w: order %s changed concurrently %d times", ErrConcurrencyConflict, orderID, s.attempts)
}

func (s *orderService) buildUpdate(order Order, cmd TransitionOrderCommand) (repositories.OrderStatusUpdate, error) {
	now := s.clock()
	update := repositories.OrderStatusUpdate{
		OrderID:        order.ID,
		ExpectedStatus: order.Status,
		NextStatus:     cmd.Target,
		UpdatedAt:      now,
	}

	switch cmd.Target {
	case domain.OrderStatusInReview:
		delivery, err := normalizeDelivery(cmd.Delivery)
		if err != nil {
			return repositories.OrderStatusUpdate{}, err
		}
		delivery.SubmittedAt = now
		update.Delivery = &delivery
	case domain.OrderStatusRevisionRequested:
		feedback := limitRunes(sanitizeText(cmd.Feedback), maxFeedbackLength)
		if feedback == "" {
			return repositories.OrderStatusUpdate{}, fmt.Errorf("%w: feedback text is required", ErrMissingFeedback)
		}
		update.RevisionFeedback = &feedback
		update.IncrementRevision = true
	}
	return update, nil
}

func normalizeDelivery(delivery *Delivery) (Delivery, error) {
	if delivery == nil || len(delivery.Artifacts) == 0 {
		return Delivery{}, fmt.Errorf("%w: at least one artifact is required", ErrMissingDeliverable)
	}
	if len(delivery.Artifacts) > maxDeliveryArtifacts {
		return Delivery{}, fmt.Errorf("%w: at most %d artifacts are allowed", ErrValidation, maxDeliveryArtifacts)
	}

	out := Delivery{
		Message:   limitRunes(sanitizeText(delivery.Message), maxDeliveryMessageLength),
		Artifacts: make([]Artifact, 0, len(delivery.Artifacts)),
	}
	for i, artifact := range delivery.Artifacts {
		name := sanitizeText(artifact.Name)
		link := strings.TrimSpace(artifact.URL)
		if name == "" {
			return Delivery{}, fmt.Errorf("%w: artifacts[%d].name is required", ErrValidation, i)
		}
		if !validArtifactURL(link) {
			return Delivery{}, fmt.Errorf("%w: artifacts[%d].url must be an absolute http(s) url", ErrValidation, i)
		}
		out.Artifacts = append(out.Artifacts, Artifact{Name: name, URL: link})
	}
	return out, nil
}

func validArtifactURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "https" || parsed.Scheme == "http"
}

// GetOrder returns the order to its participants. Other callers get ErrOrderNotFound.
func (s *orderService) GetOrder(ctx context.Context, orderID string, actorID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if _, ok := order.RoleOf(strings.TrimSpace(actorID)); !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	if filter.UserID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if filter.Role != domain.ActorProvider && filter.Role != domain.ActorClient {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: role must be provider or client", ErrValidation)
	}
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}
