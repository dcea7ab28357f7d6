// Package memory implements the repository contracts with mutex-guarded maps. It backs local runs
// (API_STORE_DRIVER=memory) and service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store holds every collection behind a single lock so multi-record writes are atomic.
type Store struct {
	mu            sync.Mutex
	gigs          map[string]domain.Gig
	orders        map[string]domain.Order
	reviews       map[string]domain.Review
	users         map[string]domain.UserRatings
	sessions      map[string]domain.CheckoutSession
	notifications map[string]domain.Notification
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		gigs:          make(map[string]domain.Gig),
		orders:        make(map[string]domain.Order),
		reviews:       make(map[string]domain.Review),
		users:         make(map[string]domain.UserRatings),
		sessions:      make(map[string]domain.CheckoutSession),
		notifications: make(map[string]domain.Notification),
	}
}

type registry struct {
	store *Store
}

// NewRegistry exposes the store through the repositories.Registry contract.
func NewRegistry(store *Store) repositories.Registry {
	if store == nil {
		store = NewStore()
	}
	return &registry{store: store}
}

func (r *registry) Close(context.Context) error { return nil }

func (r *registry) Gigs() repositories.GigRepository { return &GigRepository{store: r.store} }

func (r *registry) Orders() repositories.OrderRepository { return &OrderRepository{store: r.store} }

func (r *registry) Reviews() repositories.ReviewRepository {
	return &ReviewRepository{store: r.store}
}

func (r *registry) Ratings() repositories.RatingRepository {
	return &RatingRepository{store: r.store}
}

func (r *registry) CheckoutSessions() repositories.CheckoutSessionRepository {
	return &CheckoutSessionRepository{store: r.store}
}

func (r *registry) Notifications() repositories.NotificationOutboxRepository {
	return &NotificationRepository{store: r.store}
}

func paginate[T any](items []T, pager domain.Pagination) (domain.CursorPage[T], error) {
	size := pager.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	offset := 0
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		parsed, err := strconv.Atoi(token)
		if err != nil || parsed < 0 {
			return domain.CursorPage[T]{}, fmt.Errorf("%w: %q", repositories.ErrInvalidPageToken, token)
		}
		offset = parsed
	}
	if offset >= len(items) {
		return domain.CursorPage[T]{Items: []T{}}, nil
	}
	end := offset + size
	page := domain.CursorPage[T]{}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(items)
	}
	page.Items = append([]T(nil), items[offset:end]...)
	return page, nil
}

func newestFirst[T any](items []T, createdAt func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		a, b := createdAt(items[i]), createdAt(items[j])
		if a.Equal(b) {
			return id(items[i]) > id(items[j])
		}
		return a.After(b)
	})
}
