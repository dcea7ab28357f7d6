// Package postgres implements the repository contracts on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/api/internal/platform/config"
	"github.com/gigmarket/api/internal/repositories"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultPageSize = 20
	maxPageSize     = 100

	uniqueViolation = "23505"
)

// Registry exposes pgx-backed repositories sharing one pool.
type Registry struct {
	pool *pgxpool.Pool
}

var _ repositories.Registry = (*Registry)(nil)

// Open connects to the database described by cfg and applies the schema when AutoMigrate is set.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Registry, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	reg := &Registry{pool: pool}
	if cfg.AutoMigrate {
		if err := reg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return reg, nil
}

// NewRegistry wraps an existing pool.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (r *Registry) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// Pool exposes the shared pool to stores outside the repository layer.
func (r *Registry) Pool() *pgxpool.Pool { return r.pool }

// Ping checks connectivity for readiness probes.
func (r *Registry) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func (r *Registry) Gigs() repositories.GigRepository { return &GigRepository{pool: r.pool} }

func (r *Registry) Orders() repositories.OrderRepository { return &OrderRepository{pool: r.pool} }

func (r *Registry) Reviews() repositories.ReviewRepository { return &ReviewRepository{pool: r.pool} }

func (r *Registry) Ratings() repositories.RatingRepository { return &RatingRepository{pool: r.pool} }

func (r *Registry) CheckoutSessions() repositories.CheckoutSessionRepository {
	return &CheckoutSessionRepository{pool: r.pool}
}

func (r *Registry) Notifications() repositories.NotificationOutboxRepository {
	return &NotificationRepository{pool: r.pool}
}

// wrapError maps pgx failures onto repository error kinds.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	if errors.Is(err, repositories.ErrInvalidPageToken) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.NewStoreError(op, repositories.StoreErrorNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return repositories.NewStoreError(op, repositories.StoreErrorConflict, err)
		}
		return repositories.NewStoreError(op, repositories.StoreErrorUnknown, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, err)
	}
	return repositories.NewStoreError(op, repositories.StoreErrorUnknown, err)
}

func normalizePageSize(size int) int {
	switch {
	case size <= 0:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	default:
		return size
	}
}
