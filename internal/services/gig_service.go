package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/currency"

	domain "github.com/gigmarket/api/internal/domain"
	"github.com/gigmarket/api/internal/repositories"
)

const (
	gigIDPrefix        = "gig_"
	minGigTitleLength  = 3
	maxGigTitleLength  = 120
	maxGigDescription  = 5000
	maxGigDeliveryDays = 365
	gigEventCreated    = "gig.created"
	gigEventModerated  = "gig.moderated"
)

// GigServiceDeps bundles collaborators required to construct a GigService.
type GigServiceDeps struct {
	Gigs        repositories.GigRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type gigService struct {
	gigs   repositories.GigRepository
	clock  func() time.Time
	newID  func() string
	logger Logger
}

var _ GigService = (*gigService)(nil)

// NewGigService wires dependencies into a concrete GigService implementation.
func NewGigService(deps GigServiceDeps) (GigService, error) {
	if deps.Gigs == nil {
		return nil, errors.New("gig service: gig repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return gigIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &gigService{
		gigs: deps.Gigs,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateGig stores a new listing awaiting moderation.
func (s *gigService) CreateGig(ctx context.Context, cmd CreateGigCommand) (Gig, error) {
	providerID := strings.TrimSpace(cmd.ProviderID)
	if providerID == "" {
		return Gig{}, fmt.Errorf("%w: provider id is required", ErrValidation)
	}
	title := sanitizeText(cmd.Title)
	if n := utf8.RuneCountInString(title); n < minGigTitleLength || n > maxGigTitleLength {
		return Gig{}, fmt.Errorf("%w: title must be between %d and %d characters", ErrValidation, minGigTitleLength, maxGigTitleLength)
	}
	description := sanitizeText(cmd.Description)
	if utf8.RuneCountInString(description) > maxGigDescription {
		return Gig{}, fmt.Errorf("%w: description must be at most %d characters", ErrValidation, maxGigDescription)
	}
	if cmd.Price <= 0 {
		return Gig{}, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	unit, err := currency.ParseISO(strings.TrimSpace(cmd.Currency))
	if err != nil {
		return Gig{}, fmt.Errorf("%w: currency must be an ISO 4217 code", ErrValidation)
	}
	if cmd.DeliveryDays <= 0 || cmd.DeliveryDays > maxGigDeliveryDays {
		return Gig{}, fmt.Errorf("%w: delivery days must be between 1 and %d", ErrValidation, maxGigDeliveryDays)
	}

	now := s.clock()
	gig := Gig{
		ID:           s.newID(),
		ProviderID:   providerID,
		Title:        title,
		Description:  description,
		Price:        cmd.Price,
		Currency:     unit.String(),
		DeliveryDays: cmd.DeliveryDays,
		Status:       domain.GigStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.gigs.Insert(ctx, gig); err != nil {
		return Gig{}, mapRepositoryError(err, nil, nil)
	}
	s.logger(ctx, gigEventCreated, map[string]any{"gigId": gig.ID, "providerId": providerID})
	return gig, nil
}

func (s *gigService) GetGig(ctx context.Context, gigID string) (Gig, error) {
	gigID = strings.TrimSpace(gigID)
	if gigID == "" {
		return Gig{}, fmt.Errorf("%w: gig id is required", ErrValidation)
	}
	gig, err := s.gigs.FindByID(ctx, gigID)
	if err != nil {
		return Gig{}, mapRepositoryError(err, ErrGigNotFound, nil)
	}
	return gig, nil
}

// ModerateGig approves or rejects a listing. Role checks happen at the transport layer.
func (s *gigService) ModerateGig(ctx context.Context, cmd ModerateGigCommand) (Gig, error) {
	gigID := strings.TrimSpace(cmd.GigID)
	if gigID == "" {
		return Gig{}, fmt.Errorf("%w: gig id is required", ErrValidation)
	}
	if strings.TrimSpace(cmd.ModeratorID) == "" {
		return Gig{}, fmt.Errorf("%w: moderator id is required", ErrValidation)
	}
	if cmd.Status != domain.GigStatusApproved && cmd.Status != domain.GigStatusRejected {
		return Gig{}, fmt.Errorf("%w: status must be approved or rejected", ErrValidation)
	}

	gig, err := s.gigs.UpdateStatus(ctx, gigID, cmd.Status, s.clock())
	if err != nil {
		return Gig{}, mapRepositoryError(err, ErrGigNotFound, nil)
	}
	s.logger(ctx, gigEventModerated, map[string]any{
		"gigId":       gig.ID,
		"status":      string(gig.Status),
		"moderatorId": strings.TrimSpace(cmd.ModeratorID),
	})
	return gig, nil
}
