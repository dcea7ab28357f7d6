package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/gigmarket/api/internal/domain"
)

func newTestGigService(t *testing.T) (GigService, func(string) Gig) {
	t.Helper()
	reg := newTestRegistry()
	svc, err := NewGigService(GigServiceDeps{
		Gigs:        reg.Gigs(),
		Clock:       fixedClock,
		IDGenerator: func() string { return "gig_new" },
	})
	if err != nil {
		t.Fatalf("NewGigService: %v", err)
	}
	lookup := func(id string) Gig {
		gig, err := reg.Gigs().FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("FindByID(%s): %v", id, err)
		}
		return gig
	}
	return svc, lookup
}

func TestCreateGigStartsPending(t *testing.T) {
	svc, lookup := newTestGigService(t)

	gig, err := svc.CreateGig(context.Background(), CreateGigCommand{
		ProviderID:   "prov-1",
		Title:        "  <i>Logo</i> design  ",
		Description:  "Three concepts,\n two revisions",
		Price:        12000,
		Currency:     "EUR",
		DeliveryDays: 5,
	})
	if err != nil {
		t.Fatalf("CreateGig: %v", err)
	}
	if gig.ID != "gig_new" || gig.Status != domain.GigStatusPending || gig.Title != "Logo design" {
		t.Fatalf("unexpected gig %+v", gig)
	}
	if gig.Description != "Three concepts,\ntwo revisions" || gig.Currency != "EUR" {
		t.Fatalf("unexpected normalised fields %+v", gig)
	}
	if stored := lookup("gig_new"); !stored.CreatedAt.Equal(testNow) || stored.Rating.Count != 0 {
		t.Fatalf("unexpected stored gig %+v", stored)
	}
}

func TestCreateGigValidation(t *testing.T) {
	svc, _ := newTestGigService(t)
	valid := CreateGigCommand{ProviderID: "prov-1", Title: "Logo design", Price: 100, Currency: "USD", DeliveryDays: 3}

	cases := map[string]func(*CreateGigCommand){
		"missing provider":  func(c *CreateGigCommand) { c.ProviderID = " " },
		"short title":       func(c *CreateGigCommand) { c.Title = "ab" },
		"long title":        func(c *CreateGigCommand) { c.Title = strings.Repeat("x", maxGigTitleLength+1) },
		"long description":  func(c *CreateGigCommand) { c.Description = strings.Repeat("y", maxGigDescription+1) },
		"zero price":        func(c *CreateGigCommand) { c.Price = 0 },
		"unknown currency":  func(c *CreateGigCommand) { c.Currency = "XYZW" },
		"zero delivery":     func(c *CreateGigCommand) { c.DeliveryDays = 0 },
		"too long delivery": func(c *CreateGigCommand) { c.DeliveryDays = maxGigDeliveryDays + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := valid
			mutate(&cmd)
			if _, err := svc.CreateGig(context.Background(), cmd); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestModerateGig(t *testing.T) {
	svc, lookup := newTestGigService(t)
	ctx := context.Background()
	if _, err := svc.CreateGig(ctx, CreateGigCommand{ProviderID: "prov-1", Title: "Logo design", Price: 100, Currency: "USD", DeliveryDays: 3}); err != nil {
		t.Fatalf("CreateGig: %v", err)
	}

	gig, err := svc.ModerateGig(ctx, ModerateGigCommand{GigID: "gig_new", ModeratorID: "mod-1", Status: domain.GigStatusApproved})
	if err != nil {
		t.Fatalf("ModerateGig: %v", err)
	}
	if gig.Status != domain.GigStatusApproved || lookup("gig_new").Status != domain.GigStatusApproved {
		t.Fatalf("expected approved gig, got %+v", gig)
	}

	if _, err := svc.ModerateGig(ctx, ModerateGigCommand{GigID: "gig_new", ModeratorID: "mod-1", Status: domain.GigStatusPending}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for pending, got %v", err)
	}
	if _, err := svc.ModerateGig(ctx, ModerateGigCommand{GigID: "gig_missing", ModeratorID: "mod-1", Status: domain.GigStatusRejected}); !errors.Is(err, ErrGigNotFound) {
		t.Fatalf("expected ErrGigNotFound, got %v", err)
	}
	if _, err := svc.GetGig(ctx, "gig_missing"); !errors.Is(err, ErrGigNotFound) {
		t.Fatalf("expected ErrGigNotFound from GetGig, got %v", err)
	}
}
