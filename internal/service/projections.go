package service

import (
	"context"
	"fmt"

	"equiprent/internal/domain"
	"equiprent/internal/models"

	"golang.org/x/sync/errgroup"
)

// RenterBookings lists the bookings a renter made, newest first.
func (s *BookingService) RenterBookings(ctx context.Context, renterID string) ([]*models.Booking, error) {
	bookings, err := s.store.ListBookings(ctx, models.BookingFilter{RenterID: renterID})
	if err != nil {
		return nil, domain.Unavailable("list renter bookings", err)
	}
	return bookings, nil
}

// OwnerBookings lists the bookings made on an owner's equipment, newest first.
func (s *BookingService) OwnerBookings(ctx context.Context, ownerID string) ([]*models.Booking, error) {
	bookings, err := s.store.ListBookings(ctx, models.BookingFilter{OwnerID: ownerID})
	if err != nil {
		return nil, domain.Unavailable("list owner bookings", err)
	}
	return bookings, nil
}

// AllBookings is the administrative listing.
func (s *BookingService) AllBookings(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]*models.Booking, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, fmt.Errorf("actor %s is not an admin: %w", actor.ID, domain.ErrForbidden)
	}
	bookings, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, domain.Unavailable("list bookings", err)
	}
	return bookings, nil
}

// Overview is the dashboard of one actor in both roles.
type Overview struct {
	AsRenter         []*models.Booking     `json:"as_renter"`
	AsOwner          []*models.Booking     `json:"as_owner"`
	RenterByStatus   map[models.Status]int `json:"renter_by_status"`
	OwnerByStatus    map[models.Status]int `json:"owner_by_status"`
	ActiveAsRenter   int                   `json:"active_as_renter"`
	PendingAsOwner   int                   `json:"pending_as_owner"`
	AcceptedEarnings models.Money          `json:"accepted_earnings"`
}

// Overview loads the renter and owner listings of actor in parallel.
func (s *BookingService) Overview(ctx context.Context, actor models.Actor) (*Overview, error) {
	var asRenter, asOwner []*models.Booking

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		asRenter, err = s.RenterBookings(gctx, actor.ID)
		return err
	})
	g.Go(func() error {
		var err error
		asOwner, err = s.OwnerBookings(gctx, actor.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ov := &Overview{
		AsRenter:       asRenter,
		AsOwner:        asOwner,
		RenterByStatus: countByStatus(asRenter),
		OwnerByStatus:  countByStatus(asOwner),
	}
	for _, b := range asRenter {
		if b.Status.IsActive() {
			ov.ActiveAsRenter++
		}
	}
	for _, b := range asOwner {
		switch b.Status {
		case models.StatusRequested:
			ov.PendingAsOwner++
		case models.StatusAccepted:
			ov.AcceptedEarnings += b.TotalPrice
		}
	}
	return ov, nil
}

func countByStatus(bookings []*models.Booking) map[models.Status]int {
	out := map[models.Status]int{
		models.StatusRequested: 0,
		models.StatusAccepted:  0,
		models.StatusRejected:  0,
	}
	for _, b := range bookings {
		out[b.Status]++
	}
	return out
}
