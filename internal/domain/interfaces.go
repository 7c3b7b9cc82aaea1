package domain

import (
	"context"
	"time"

	"equiprent/internal/models"
)

// ActiveQuerier lists the bookings of one equipment whose status is in statuses.
type ActiveQuerier interface {
	FindByEquipment(ctx context.Context, equipmentID string, statuses []models.Status) ([]*models.Booking, error)
}

// BookingTx is the view of the store available inside an equipment lock.
type BookingTx interface {
	ActiveQuerier
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	Insert(ctx context.Context, booking *models.Booking) error
	// CompareAndSetStatus moves the booking to next only if it is still in expected.
	// It returns ErrInvalidTransition when the current status differs.
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.Status, at time.Time) error
}

// BookingStore is the durable source of truth for bookings.
type BookingStore interface {
	ActiveQuerier
	// WithEquipmentLock runs fn with exclusive write access to the bookings of one equipment.
	// Writes through tx are committed only if fn returns nil.
	WithEquipmentLock(ctx context.Context, equipmentID string, fn func(tx BookingTx) error) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
}

type EquipmentLookup interface {
	GetEquipment(ctx context.Context, id string) (*models.Equipment, error)
}

// EquipmentCatalog is an EquipmentLookup that also accepts runtime changes.
// UpdateEquipment returns the stored equipment after the change.
type EquipmentCatalog interface {
	EquipmentLookup
	UpdateEquipment(ctx context.Context, id string, update models.EquipmentUpdate, at time.Time) (*models.Equipment, error)
}

// CachedActiveSet is a snapshot of an active set tagged with the generation it was read under.
type CachedActiveSet struct {
	Generation int64             `json:"generation"`
	Bookings   []*models.Booking `json:"bookings"`
}

// ActiveSetCache stores read-only snapshots of active sets.
// Invalidate bumps the generation so older snapshots are never served.
type ActiveSetCache interface {
	Generation(ctx context.Context, equipmentID string) (int64, error)
	Get(ctx context.Context, equipmentID string) (*CachedActiveSet, error)
	Set(ctx context.Context, equipmentID string, set *CachedActiveSet, ttl time.Duration) error
	Invalidate(ctx context.Context, equipmentID string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
