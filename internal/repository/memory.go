package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/models"
)

// MemoryBookingStore keeps bookings in process. Writes are staged per lock section
// and applied together when the section succeeds.
type MemoryBookingStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	locks    *KeyedMutex
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{
		bookings: make(map[string]*models.Booking),
		locks:    NewKeyedMutex(),
	}
}

func (s *MemoryBookingStore) WithEquipmentLock(ctx context.Context, equipmentID string, fn func(tx domain.BookingTx) error) error {
	unlock, err := s.locks.Lock(ctx, equipmentID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &memoryTx{store: s, equipmentID: equipmentID, staged: make(map[string]*models.Booking)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	for id, b := range tx.staged {
		s.bookings[id] = b
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryBookingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return b.Clone(), nil
}

func (s *MemoryBookingStore) FindByEquipment(ctx context.Context, equipmentID string, statuses []models.Status) ([]*models.Booking, error) {
	return s.ListBookings(ctx, models.BookingFilter{EquipmentID: equipmentID, Statuses: statuses})
}

// ListBookings returns matches newest first.
func (s *MemoryBookingStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	s.mu.RLock()
	out := make([]*models.Booking, 0)
	for _, b := range s.bookings {
		if filter.Match(b) {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(bookings []*models.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
		}
		return bookings[i].ID > bookings[j].ID
	})
}

type memoryTx struct {
	store       *MemoryBookingStore
	equipmentID string
	staged      map[string]*models.Booking
}

func (tx *memoryTx) lookup(id string) (*models.Booking, bool) {
	if b, ok := tx.staged[id]; ok {
		return b, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	b, ok := tx.store.bookings[id]
	return b, ok
}

func (tx *memoryTx) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := tx.lookup(id)
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return b.Clone(), nil
}

func (tx *memoryTx) FindByEquipment(ctx context.Context, equipmentID string, statuses []models.Status) ([]*models.Booking, error) {
	filter := models.BookingFilter{EquipmentID: equipmentID, Statuses: statuses}
	merged := make(map[string]*models.Booking)

	tx.store.mu.RLock()
	for id, b := range tx.store.bookings {
		merged[id] = b
	}
	tx.store.mu.RUnlock()
	for id, b := range tx.staged {
		merged[id] = b
	}

	out := make([]*models.Booking, 0)
	for _, b := range merged {
		if filter.Match(b) {
			out = append(out, b.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (tx *memoryTx) Insert(ctx context.Context, booking *models.Booking) error {
	if booking.EquipmentID != tx.equipmentID {
		return fmt.Errorf("booking for %s inserted under lock of %s", booking.EquipmentID, tx.equipmentID)
	}
	if _, exists := tx.lookup(booking.ID); exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	tx.staged[booking.ID] = booking.Clone()
	return nil
}

func (tx *memoryTx) CompareAndSetStatus(ctx context.Context, id string, expected, next models.Status, at time.Time) error {
	current, ok := tx.lookup(id)
	if !ok {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	if current.Status != expected {
		return fmt.Errorf("%w: booking %s is %s, expected %s", domain.ErrInvalidTransition, id, current.Status, expected)
	}
	updated := current.Clone()
	updated.Status = next
	updated.UpdatedAt = at
	tx.staged[id] = updated
	return nil
}

// MemoryEquipmentStore is an in-process equipment catalog.
type MemoryEquipmentStore struct {
	items sync.Map
	// serialises read-modify-write updates
	mu sync.Mutex
}

func NewMemoryEquipmentStore(items ...*models.Equipment) *MemoryEquipmentStore {
	s := &MemoryEquipmentStore{}
	for _, item := range items {
		s.Save(item)
	}
	return s
}

func (s *MemoryEquipmentStore) Save(item *models.Equipment) {
	c := *item
	s.items.Store(item.ID, &c)
}

func (s *MemoryEquipmentStore) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	val, ok := s.items.Load(id)
	if !ok {
		return nil, fmt.Errorf("equipment %s: %w", id, domain.ErrNotFound)
	}
	c := *val.(*models.Equipment)
	return &c, nil
}

func (s *MemoryEquipmentStore) UpdateEquipment(ctx context.Context, id string, update models.EquipmentUpdate, at time.Time) (*models.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.items.Load(id)
	if !ok {
		return nil, fmt.Errorf("equipment %s: %w", id, domain.ErrNotFound)
	}
	c := *val.(*models.Equipment)
	update.Apply(&c, at)
	s.items.Store(id, &c)
	out := c
	return &out, nil
}
