package service

import (
	"context"
	"fmt"
	"time"

	"equiprent/internal/availability"
	"equiprent/internal/domain"
	"equiprent/internal/events"
	"equiprent/internal/lifecycle"
	"equiprent/internal/metrics"
	"equiprent/internal/models"
	"equiprent/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("equiprent/internal/service")

type BookingService struct {
	store     domain.BookingStore
	equipment domain.EquipmentLookup
	index     *availability.Index
	eventBus  domain.EventPublisher
	logger    *zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewBookingService(store domain.BookingStore, equipment domain.EquipmentLookup, index *availability.Index, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		store:     store,
		equipment: equipment,
		index:     index,
		eventBus:  eventBus,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RequestBooking creates a booking in the requested state or explains why it cannot.
func (s *BookingService) RequestBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingService.RequestBooking", trace.WithAttributes(
		attribute.String("equipment.id", req.EquipmentID),
		attribute.String("renter.id", req.RenterID),
		attribute.String("booking.mode", string(req.Mode)),
	))
	defer span.End()

	booking, err := s.requestBooking(ctx, req)
	endSpan(span, err)

	if err != nil {
		metrics.IncBookingRequest(string(domain.KindOf(err)))
		s.logger.Warn().Err(err).
			Str("equipment_id", req.EquipmentID).
			Str("renter_id", req.RenterID).
			Str("kind", string(domain.KindOf(err))).
			Msg("booking request refused")
		return nil, err
	}

	metrics.IncBookingRequest("created")
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("equipment_id", booking.EquipmentID).
		Str("renter_id", booking.RenterID).
		Int64("total_price", int64(booking.TotalPrice)).
		Msg("booking requested")
	return booking, nil
}

func (s *BookingService) requestBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	if req.Interval.IsZero() {
		return nil, fmt.Errorf("%w: interval is required", domain.ErrInvalidRange)
	}

	equipment, err := s.equipment.GetEquipment(ctx, req.EquipmentID)
	if err != nil {
		return nil, domain.Unavailable("get equipment", err)
	}
	if !equipment.IsActive {
		return nil, fmt.Errorf("equipment %s: %w", equipment.ID, domain.ErrInactive)
	}
	if req.RenterID == equipment.OwnerID {
		return nil, fmt.Errorf("renter %s owns equipment %s: %w", req.RenterID, equipment.ID, domain.ErrSelfBooking)
	}

	var booking *models.Booking
	err = s.withEquipmentLock(ctx, equipment.ID, func(tx domain.BookingTx) error {
		available, err := s.index.IsAvailable(ctx, tx, equipment.ID, req.Interval, "")
		if err != nil {
			return domain.Unavailable("check availability", err)
		}
		if !available {
			return fmt.Errorf("equipment %s %s: %w", equipment.ID, req.Interval, domain.ErrConflict)
		}

		price, err := pricing.Price(req.Mode, equipment.HourlyRate, equipment.DailyRate, req.Hours)
		if err != nil {
			return err
		}
		if err := pricing.CheckWindow(req.Mode, req.Interval, req.Hours); err != nil {
			return err
		}

		hours := req.Hours
		if req.Mode == models.ModeDaily {
			hours = 0
		}
		now := s.now().UTC()
		booking = &models.Booking{
			ID:            s.newID(),
			EquipmentID:   equipment.ID,
			RenterID:      req.RenterID,
			OwnerID:       equipment.OwnerID,
			Interval:      req.Interval,
			Mode:          req.Mode,
			Hours:         hours,
			TotalPrice:    price,
			PaymentMethod: req.PaymentMethod,
			Status:        models.StatusRequested,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Insert(ctx, booking); err != nil {
			return domain.Unavailable("insert booking", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.index.Invalidate(context.WithoutCancel(ctx), equipment.ID)
	s.publishEvent(events.EventBookingRequested, booking, req.RenterID)
	return booking, nil
}

// Transition moves a requested booking to accepted or rejected on behalf of actor.
func (s *BookingService) Transition(ctx context.Context, bookingID string, actor models.Actor, target models.Status) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingService.Transition", trace.WithAttributes(
		attribute.String("booking.id", bookingID),
		attribute.String("actor.id", actor.ID),
		attribute.String("booking.target", string(target)),
	))
	defer span.End()

	booking, err := s.transition(ctx, bookingID, actor, target)
	endSpan(span, err)

	if err != nil {
		metrics.IncTransition(string(target), string(domain.KindOf(err)))
		s.logger.Warn().Err(err).
			Str("booking_id", bookingID).
			Str("actor_id", actor.ID).
			Str("target", string(target)).
			Msg("booking transition refused")
		return nil, err
	}

	metrics.IncTransition(string(target), "ok")
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("equipment_id", booking.EquipmentID).
		Str("actor_id", actor.ID).
		Str("status", string(booking.Status)).
		Msg("booking status changed")
	return booking, nil
}

func (s *BookingService) transition(ctx context.Context, bookingID string, actor models.Actor, target models.Status) (*models.Booking, error) {
	// equipment of a booking never changes, so it is safe to read before locking
	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.Unavailable("get booking", err)
	}

	var updated *models.Booking
	err = s.withEquipmentLock(ctx, current.EquipmentID, func(tx domain.BookingTx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return domain.Unavailable("get booking", err)
		}
		if err := lifecycle.Authorize(b, actor, target); err != nil {
			return err
		}

		if target == models.StatusAccepted {
			available, err := s.index.IsAvailable(ctx, tx, b.EquipmentID, b.Interval, b.ID)
			if err != nil {
				return domain.Unavailable("check availability", err)
			}
			if !available {
				return fmt.Errorf("booking %s %s: %w", b.ID, b.Interval, domain.ErrConflict)
			}
		}

		now := s.now().UTC()
		if err := tx.CompareAndSetStatus(ctx, b.ID, b.Status, target, now); err != nil {
			return domain.Unavailable("update booking status", err)
		}
		b.Status = target
		b.UpdatedAt = now
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.index.Invalidate(context.WithoutCancel(ctx), updated.EquipmentID)
	s.publishEvent(events.EventTypeFor(updated.Status), updated, actor.ID)
	return updated, nil
}

func (s *BookingService) Accept(ctx context.Context, bookingID string, actor models.Actor) (*models.Booking, error) {
	return s.Transition(ctx, bookingID, actor, models.StatusAccepted)
}

func (s *BookingService) Reject(ctx context.Context, bookingID string, actor models.Actor) (*models.Booking, error) {
	return s.Transition(ctx, bookingID, actor, models.StatusRejected)
}

// ListActive returns the requested and accepted bookings of an equipment, earliest first.
func (s *BookingService) ListActive(ctx context.Context, equipmentID string) ([]*models.Booking, error) {
	set, err := s.index.Snapshot(ctx, s.store, equipmentID)
	if err != nil {
		return nil, domain.Unavailable("list active bookings", err)
	}
	if set.Bookings == nil {
		return []*models.Booking{}, nil
	}
	return set.Bookings, nil
}

// CheckAvailability is an advisory read. Only RequestBooking decides under the lock.
func (s *BookingService) CheckAvailability(ctx context.Context, equipmentID string, candidate models.Interval) (bool, error) {
	if _, err := s.equipment.GetEquipment(ctx, equipmentID); err != nil {
		return false, domain.Unavailable("get equipment", err)
	}
	ok, err := s.index.IsAvailable(ctx, s.store, equipmentID, candidate, "")
	if err != nil {
		return false, domain.Unavailable("check availability", err)
	}
	return ok, nil
}

// GetBooking returns a booking visible to actor: its renter, its owner or an admin.
func (s *BookingService) GetBooking(ctx context.Context, bookingID string, actor models.Actor) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.Unavailable("get booking", err)
	}
	if actor.ID != b.RenterID && actor.ID != b.OwnerID && !actor.HasRole(models.RoleAdmin) {
		return nil, fmt.Errorf("booking %s: %w", bookingID, domain.ErrForbidden)
	}
	return b, nil
}

func (s *BookingService) withEquipmentLock(ctx context.Context, equipmentID string, fn func(tx domain.BookingTx) error) error {
	started := time.Now()
	err := s.store.WithEquipmentLock(ctx, equipmentID, fn)
	metrics.ObserveLock(time.Since(started))

	return domain.Unavailable("equipment lock", err)
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, actorID string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewBookingPayload(b, actorID, s.now().UTC())); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(domain.KindOf(err)))
}
