package service

import (
	"context"
	"fmt"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EquipmentService applies runtime catalog changes. Deactivated equipment
// refuses new booking requests; existing bookings are kept.
type EquipmentService struct {
	catalog domain.EquipmentCatalog
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewEquipmentService(catalog domain.EquipmentCatalog, logger *zerolog.Logger) *EquipmentService {
	return &EquipmentService{catalog: catalog, logger: logger, now: time.Now}
}

func (s *EquipmentService) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	e, err := s.catalog.GetEquipment(ctx, id)
	if err != nil {
		return nil, domain.Unavailable("get equipment", err)
	}
	return e, nil
}

// SetActive toggles whether the equipment accepts booking requests.
// The owner and admins may do this.
func (s *EquipmentService) SetActive(ctx context.Context, id string, actor models.Actor, active bool) (*models.Equipment, error) {
	ctx, span := tracer.Start(ctx, "EquipmentService.SetActive", trace.WithAttributes(
		attribute.String("equipment.id", id),
		attribute.Bool("equipment.active", active),
	))
	defer span.End()

	e, err := s.update(ctx, id, actor, true, models.EquipmentUpdate{IsActive: &active})
	endSpan(span, err)
	return e, err
}

// UpdateRates replaces both rates. Only the owner may do this.
func (s *EquipmentService) UpdateRates(ctx context.Context, id string, actor models.Actor, hourly, daily models.Money) (*models.Equipment, error) {
	ctx, span := tracer.Start(ctx, "EquipmentService.UpdateRates", trace.WithAttributes(
		attribute.String("equipment.id", id),
	))
	defer span.End()

	e, err := s.update(ctx, id, actor, false, models.EquipmentUpdate{HourlyRate: &hourly, DailyRate: &daily})
	endSpan(span, err)
	return e, err
}

func (s *EquipmentService) update(ctx context.Context, id string, actor models.Actor, adminAllowed bool, update models.EquipmentUpdate) (*models.Equipment, error) {
	current, err := s.catalog.GetEquipment(ctx, id)
	if err != nil {
		return nil, domain.Unavailable("get equipment", err)
	}
	if actor.ID != current.OwnerID && !(adminAllowed && actor.HasRole(models.RoleAdmin)) {
		return nil, fmt.Errorf("actor %s on equipment %s: %w", actor.ID, id, domain.ErrForbidden)
	}
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpdate, err)
	}

	updated, err := s.catalog.UpdateEquipment(ctx, id, update, s.now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Str("equipment_id", id).Msg("equipment update failed")
		return nil, domain.Unavailable("update equipment", err)
	}
	s.logger.Info().
		Str("equipment_id", id).
		Str("actor_id", actor.ID).
		Bool("is_active", updated.IsActive).
		Int64("hourly_rate", int64(updated.HourlyRate)).
		Int64("daily_rate", int64(updated.DailyRate)).
		Msg("equipment updated")
	return updated, nil
}
