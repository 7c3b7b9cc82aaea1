package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"equiprent/internal/domain"
	"equiprent/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquipmentService(t *testing.T) {
	ctx := context.Background()

	t.Run("DeactivatedEquipmentRefusesRequests", func(t *testing.T) {
		f := newFixture(t)
		logger := zerolog.New(io.Discard)
		equipment := NewEquipmentService(f.catalog, &logger)

		booked, err := f.svc.RequestBooking(ctx, hourly("tractor", renterA, 9, 13))
		require.NoError(t, err)

		e, err := equipment.SetActive(ctx, "tractor", owner, false)
		require.NoError(t, err)
		assert.False(t, e.IsActive)

		_, err = f.svc.RequestBooking(ctx, hourly("tractor", renterB, 14, 15))
		assert.True(t, errors.Is(err, domain.ErrInactive))

		// existing bookings stay actionable
		_, err = f.svc.Accept(ctx, booked.ID, owner)
		require.NoError(t, err)

		_, err = equipment.SetActive(ctx, "tractor", owner, true)
		require.NoError(t, err)
		_, err = f.svc.RequestBooking(ctx, hourly("tractor", renterB, 14, 15))
		assert.NoError(t, err)
	})

	t.Run("AdminMayToggle", func(t *testing.T) {
		f := newFixture(t)
		logger := zerolog.New(io.Discard)
		equipment := NewEquipmentService(f.catalog, &logger)

		e, err := equipment.SetActive(ctx, "plough", admin, true)
		require.NoError(t, err)
		assert.True(t, e.IsActive)

		_, err = f.svc.RequestBooking(ctx, hourly("plough", renterA, 9, 10))
		assert.NoError(t, err)
	})

	t.Run("RatesApplyToNewBookings", func(t *testing.T) {
		f := newFixture(t)
		logger := zerolog.New(io.Discard)
		equipment := NewEquipmentService(f.catalog, &logger)

		e, err := equipment.UpdateRates(ctx, "tractor", owner, 150, 900)
		require.NoError(t, err)
		assert.Equal(t, models.Money(150), e.HourlyRate)
		assert.Equal(t, models.Money(900), e.DailyRate)
		assert.True(t, e.IsActive)

		b, err := f.svc.RequestBooking(ctx, hourly("tractor", renterA, 9, 11))
		require.NoError(t, err)
		assert.Equal(t, models.Money(300), b.TotalPrice)
	})

	t.Run("Refusals", func(t *testing.T) {
		f := newFixture(t)
		logger := zerolog.New(io.Discard)
		equipment := NewEquipmentService(f.catalog, &logger)

		_, err := equipment.SetActive(ctx, "tractor", renterA, false)
		assert.True(t, errors.Is(err, domain.ErrForbidden))

		_, err = equipment.UpdateRates(ctx, "tractor", admin, 1, 1)
		assert.True(t, errors.Is(err, domain.ErrForbidden))

		_, err = equipment.UpdateRates(ctx, "tractor", owner, -1, 600)
		assert.True(t, errors.Is(err, domain.ErrInvalidUpdate))

		_, err = equipment.SetActive(ctx, "missing", admin, false)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		e, err := equipment.GetEquipment(ctx, "tractor")
		require.NoError(t, err)
		assert.True(t, e.IsActive)
		assert.Equal(t, models.Money(100), e.HourlyRate)
	})
}
