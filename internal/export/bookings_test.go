package export

import (
	"bytes"
	"testing"
	"time"

	"equiprent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteBookings(t *testing.T) {
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	bookings := []*models.Booking{
		{
			ID: "b2", EquipmentID: "tractor", RenterID: "alice",
			Interval: models.MustInterval(start, start.Add(4*time.Hour)),
			Mode:     models.ModeHourly, Hours: 4, TotalPrice: 400,
			PaymentMethod: models.PaymentCOD, Status: models.StatusAccepted, CreatedAt: start,
		},
		{
			ID: "b1", EquipmentID: "tractor", RenterID: "bob",
			Interval: models.MustInterval(start.Add(24*time.Hour), start.Add(48*time.Hour)),
			Mode:     models.ModeDaily, TotalPrice: 600,
			PaymentMethod: models.PaymentOnline, Status: models.StatusRejected, CreatedAt: start,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, "Bookings of owner", bookings))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Bookings of owner", rows[0][0])
	assert.Equal(t, headers, rows[1])
	assert.Equal(t, "b2", rows[2][0])
	assert.Equal(t, "2025-05-01T09:00:00Z", rows[2][3])
	assert.Equal(t, "400", rows[2][7])
	assert.Equal(t, "accepted", rows[2][9])
	assert.Equal(t, "daily", rows[3][5])
	assert.Equal(t, "rejected", rows[3][9])
}

func TestWriteBookingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, "empty", nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
