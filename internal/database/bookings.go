package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/models"
)

const bookingColumns = `id, equipment_id, renter_id, owner_id, start_at, end_at, mode, hours,
                 total_price, payment_method, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end time.Time
	)
	if err := row.Scan(
		&b.ID, &b.EquipmentID, &b.RenterID, &b.OwnerID, &start, &end, &b.Mode, &b.Hours,
		&b.TotalPrice, &b.PaymentMethod, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	interval, err := models.NewInterval(start, end)
	if err != nil {
		return nil, fmt.Errorf("booking %s has a corrupt interval: %w", b.ID, err)
	}
	b.Interval = interval
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getBooking(ctx context.Context, q queryer, id string) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func listBookings(ctx context.Context, q queryer, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.EquipmentID != "" {
		where = append(where, "equipment_id = ?")
		args = append(args, filter.EquipmentID)
	}
	if filter.RenterID != "" {
		where = append(where, "renter_id = ?")
		args = append(args, filter.RenterID)
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func (db *DB) FindByEquipment(ctx context.Context, equipmentID string, statuses []models.Status) ([]*models.Booking, error) {
	return listBookings(ctx, db, models.BookingFilter{EquipmentID: equipmentID, Statuses: statuses})
}

// ListBookings returns matches newest first.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	return listBookings(ctx, db, filter)
}

// WithEquipmentLock serializes writers of one equipment in process and runs fn in an
// immediate transaction. fn must only touch the database through tx.
func (db *DB) WithEquipmentLock(ctx context.Context, equipmentID string, fn func(tx domain.BookingTx) error) error {
	unlock, err := db.locks.Lock(ctx, equipmentID)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&bookingTx{tx: tx, equipmentID: equipmentID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type bookingTx struct {
	tx          *sql.Tx
	equipmentID string
}

func (t *bookingTx) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, t.tx, id)
}

func (t *bookingTx) FindByEquipment(ctx context.Context, equipmentID string, statuses []models.Status) ([]*models.Booking, error) {
	return listBookings(ctx, t.tx, models.BookingFilter{EquipmentID: equipmentID, Statuses: statuses})
}

func (t *bookingTx) Insert(ctx context.Context, b *models.Booking) error {
	if b.EquipmentID != t.equipmentID {
		return fmt.Errorf("booking for %s inserted under lock of %s", b.EquipmentID, t.equipmentID)
	}
	query := `INSERT INTO bookings (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, query,
		b.ID,
		b.EquipmentID,
		b.RenterID,
		b.OwnerID,
		b.Interval.Start(),
		b.Interval.End(),
		string(b.Mode),
		b.Hours,
		int64(b.TotalPrice),
		string(b.PaymentMethod),
		string(b.Status),
		b.CreatedAt.UTC(),
		b.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (t *bookingTx) CompareAndSetStatus(ctx context.Context, id string, expected, next models.Status, at time.Time) error {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := t.tx.ExecContext(ctx, query, string(next), at.UTC(), id, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 1 {
		return nil
	}

	current, err := getBooking(ctx, t.tx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: booking %s is %s, expected %s", domain.ErrInvalidTransition, id, current.Status, expected)
}
