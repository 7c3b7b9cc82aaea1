package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"equiprent/internal/config"
	"equiprent/internal/domain"
	"equiprent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS equipment (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    hourly_rate BIGINT NOT NULL DEFAULT 0,
    daily_rate BIGINT NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL,
    renter_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    start_at TIMESTAMPTZ NOT NULL,
    end_at TIMESTAMPTZ NOT NULL,
    mode TEXT NOT NULL,
    hours INTEGER NOT NULL DEFAULT 0,
    total_price BIGINT NOT NULL,
    payment_method TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('requested', 'accepted', 'rejected')),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CHECK (end_at > start_at)
);
CREATE INDEX IF NOT EXISTS idx_bookings_equipment_status ON bookings (equipment_id, status);
CREATE INDEX IF NOT EXISTS idx_bookings_renter_id ON bookings (renter_id);
CREATE INDEX IF NOT EXISTS idx_bookings_owner_id ON bookings (owner_id);
`

// Store keeps bookings in PostgreSQL. Writers of one equipment are serialized with a
// transaction-scoped advisory lock, so several API replicas may share the database.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func New(pool *pgxpool.Pool, logger *zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

func Connect(ctx context.Context, cfg config.PostgresConfig, logger *zerolog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	s := New(pool, logger)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info().Str("host", poolCfg.ConnConfig.Host).Msg("postgres store ready")
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const bookingColumns = `id, equipment_id, renter_id, owner_id, start_at, end_at, mode, hours,
    total_price, payment_method, status, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var (
		b                     models.Booking
		mode, payment, status string
		price                 int64
		start, end            time.Time
	)
	if err := row.Scan(
		&b.ID, &b.EquipmentID, &b.RenterID, &b.OwnerID, &start, &end, &mode, &b.Hours,
		&price, &payment, &status, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	interval, err := models.NewInterval(start, end)
	if err != nil {
		return nil, errors.Wrapf(err, "booking %s has a corrupt interval", b.ID)
	}
	b.Interval = interval
	b.Mode = models.RentalMode(mode)
	b.PaymentMethod = models.PaymentMethod(payment)
	b.Status = models.Status(status)
	b.TotalPrice = models.Money(price)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func getBooking(ctx context.Context, q querier, id string) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get booking")
	}
	return b, nil
}

func listBookings(ctx context.Context, q querier, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.EquipmentID != "" {
		where = append(where, "equipment_id = "+arg(filter.EquipmentID))
	}
	if filter.RenterID != "" {
		where = append(where, "renter_id = "+arg(filter.RenterID))
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = "+arg(filter.OwnerID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list bookings")
	}
	defer rows.Close()

	bookings := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan booking")
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate bookings")
	}
	return bookings, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, s.pool, id)
}

func (s *Store) FindByEquipment(ctx context.Context, equipmentID string, statuses []models.Status) ([]*models.Booking, error) {
	return listBookings(ctx, s.pool, models.BookingFilter{EquipmentID: equipmentID, Statuses: statuses})
}

func (s *Store) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	return listBookings(ctx, s.pool, filter)
}

func (s *Store) WithEquipmentLock(ctx context.Context, equipmentID string, fn func(tx domain.BookingTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, equipmentID); err != nil {
		return errors.Wrapf(err, "lock equipment %s", equipmentID)
	}

	if err := fn(&bookingTx{tx: tx, equipmentID: equipmentID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

type bookingTx struct {
	tx          pgx.Tx
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
		return errors.Newf("booking for %s inserted under lock of %s", b.EquipmentID, t.equipmentID)
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b.ID, b.EquipmentID, b.RenterID, b.OwnerID,
		b.Interval.Start(), b.Interval.End(),
		string(b.Mode), b.Hours, int64(b.TotalPrice), string(b.PaymentMethod), string(b.Status),
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "insert booking")
	}
	return nil
}

func (t *bookingTx) CompareAndSetStatus(ctx context.Context, id string, expected, next models.Status, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(next), at.UTC(), id, string(expected))
	if err != nil {
		return errors.Wrap(err, "update booking status")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := getBooking(ctx, t.tx, id)
	if err != nil {
		return err
	}
	return errors.Wrapf(domain.ErrInvalidTransition, "booking %s is %s, expected %s", id, current.Status, expected)
}

// GetEquipment satisfies domain.EquipmentLookup.
func (s *Store) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	var (
		e             models.Equipment
		hourly, daily int64
	)
	err := s.pool.QueryRow(ctx, `SELECT id, owner_id, name, hourly_rate, daily_rate, is_active, created_at, updated_at
        FROM equipment WHERE id = $1`, id).
		Scan(&e.ID, &e.OwnerID, &e.Name, &hourly, &daily, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrNotFound, "equipment %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get equipment")
	}
	e.HourlyRate = models.Money(hourly)
	e.DailyRate = models.Money(daily)
	return &e, nil
}

func moneyArg(m *models.Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}

// UpdateEquipment satisfies domain.EquipmentCatalog.
func (s *Store) UpdateEquipment(ctx context.Context, id string, update models.EquipmentUpdate, at time.Time) (*models.Equipment, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE equipment SET
            is_active = COALESCE($1::boolean, is_active),
            hourly_rate = COALESCE($2::bigint, hourly_rate),
            daily_rate = COALESCE($3::bigint, daily_rate),
            updated_at = $4
        WHERE id = $5`,
		update.IsActive, moneyArg(update.HourlyRate), moneyArg(update.DailyRate), at.UTC(), id)
	if err != nil {
		return nil, errors.Wrapf(err, "update equipment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "equipment %s", id)
	}
	s.logger.Info().Str("equipment_id", id).Msg("equipment updated")
	return s.GetEquipment(ctx, id)
}

// SyncEquipment upserts the configured catalog in one batch.
// Existing rows keep their runtime-managed rates and active flag.
func (s *Store) SyncEquipment(ctx context.Context, items []models.Equipment) error {
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range items {
		item := items[i]
		if err := item.Validate(); err != nil {
			return err
		}
		batch.Queue(`INSERT INTO equipment (id, owner_id, name, hourly_rate, daily_rate, is_active, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
            ON CONFLICT (id) DO UPDATE SET
                owner_id = EXCLUDED.owner_id,
                name = EXCLUDED.name,
                updated_at = EXCLUDED.updated_at`,
			item.ID, item.OwnerID, item.Name, int64(item.HourlyRate), int64(item.DailyRate), item.IsActive, now)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert equipment")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit equipment sync")
	}
	s.logger.Info().Int("count", len(items)).Msg("equipment catalog synced")
	return nil
}
