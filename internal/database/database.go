package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/models"
	"equiprent/internal/repository"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
	locks  *repository.KeyedMutex
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + dsn
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := wrap(conn, logger)
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func wrap(conn *sql.DB, logger *zerolog.Logger) *DB {
	return &DB{DB: conn, logger: logger, locks: repository.NewKeyedMutex()}
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS equipment (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            hourly_rate INTEGER NOT NULL DEFAULT 0,
            daily_rate INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            equipment_id TEXT NOT NULL,
            renter_id TEXT NOT NULL,
            owner_id TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            mode TEXT NOT NULL,
            hours INTEGER NOT NULL DEFAULT 0,
            total_price INTEGER NOT NULL,
            payment_method TEXT NOT NULL,
            status TEXT NOT NULL CHECK (status IN ('requested', 'accepted', 'rejected')),
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            CHECK (end_at > start_at)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_equipment_status ON bookings(equipment_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_renter_id ON bookings(renter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_owner_id ON bookings(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

const equipmentColumns = `id, owner_id, name, hourly_rate, daily_rate, is_active, created_at, updated_at`

// GetEquipment satisfies domain.EquipmentLookup.
func (db *DB) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	var e models.Equipment
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.HourlyRate, &e.DailyRate, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("equipment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get equipment: %w", err)
	}
	return &e, nil
}

func (db *DB) ListEquipment(ctx context.Context) ([]*models.Equipment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+equipmentColumns+` FROM equipment ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer rows.Close()

	var out []*models.Equipment
	for rows.Next() {
		e := &models.Equipment{}
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Name, &e.HourlyRate, &e.DailyRate, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullMoney(m *models.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*m), Valid: true}
}

// UpdateEquipment satisfies domain.EquipmentCatalog.
func (db *DB) UpdateEquipment(ctx context.Context, id string, update models.EquipmentUpdate, at time.Time) (*models.Equipment, error) {
	active := sql.NullBool{}
	if update.IsActive != nil {
		active = sql.NullBool{Bool: *update.IsActive, Valid: true}
	}
	res, err := db.ExecContext(ctx, `UPDATE equipment SET
            is_active = COALESCE(?, is_active),
            hourly_rate = COALESCE(?, hourly_rate),
            daily_rate = COALESCE(?, daily_rate),
            updated_at = ?
        WHERE id = ?`,
		active, nullMoney(update.HourlyRate), nullMoney(update.DailyRate), at.UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update equipment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update equipment %s: %w", id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("equipment %s: %w", id, domain.ErrNotFound)
	}
	db.logger.Info().Str("equipment_id", id).Msg("equipment updated")
	return db.GetEquipment(ctx, id)
}

// SyncEquipment upserts the configured catalog in one transaction.
// New rows take all fields from items. Existing rows only refresh owner and name,
// since rates and the active flag are managed at runtime.
// Equipment missing from items is left untouched.
func (db *DB) SyncEquipment(ctx context.Context, items []models.Equipment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO equipment (` + equipmentColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  owner_id = excluded.owner_id,
                  name = excluded.name,
                  updated_at = excluded.updated_at`
	now := time.Now().UTC()
	for i := range items {
		item := items[i]
		if err := item.Validate(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			item.ID, item.OwnerID, item.Name, item.HourlyRate, item.DailyRate, item.IsActive, now, now,
		); err != nil {
			return fmt.Errorf("failed to upsert equipment %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit equipment sync: %w", err)
	}
	db.logger.Info().Int("count", len(items)).Msg("equipment catalog synced")
	return nil
}
