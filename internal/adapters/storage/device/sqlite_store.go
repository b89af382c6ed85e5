package device

import (
	"context"
	"database/sql"
	"time"

	"restart/internal/adapters/storage"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the device Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new device store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Touch upserts the device and bumps its last-seen time. An empty userAgent
// keeps the stored one.
func (s *SQLiteStore) Touch(ctx context.Context, id, userAgent string, now time.Time) error {
	ts := now.UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kiosk_device (id, user_agent, created_at, last_seen_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_agent = CASE WHEN excluded.user_agent = '' THEN kiosk_device.user_agent ELSE excluded.user_agent END,
		   last_seen_at = excluded.last_seen_at`,
		id, userAgent, ts, ts)
	return err
}

// Rename sets the device label.
// PRE: id exists
// POST: returns sql.ErrNoRows when the device is unknown
func (s *SQLiteStore) Rename(ctx context.Context, id, label string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE kiosk_device SET label = ? WHERE id = ?`, label, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns all devices, most recently seen first.
func (s *SQLiteStore) List(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, user_agent, created_at, last_seen_at FROM kiosk_device ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		var created, seen string
		if err := rows.Scan(&d.ID, &d.Label, &d.UserAgent, &created, &seen); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(timeLayout, created)
		d.LastSeenAt, _ = time.Parse(timeLayout, seen)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
