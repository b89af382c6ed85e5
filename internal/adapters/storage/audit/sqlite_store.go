package audit

import (
	"context"
	"database/sql"
	"time"

	"restart/internal/adapters/storage"
	domain "restart/internal/domain/audit"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `SELECT id, timestamp, category, action, severity, actor_id, device_id, resource_id, resource_type, description, ip_address, user_agent, metadata FROM audit_event`

// SQLiteStore implements the audit Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new audit event store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save persists an audit event.
// PRE: event has an id
// POST: Event is persisted with its timestamp in UTC
func (s *SQLiteStore) Save(ctx context.Context, event domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_event (id, timestamp, category, action, severity, actor_id, device_id, resource_id, resource_type, description, ip_address, user_agent, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC().Format(timeLayout), string(event.Category), string(event.Action),
		string(event.Severity), event.ActorID, event.DeviceID, event.ResourceID, event.ResourceType,
		event.Description, event.IPAddress, event.UserAgent, event.Metadata)
	return err
}

// List returns audit events with optional filtering.
// PRE: limit > 0
// POST: Returns events ordered by timestamp desc
func (s *SQLiteStore) List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []any{}

	if filter.Category != nil {
		query += " AND category = ?"
		args = append(args, string(*filter.Category))
	}
	if filter.Action != nil {
		query += " AND action = ?"
		args = append(args, string(*filter.Action))
	}
	if filter.ActorID != nil {
		query += " AND actor_id = ?"
		args = append(args, *filter.ActorID)
	}
	if filter.DeviceID != nil {
		query += " AND device_id = ?"
		args = append(args, *filter.DeviceID)
	}
	if filter.Severity != nil {
		query += " AND severity = ?"
		args = append(args, string(*filter.Severity))
	}
	if filter.From != nil {
		query += " AND timestamp >= ?"
		args = append(args, filter.From.UTC().Format(timeLayout))
	}
	if filter.To != nil {
		query += " AND timestamp <= ?"
		args = append(args, filter.To.UTC().Format(timeLayout))
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetByID retrieves a specific audit event.
// PRE: id is non-empty
// POST: Returns the event or sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
}

// DeleteBefore removes events older than cutoff.
// PRE: none
// POST: returns the number of deleted events
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_event WHERE timestamp < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (domain.Event, error) {
	var e domain.Event
	var timestamp string
	err := row.Scan(&e.ID, &timestamp, &e.Category, &e.Action, &e.Severity, &e.ActorID, &e.DeviceID,
		&e.ResourceID, &e.ResourceType, &e.Description, &e.IPAddress, &e.UserAgent, &e.Metadata)
	if err != nil {
		return domain.Event{}, err
	}
	e.Timestamp, _ = time.Parse(timeLayout, timestamp)
	return e, nil
}

var _ scanner = (*sql.Row)(nil)
