package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migration upgrades the schema by one version inside a transaction.
type migration func(tx *sql.Tx) error

// migrations is the ordered chain; index i upgrades version i to i+1.
// INVARIANT: entries are append-only, released migrations are never edited
var migrations = []migration{
	migrateBaseline,
	migrateAuditIndexes,
}

// LatestSchemaVersion returns the version reached after every migration.
// PRE: none
// POST: returns len(migrations)
func LatestSchemaVersion() int {
	return len(migrations)
}

// SchemaVersion returns the applied schema version, 0 for an untracked database.
// PRE: db is a valid database connection
// POST: returns the highest recorded version
func SchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect schema_version: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema_version: %w", err)
	}
	return int(v.Int64), nil
}

// MigrateDB brings the schema up to LatestSchemaVersion.
// A file-backed database that already holds data is copied to
// "<path>.bak-v<version>" before the first pending migration runs.
// PRE: db is a valid database connection, path is its DSN file path or ":memory:"
// POST: WAL mode and foreign keys enabled, schema at LatestSchemaVersion
func MigrateDB(db *sql.DB, path string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current >= LatestSchemaVersion() {
		return nil
	}

	if current > 0 && path != "" && path != ":memory:" {
		backup := fmt.Sprintf("%s.bak-v%d", path, current)
		if _, err := db.Exec(`VACUUM INTO ?`, backup); err != nil {
			return fmt.Errorf("failed to back up database before migration: %w", err)
		}
		slog.Info("db_backup", "path", backup, "version", current)
	}

	for v := current; v < LatestSchemaVersion(); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, v+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", v+1, err)
		}
		slog.Info("db_migrated", "version", v+1)
	}
	return nil
}

// migrateBaseline creates the audit log and the kiosk device registry.
func migrateBaseline(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_event (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		category TEXT NOT NULL,
		action TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'info',
		actor_id TEXT NOT NULL DEFAULT '',
		device_id TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		resource_type TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS kiosk_device (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		last_seen_at TEXT NOT NULL
	);
	`)
	return err
}

// migrateAuditIndexes speeds up the admin audit listing.
func migrateAuditIndexes(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE INDEX IF NOT EXISTS idx_audit_event_timestamp ON audit_event(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_event_device ON audit_event(device_id, timestamp);
	`)
	return err
}
