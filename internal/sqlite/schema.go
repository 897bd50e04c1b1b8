package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaVersion is the highest backup schema version this code understands.
const schemaVersion = 1

const createVersions = `CREATE TABLE IF NOT EXISTS schema_version (
    component TEXT PRIMARY KEY,
    version INTEGER NOT NULL
);`

const component = "backups"

// migrations[i] brings the schema from version i to i+1.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS backups (
    filename TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    origin TEXT NOT NULL,
    entry_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backups_timestamp ON backups(timestamp);
CREATE INDEX IF NOT EXISTS idx_backups_origin ON backups(origin, timestamp);`,
}

// currentVersion returns the stored schema version, 0 for a new database.
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE component = ?`, component).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate applies every pending migration inside one transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createVersions); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	v, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	if v > schemaVersion {
		return fmt.Errorf("backup database schema version %d is newer than supported version %d", v, schemaVersion)
	}
	if v == schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := v; i < schemaVersion; i++ {
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migrate to version %d: %w", i+1, err)
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO schema_version (component, version) VALUES (?, ?)
ON CONFLICT(component) DO UPDATE SET version = excluded.version`, component, schemaVersion)
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
