package snapshot

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const (
	// SQLite schema for storing snapshots
	createMetadataTable = `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	createTableSchemasTable = `
		CREATE TABLE IF NOT EXISTS table_schemas (
			position INTEGER NOT NULL,
			table_name TEXT PRIMARY KEY,
			schema_json TEXT NOT NULL
		);
	`
)

// initializeSchema creates the tables of a snapshot file
func initializeSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range []string{createMetadataTable, createTableSchemasTable} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
