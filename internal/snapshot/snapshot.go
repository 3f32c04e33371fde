package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/schema"
)

// Source is a database whose table structure can be captured.
type Source interface {
	Dialect() dialect.Dialect
	Tables(ctx context.Context) ([]string, error)
	State(ctx context.Context, name string) (*schema.State, error)
}

// Snapshot represents the captured structure of a database
type Snapshot struct {
	Metadata map[string]string
	// Names keeps the capture order of Tables.
	Names  []string
	Tables map[string]*schema.State
}

// Dialect returns the dialect the snapshot was captured from.
func (s *Snapshot) Dialect() (dialect.Dialect, error) {
	return dialect.Get(s.Metadata["dialect"])
}

// States returns the captured states in capture order.
func (s *Snapshot) States() []*schema.State {
	states := make([]*schema.State, 0, len(s.Names))
	for _, name := range s.Names {
		states = append(states, s.Tables[name])
	}
	return states
}

type schemaRow struct {
	Name string `db:"table_name"`
	JSON string `db:"schema_json"`
}

// Create captures the structure of the given tables, or of every table when none are given,
// into a new SQLite file at outputPath.
func Create(ctx context.Context, source Source, tables []string, outputPath string) (*Snapshot, error) {
	// Ensure output directory exists
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Remove existing snapshot file if it exists
	if _, err := os.Stat(outputPath); err == nil {
		if err := os.Remove(outputPath); err != nil {
			return nil, fmt.Errorf("failed to remove existing snapshot: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot database: %w", err)
	}
	defer db.Close()

	if err := initializeSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}

	if len(tables) == 0 {
		tables, err = source.Tables(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get all tables: %w", err)
		}
	}

	snapshot := &Snapshot{
		Metadata: map[string]string{
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"dialect":    source.Dialect().Name(),
		},
		Tables: make(map[string]*schema.State, len(tables)),
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range snapshot.Metadata {
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES (?, ?)", key, value); err != nil {
			return nil, fmt.Errorf("failed to insert metadata: %w", err)
		}
	}

	for n, name := range tables {
		state, err := source.State(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot table %s: %w", name, err)
		}

		data, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema of %s: %w", name, err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO table_schemas (position, table_name, schema_json) VALUES (?, ?, ?)",
			n,
			name,
			string(data),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert schema: %w", err)
		}

		snapshot.Names = append(snapshot.Names, name)
		snapshot.Tables[name] = state
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return snapshot, nil
}

// Load reads a snapshot from a SQLite file
func Load(ctx context.Context, path string) (*Snapshot, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot file does not exist: %s", path)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer db.Close()

	snapshot := &Snapshot{
		Metadata: map[string]string{},
		Tables:   map[string]*schema.State{},
	}

	var metadata []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.SelectContext(ctx, &metadata, "SELECT key, value FROM metadata"); err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	for _, m := range metadata {
		snapshot.Metadata[m.Key] = m.Value
	}

	d, err := snapshot.Dialect()
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot %s: %w", path, err)
	}

	var rows []schemaRow
	if err := db.SelectContext(ctx, &rows, "SELECT table_name, schema_json FROM table_schemas ORDER BY position"); err != nil {
		return nil, fmt.Errorf("failed to query table schemas: %w", err)
	}

	for _, row := range rows {
		state, err := schema.DecodeState([]byte(row.JSON), d.Types())
		if err != nil {
			return nil, err
		}
		snapshot.Names = append(snapshot.Names, row.Name)
		snapshot.Tables[row.Name] = state
	}

	return snapshot, nil
}
