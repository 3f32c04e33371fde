package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/generator"
	"github.com/koba/db-sync/internal/schema"
)

// ErrNoTransaction is returned when committing or rolling back without an open transaction.
var ErrNoTransaction = errors.New("no active transaction")

// Driver is a database connection able to introspect and change its schema.
// Nested transactions are emulated with savepoints.
type Driver struct {
	db        *sqlx.DB
	dialect   dialect.Dialect
	handler   *generator.Handler
	inspector inspector
	logger    *slog.Logger

	tx    *sqlx.Tx
	level int

	dryRun  bool
	planned []string
}

var (
	_ schema.Driver      = (*Driver)(nil)
	_ generator.Executor = (*Driver)(nil)
)

// NewDriver wraps an open connection.
func NewDriver(db *sqlx.DB, d dialect.Dialect, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	driver := &Driver{
		db:      db,
		dialect: d,
		logger:  logger.With("dialect", d.Name()),
	}
	driver.handler = generator.NewHandler(d, driver, driver.logger)
	driver.inspector = newInspector(driver)
	return driver
}

func (d *Driver) Dialect() dialect.Dialect     { return d.dialect }
func (d *Driver) Types() *schema.TypeRegistry { return d.dialect.Types() }
func (d *Driver) Handler() schema.Handler     { return d.handler }

// Close closes the connection
func (d *Driver) Close() error {
	return d.db.Close()
}

// SetDryRun makes Execute record statements instead of running them.
func (d *Driver) SetDryRun(dryRun bool) {
	d.dryRun = dryRun
}

// Planned returns the statements recorded in dry run mode.
func (d *Driver) Planned() []string {
	return slices.Clone(d.planned)
}

// Identifier quotes a table or column name.
func (d *Driver) Identifier(name string) string {
	return d.dialect.Quote(name)
}

// Quote renders a value as an SQL literal.
func (d *Driver) Quote(value any) string {
	return d.dialect.Literal(value)
}

func (d *Driver) conn() sqlx.ExtContext {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// Query runs a query inside the open transaction, if any.
func (d *Driver) Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return d.conn().QueryxContext(ctx, d.db.Rebind(query), args...)
}

func (d *Driver) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, d.conn(), dest, d.db.Rebind(query), args...)
}

// Execute runs a statement and returns the number of affected rows.
func (d *Driver) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if d.dryRun {
		d.planned = append(d.planned, query)
		return 0, nil
	}

	result, err := d.conn().ExecContext(ctx, d.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// TransactionLevel returns the depth of nested transactions.
func (d *Driver) TransactionLevel() int {
	return d.level
}

func savepointName(level int) string {
	return fmt.Sprintf("SVP%d", level)
}

func (d *Driver) BeginTransaction(ctx context.Context, opts *sql.TxOptions) error {
	if d.dryRun {
		d.level++
		return nil
	}

	if d.level == 0 {
		if !d.dialect.TransactionalDDL() {
			d.logger.Warn("schema changes are committed implicitly and cannot be rolled back")
		}
		tx, err := d.db.BeginTxx(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		d.tx = tx
		d.level = 1
		d.logger.Debug("transaction started")
		return nil
	}

	if _, err := d.tx.ExecContext(ctx, d.dialect.Savepoint(savepointName(d.level+1))); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	d.level++
	d.logger.Debug("savepoint created", "level", d.level)
	return nil
}

func (d *Driver) CommitTransaction(ctx context.Context) error {
	if d.level == 0 {
		return ErrNoTransaction
	}
	if d.dryRun {
		d.level--
		return nil
	}

	if d.level == 1 {
		tx := d.tx
		d.tx, d.level = nil, 0
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		d.logger.Debug("transaction committed")
		return nil
	}

	if stmt := d.dialect.ReleaseSavepoint(savepointName(d.level)); stmt != "" {
		if _, err := d.tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
	}
	d.level--
	return nil
}

func (d *Driver) RollbackTransaction(ctx context.Context) error {
	if d.level == 0 {
		return ErrNoTransaction
	}
	if d.dryRun {
		d.level--
		return nil
	}

	if d.level == 1 {
		tx := d.tx
		d.tx, d.level = nil, 0
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("failed to rollback transaction: %w", err)
		}
		d.logger.Debug("transaction rolled back")
		return nil
	}

	if _, err := d.tx.ExecContext(ctx, d.dialect.RollbackToSavepoint(savepointName(d.level))); err != nil {
		return fmt.Errorf("failed to rollback savepoint: %w", err)
	}
	d.level--
	return nil
}

// Tables lists the tables of the database
func (d *Driver) Tables(ctx context.Context) ([]string, error) {
	tables, err := d.inspector.tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	return tables, nil
}

func (d *Driver) HasTable(ctx context.Context, name string) (bool, error) {
	tables, err := d.Tables(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(tables, name), nil
}

func (d *Driver) TableColumns(ctx context.Context, name string) ([]string, error) {
	columns, err := d.inspector.columns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	names := make([]string, len(columns))
	for n, c := range columns {
		names[n] = c.Name
	}
	return names, nil
}

// State reads the structure of an existing table.
func (d *Driver) State(ctx context.Context, name string) (*schema.State, error) {
	state := schema.NewState(name)

	// Get columns
	columns, err := d.inspector.columns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	for _, c := range columns {
		state.RegisterColumn(c)
	}

	primaryKeys, err := d.inspector.primaryKeys(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get primary keys: %w", err)
	}
	state.SetPrimaryKeys(primaryKeys)

	// Get indexes
	indexes, err := d.inspector.indexes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get indexes: %w", err)
	}
	for _, idx := range indexes {
		state.RegisterIndex(idx)
	}

	// Get foreign keys
	foreignKeys, err := d.inspector.foreignKeys(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	for _, fk := range foreignKeys {
		fk.Index = state.HasIndex(fk.Columns)
		state.RegisterForeignKey(fk)
	}

	return state, nil
}

// Table returns a handle for the table, loaded from the database when it exists.
func (d *Driver) Table(ctx context.Context, name string) (*schema.Table, error) {
	exists, err := d.HasTable(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return schema.NewTable(d, name), nil
	}

	state, err := d.State(ctx, name)
	if err != nil {
		return nil, err
	}
	return schema.ExistingTable(d, state), nil
}
