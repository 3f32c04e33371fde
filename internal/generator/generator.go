package generator

import (
	"context"
	"log/slog"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/schema"
)

// Executor runs statements against the database a handler manages.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	HasTable(ctx context.Context, name string) (bool, error)
	// TableColumns lists the column names of an existing table.
	TableColumns(ctx context.Context, name string) ([]string, error)
}

// Handler is the schema handler: it turns table handles into DDL and executes it.
type Handler struct {
	dialect dialect.Dialect
	ddl     *DDLGenerator
	exec    Executor
	logger  *slog.Logger
}

var _ schema.Handler = (*Handler)(nil)

// NewHandler creates a schema handler executing statements through exec.
func NewHandler(d dialect.Dialect, exec Executor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dialect: d,
		ddl:     NewDDLGenerator(d),
		exec:    exec,
		logger:  logger,
	}
}

func (h *Handler) HasTable(ctx context.Context, name string) (bool, error) {
	return h.exec.HasTable(ctx, name)
}

func (h *Handler) CreateTable(ctx context.Context, t *schema.Table) error {
	return h.run(ctx, t.Name(), h.ddl.CreateTable(t))
}

func (h *Handler) SyncTable(ctx context.Context, t *schema.Table, op schema.Operation) error {
	if !h.dialect.SupportsAlter() {
		return h.rebuildTable(ctx, t, op)
	}

	statements, err := h.ddl.Sync(t, op)
	if err != nil {
		return schema.NewHandlerError(t.Name(), "", err)
	}
	return h.run(ctx, t.Name(), statements)
}

const columnOperations = schema.DropColumns | schema.CreateColumns | schema.AlterColumns

// rebuildTable applies the changes of dialects without ALTER support. Index changes and
// renames run in place, everything else rebuilds the table from its declared state. A pass
// that only drops foreign keys is folded into the rebuild of a later column pass.
func (h *Handler) rebuildTable(ctx context.Context, t *schema.Table, op schema.Operation) error {
	live, err := h.exec.TableColumns(ctx, t.InitialName())
	if err != nil {
		return schema.NewHandlerError(t.Name(), "", err)
	}

	inPlace := !h.ddl.NeedsRebuild(t, op, live)
	if !inPlace && op&^(schema.DropForeignKeys|schema.DropIndexes) == 0 {
		// the column pass rebuilds the table without the dropped foreign keys
		inPlace = h.ddl.NeedsRebuild(t, columnOperations, live)
	}

	if inPlace {
		statements, err := h.ddl.Sync(t, op&(schema.DoRename|schema.DropIndexes|schema.CreateIndexes))
		if err != nil {
			return schema.NewHandlerError(t.Name(), "", err)
		}
		return h.run(ctx, t.Name(), statements)
	}

	name := t.InitialName()
	var statements []string
	if op.Has(schema.DoRename) && name != t.Name() {
		statements = append(statements, h.dialect.RenameTable(name, t.Name()))
		name = t.Name()
	}
	statements = append(statements, h.ddl.Rebuild(t, name, live)...)

	h.logger.Debug("rebuilding table", "table", name, "operation", op.String())
	return h.run(ctx, t.Name(), statements)
}

func (h *Handler) DropTable(ctx context.Context, t *schema.Table) error {
	return h.run(ctx, t.Name(), []string{h.ddl.DropTable(t.InitialName())})
}

func (h *Handler) EraseTable(ctx context.Context, t *schema.Table) error {
	return h.run(ctx, t.Name(), []string{h.dialect.Truncate(t.InitialName())})
}

func (h *Handler) run(ctx context.Context, table string, statements []string) error {
	for _, stmt := range statements {
		h.logger.Debug("executing statement", "table", table, "sql", stmt)
		if _, err := h.exec.Execute(ctx, stmt); err != nil {
			return schema.NewHandlerError(table, stmt, err)
		}
	}
	return nil
}
