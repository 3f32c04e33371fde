package schema

import (
	"context"
	"database/sql"
)

// Handler executes the DDL that brings a table in line with its declared state.
type Handler interface {
	HasTable(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, table *Table) error
	SyncTable(ctx context.Context, table *Table, op Operation) error
	DropTable(ctx context.Context, table *Table) error
	EraseTable(ctx context.Context, table *Table) error
}

// Driver is the connection a table belongs to.
// Transactions nest: a begin inside an open transaction opens a savepoint.
type Driver interface {
	Types() *TypeRegistry
	Handler() Handler
	BeginTransaction(ctx context.Context, opts *sql.TxOptions) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}
