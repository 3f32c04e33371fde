// Package reflector synchronizes a pool of tables in dependency order.
//
// Run applies the changes of every table in three passes inside one transaction per
// driver:
//
//	1. drop stale foreign keys, then stale indexes, of every existing table
//	2. save each table in dependency order without creating foreign keys
//	3. create the foreign keys of every table
//
// so that no foreign key ever points at a column or table that is about to change.
package reflector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

// CycleError reports tables referencing each other through foreign keys.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("foreign key cycle between tables: %s", strings.Join(e.Path, " -> "))
}

// Reflector is a pool of table handles saved together. Tables are looked up by their
// current name, so a table renamed after it was added is found under its new name.
type Reflector struct {
	tables []*schema.Table
	logger *slog.Logger
}

// New creates an empty pool.
func New(logger *slog.Logger) *Reflector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflector{logger: logger}
}

// AddTable adds a table to the pool, replacing a table with the same name.
func (r *Reflector) AddTable(t *schema.Table) {
	for n, pooled := range r.tables {
		if pooled == t || pooled.Name() == t.Name() {
			r.tables[n] = t
			return
		}
	}
	r.tables = append(r.tables, t)
}

// Table returns the pooled table with the name.
func (r *Reflector) Table(name string) *schema.Table {
	for _, t := range r.tables {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Tables returns the pooled tables in the order they were added.
func (r *Reflector) Tables() []*schema.Table {
	return slices.Clone(r.tables)
}

// HasChanges reports whether any pooled table has pending changes.
func (r *Reflector) HasChanges() bool {
	for _, t := range r.tables {
		if t.HasChanges() || t.Status() == schema.StatusDeclaredDropped {
			return true
		}
	}
	return false
}

// SortedTables orders the pool so that every table follows the tables it references.
// Self references and references to tables outside the pool are ignored.
func (r *Reflector) SortedTables() ([]*schema.Table, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	byName := make(map[string]*schema.Table, len(r.tables))
	for _, t := range r.tables {
		byName[t.Name()] = t
	}
	marks := make(map[*schema.Table]int, len(r.tables))
	sorted := make([]*schema.Table, 0, len(r.tables))

	var visit func(t *schema.Table, path []string) error
	visit = func(t *schema.Table, path []string) error {
		switch marks[t] {
		case visited:
			return nil
		case visiting:
			return &CycleError{Path: append(path, t.Name())}
		}

		marks[t] = visiting
		for _, dep := range t.Dependencies() {
			next, ok := byName[dep]
			if !ok {
				continue
			}
			if err := visit(next, append(path, t.Name())); err != nil {
				return err
			}
		}
		marks[t] = visited
		sorted = append(sorted, t)
		return nil
	}

	for _, t := range r.tables {
		if err := visit(t, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// Run saves every pooled table. Nothing is executed when no table has changes.
func (r *Reflector) Run(ctx context.Context) error {
	if !r.HasChanges() {
		r.logger.Debug("no schema changes")
		return nil
	}

	tables, err := r.SortedTables()
	if err != nil {
		return err
	}

	drivers := distinctDrivers(tables)
	if err := r.beginTransaction(ctx, drivers); err != nil {
		return err
	}

	if err := r.apply(ctx, tables); err != nil {
		return r.rollbackTransaction(ctx, drivers, err)
	}

	for n, driver := range drivers {
		if err := driver.CommitTransaction(ctx); err != nil {
			return r.rollbackTransaction(ctx, drivers[n:], fmt.Errorf("failed to commit transaction: %w", err))
		}
	}
	return nil
}

func (r *Reflector) apply(ctx context.Context, tables []*schema.Table) error {
	r.logger.Debug("dropping foreign keys")
	for _, t := range tables {
		if t.Exists() {
			if err := t.Save(ctx, schema.DropForeignKeys, false); err != nil {
				return err
			}
		}
	}

	r.logger.Debug("dropping indexes")
	for _, t := range tables {
		if t.Exists() {
			if err := t.Save(ctx, schema.DropIndexes, false); err != nil {
				return err
			}
		}
	}

	r.logger.Debug("saving tables")
	var remaining []*schema.Table
	for _, t := range tables {
		if t.Status() == schema.StatusDeclaredDropped {
			r.logger.Info("dropping table", "table", t.Name())
			if err := t.Save(ctx, schema.DoDrop, false); err != nil {
				return err
			}
			continue
		}

		r.logger.Info("saving table", "table", t.Name(), "status", t.Status().String())
		op := schema.DoAll &^ (schema.DropForeignKeys | schema.DropIndexes | schema.CreateForeignKeys)
		if err := t.Save(ctx, op, false); err != nil {
			return err
		}
		remaining = append(remaining, t)
	}

	r.logger.Debug("creating foreign keys")
	for _, t := range remaining {
		if err := t.Save(ctx, schema.CreateForeignKeys, true); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reflector) beginTransaction(ctx context.Context, drivers []schema.Driver) error {
	for n, driver := range drivers {
		if err := driver.BeginTransaction(ctx, nil); err != nil {
			return r.rollbackTransaction(ctx, drivers[:n], fmt.Errorf("failed to begin transaction: %w", err))
		}
	}
	return nil
}

// rollbackTransaction rolls back the drivers in reverse order and returns cause joined with
// any rollback failure.
func (r *Reflector) rollbackTransaction(ctx context.Context, drivers []schema.Driver, cause error) error {
	errs := []error{cause}
	for n := len(drivers) - 1; n >= 0; n-- {
		if err := drivers[n].RollbackTransaction(ctx); err != nil {
			r.logger.Error("rollback failed", "error", err)
			errs = append(errs, fmt.Errorf("failed to rollback transaction: %w", err))
		}
	}
	return errors.Join(errs...)
}

func distinctDrivers(tables []*schema.Table) []schema.Driver {
	var drivers []schema.Driver
	seen := map[schema.Driver]bool{}
	for _, t := range tables {
		if d := t.Driver(); !seen[d] {
			seen[d] = true
			drivers = append(drivers, d)
		}
	}
	return drivers
}
