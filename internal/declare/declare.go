// Package declare reads YAML table declarations and applies them to table handles.
//
// A declaration describes the complete desired structure of a table: columns, indexes and
// foreign keys absent from the declaration are dropped from the handle.
package declare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/koba/db-sync/internal/schema"
)

// File is a set of table declarations.
type File struct {
	Tables []TableDecl `yaml:"tables"`
}

type TableDecl struct {
	Name string `yaml:"name"`
	// RenameFrom is the name the table has in the database.
	RenameFrom  string           `yaml:"rename_from,omitempty"`
	Drop        bool             `yaml:"drop,omitempty"`
	Columns     []ColumnDecl     `yaml:"columns"`
	Indexes     []IndexDecl      `yaml:"indexes,omitempty"`
	ForeignKeys []ForeignKeyDecl `yaml:"foreign_keys,omitempty"`
	PrimaryKeys []string         `yaml:"primary_keys,omitempty"`
}

type ColumnDecl struct {
	Name       string `yaml:"name"`
	RenameFrom string `yaml:"rename_from,omitempty"`
	Type       string `yaml:"type"`
	Size       *int   `yaml:"size,omitempty"`
	Precision  *int   `yaml:"precision,omitempty"`
	Scale      *int   `yaml:"scale,omitempty"`
	Nullable   *bool  `yaml:"nullable,omitempty"`
	Default    any    `yaml:"default,omitempty"`
	// DefaultExpr is a raw SQL default such as CURRENT_TIMESTAMP.
	DefaultExpr string   `yaml:"default_expr,omitempty"`
	Values      []string `yaml:"values,omitempty"`
}

type IndexDecl struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

type ForeignKeyDecl struct {
	Name           string   `yaml:"name,omitempty"`
	Columns        []string `yaml:"columns"`
	ForeignTable   string   `yaml:"references"`
	ForeignColumns []string `yaml:"foreign_columns"`
	OnDelete       string   `yaml:"on_delete,omitempty"`
	OnUpdate       string   `yaml:"on_update,omitempty"`
	// Index maintains an index over the local columns, true when omitted.
	Index *bool `yaml:"index,omitempty"`
}

// Parse decodes a declaration document, rejecting unknown keys.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &file, nil
}

// Load reads a declaration file, or every .yaml and .yml file of a directory in name order.
func Load(fs afero.Fs, path string) (*File, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declarations: %w", err)
	}

	paths := []string{path}
	if info.IsDir() {
		entries, err := afero.ReadDir(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read declarations: %w", err)
		}
		paths = paths[:0]
		for _, entry := range entries {
			ext := filepath.Ext(entry.Name())
			if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
	}

	merged := &File{}
	for _, p := range paths {
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		file, err := Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
		merged.Tables = append(merged.Tables, file.Tables...)
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Validate checks that declarations are complete and table names are unique.
func (f *File) Validate() error {
	seen := map[string]bool{}
	for _, t := range f.Tables {
		if t.Name == "" {
			return fmt.Errorf("table declaration without name")
		}
		if seen[t.Name] {
			return fmt.Errorf("table '%s' is declared twice", t.Name)
		}
		seen[t.Name] = true

		if t.Drop {
			continue
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("table '%s' declares no columns", t.Name)
		}
		for _, c := range t.Columns {
			if c.Name == "" || c.Type == "" {
				return fmt.Errorf("table '%s': every column needs a name and a type", t.Name)
			}
		}
		for _, fk := range t.ForeignKeys {
			if fk.ForeignTable == "" || len(fk.Columns) != len(fk.ForeignColumns) {
				return fmt.Errorf("table '%s': foreign key over %v needs a table and matching columns", t.Name, fk.Columns)
			}
		}
	}
	return nil
}

// Source hands out table handles loaded from a database.
type Source interface {
	Table(ctx context.Context, name string) (*schema.Table, error)
}

// Apply declares every table of the file on handles obtained from source. Dropped tables
// that do not exist are skipped.
func Apply(ctx context.Context, source Source, file *File) ([]*schema.Table, error) {
	var tables []*schema.Table
	for _, decl := range file.Tables {
		t, err := lookup(ctx, source, decl)
		if err != nil {
			return nil, err
		}

		if decl.Drop {
			if !t.Exists() {
				continue
			}
			if err := t.DeclareDropped(); err != nil {
				return nil, err
			}
			tables = append(tables, t)
			continue
		}

		if err := declareTable(t, decl); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func lookup(ctx context.Context, source Source, decl TableDecl) (*schema.Table, error) {
	if decl.RenameFrom != "" {
		t, err := source.Table(ctx, decl.RenameFrom)
		if err != nil {
			return nil, err
		}
		if t.Exists() {
			return t, nil
		}
	}
	return source.Table(ctx, decl.Name)
}

func declareTable(t *schema.Table, decl TableDecl) error {
	t.SetName(decl.Name)

	declared := make([]string, 0, len(decl.Columns))
	for _, c := range decl.Columns {
		if c.RenameFrom != "" && t.State().HasColumn(c.RenameFrom) && !t.State().HasColumn(c.Name) {
			if err := t.RenameColumn(c.RenameFrom, c.Name); err != nil {
				return err
			}
		}
		if err := declareColumn(t.Column(c.Name), c); err != nil {
			return fmt.Errorf("table '%s': %w", decl.Name, err)
		}
		declared = append(declared, c.Name)
	}
	for _, c := range t.Columns() {
		if !slices.Contains(declared, c.Name) {
			if err := t.DropColumn(c.Name); err != nil {
				return err
			}
		}
	}

	var keepIndexes [][]string
	var keepForeignKeys [][]string
	for _, fk := range decl.ForeignKeys {
		withIndex := fk.Index == nil || *fk.Index
		f, err := t.ForeignKey(fk.Columns, withIndex)
		if err != nil {
			return err
		}
		f.References(fk.ForeignTable, fk.ForeignColumns...)
		f.SetOnDelete(fk.OnDelete)
		f.SetOnUpdate(fk.OnUpdate)
		if fk.Name != "" {
			f.Name = fk.Name
		}
		keepForeignKeys = append(keepForeignKeys, fk.Columns)
		if withIndex {
			keepIndexes = append(keepIndexes, fk.Columns)
		}
	}

	for _, idx := range decl.Indexes {
		i, err := t.Index(idx.Columns...)
		if err != nil {
			return err
		}
		i.SetUnique(idx.Unique)
		if idx.Name != "" {
			if err := t.RenameIndex(idx.Columns, idx.Name); err != nil {
				return err
			}
		}
		keepIndexes = append(keepIndexes, i.ColumnsWithSort())
	}

	for _, i := range t.Indexes() {
		if !containsColumns(keepIndexes, i.ColumnsWithSort()) {
			if err := t.DropIndex(i.ColumnsWithSort()...); err != nil {
				return err
			}
		}
	}
	for _, f := range t.ForeignKeys() {
		if !containsColumns(keepForeignKeys, f.Columns) {
			if err := t.DropForeignKey(f.Columns...); err != nil {
				return err
			}
		}
	}

	t.SetPrimaryKeys(decl.PrimaryKeys...)
	return nil
}

func containsColumns(sets [][]string, columns []string) bool {
	identity := schema.NewIndex("", columns...).ColumnsWithSort()
	return slices.ContainsFunc(sets, func(set []string) bool {
		return slices.Equal(schema.NewIndex("", set...).ColumnsWithSort(), identity)
	})
}

func declareColumn(c *schema.Column, decl ColumnDecl) error {
	if err := c.SetType(decl.Type); err != nil {
		return err
	}

	switch {
	case len(decl.Values) > 0:
		c.Enum(decl.Values...)
	case decl.Precision != nil:
		c.Precision, c.Scale = *decl.Precision, valueOr(decl.Scale, 0)
	}
	if decl.Size != nil {
		c.SetSize(*decl.Size)
	}
	if decl.Nullable != nil {
		c.SetNullable(*decl.Nullable)
	}

	switch {
	case decl.DefaultExpr != "":
		c.SetDefault(schema.Fragment(decl.DefaultExpr))
	default:
		c.SetDefault(decl.Default)
	}
	return c.Err()
}

func valueOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
