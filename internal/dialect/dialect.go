// Package dialect holds the per-database type registries and the SQL fragments the schema
// handler assembles into DDL statements.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/koba/db-sync/internal/schema"
)

// Dialect renders identifiers, literals and DDL fragments for one database family.
type Dialect interface {
	// Name is the dialect name used in configuration, e.g. "postgres".
	Name() string
	// DriverName is the database/sql driver the dialect connects with.
	DriverName() string
	Types() *schema.TypeRegistry

	Quote(identifier string) string
	Literal(value any) string

	ColumnType(c *schema.Column) string
	ColumnDefinition(table string, c *schema.Column) string
	PrimaryKeyClause(table string, columns []string) string
	ForeignKeyClause(fk *schema.ForeignKey) string

	RenameTable(from, to string) string
	AddColumn(table string, c *schema.Column) string
	DropColumn(table, column string) string
	RenameColumn(table, from, to string) string
	// AlterColumn returns the statements changing initial into current. A renamed column is
	// renamed before, so statements address it by current.Name.
	AlterColumn(table string, initial, current *schema.Column) []string
	DropPrimaryKey(table string) (string, error)
	AddPrimaryKey(table string, columns []string) string
	CreateIndex(table string, idx *schema.Index) string
	DropIndex(table string, idx *schema.Index) string
	AddForeignKey(table string, fk *schema.ForeignKey) string
	DropForeignKey(table string, fk *schema.ForeignKey) string
	Truncate(table string) string

	Savepoint(name string) string
	ReleaseSavepoint(name string) string
	RollbackToSavepoint(name string) string

	// TransactionalDDL reports whether DDL statements can be rolled back.
	TransactionalDDL() bool
	// SupportsAlter reports whether columns and constraints can be changed in place.
	// Tables of dialects that cannot are rebuilt.
	SupportsAlter() bool
}

// Get returns the dialect registered under name.
func Get(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return MySQL(), nil
	case "postgres", "postgresql", "pgsql":
		return Postgres(), nil
	case "sqlserver", "mssql":
		return SQLServer(), nil
	case "sqlite", "sqlite3":
		return SQLite(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", name)
	}
}

// base implements the fragments most dialects share. Dialect specific behavior is plugged in
// through the function fields.
type base struct {
	name       string
	driverName string
	types      *schema.TypeRegistry

	quotePart   func(string) string
	quoteString func(string) string
	boolLiteral func(bool) string
	define      func(table string, c *schema.Column) string
}

func (b *base) Name() string                { return b.name }
func (b *base) DriverName() string          { return b.driverName }
func (b *base) Types() *schema.TypeRegistry { return b.types }
func (b *base) TransactionalDDL() bool      { return true }
func (b *base) SupportsAlter() bool         { return true }

// Quote quotes every dot separated part of an identifier.
func (b *base) Quote(identifier string) string {
	parts := strings.Split(identifier, ".")
	for n, part := range parts {
		parts[n] = b.quotePart(part)
	}
	return strings.Join(parts, ".")
}

func (b *base) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for n, name := range names {
		quoted[n] = b.Quote(name)
	}
	return strings.Join(quoted, ", ")
}

func (b *base) Literal(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case schema.Fragment:
		return string(v)
	case bool:
		return b.boolLiteral(v)
	case string:
		return b.quoteString(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	default:
		return b.quoteString(cast.ToString(v))
	}
}

func (b *base) ColumnDefinition(table string, c *schema.Column) string {
	return b.define(table, c)
}

// ColumnType renders the native type with its size or precision.
func (b *base) ColumnType(c *schema.Column) string {
	return sizedType(c.Type, c)
}

func sizedType(nativeType string, c *schema.Column) string {
	switch {
	case c.Precision > 0:
		return fmt.Sprintf("%s(%d,%d)", nativeType, c.Precision, c.Scale)
	case c.Size > 0:
		return fmt.Sprintf("%s(%d)", nativeType, c.Size)
	default:
		return nativeType
	}
}

func (b *base) defaultClause(c *schema.Column) string {
	if c.Default == nil || c.AutoIncrement {
		return ""
	}
	return " DEFAULT " + b.Literal(c.CastedDefault())
}

func (b *base) enumCheck(c *schema.Column) string {
	values := make([]string, len(c.EnumValues))
	for n, v := range c.EnumValues {
		values[n] = b.quoteString(v)
	}
	return fmt.Sprintf("CHECK (%s IN (%s))", b.Quote(c.Name), strings.Join(values, ", "))
}

func (b *base) PrimaryKeyClause(_ string, columns []string) string {
	return fmt.Sprintf("PRIMARY KEY (%s)", b.quoteList(columns))
}

func (b *base) ForeignKeyClause(fk *schema.ForeignKey) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		b.Quote(fk.Name),
		b.quoteList(fk.Columns),
		b.Quote(fk.ForeignTable),
		b.quoteList(fk.ForeignColumns),
		fk.OnDelete,
		fk.OnUpdate,
	)
}

func (b *base) RenameTable(from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", b.Quote(from), b.Quote(to))
}

func (b *base) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", b.Quote(table), b.define(table, c))
}

func (b *base) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", b.Quote(table), b.Quote(column))
}

func (b *base) RenameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", b.Quote(table), b.Quote(from), b.Quote(to))
}

func (b *base) AddPrimaryKey(table string, columns []string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", b.Quote(table), b.PrimaryKeyClause(table, columns))
}

func (b *base) indexColumns(idx *schema.Index) string {
	columns := make([]string, len(idx.Columns))
	for n, column := range idx.Columns {
		columns[n] = b.Quote(column)
		if order := idx.Sort[column]; order != "" {
			columns[n] += " " + order
		}
	}
	return strings.Join(columns, ", ")
}

func (b *base) CreateIndex(table string, idx *schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, b.Quote(idx.Name), b.Quote(table), b.indexColumns(idx))
}

func (b *base) DropIndex(_ string, idx *schema.Index) string {
	return fmt.Sprintf("DROP INDEX %s", b.Quote(idx.Name))
}

func (b *base) AddForeignKey(table string, fk *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", b.Quote(table), b.ForeignKeyClause(fk))
}

func (b *base) DropForeignKey(table string, fk *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", b.Quote(table), b.Quote(fk.Name))
}

func (b *base) Truncate(table string) string {
	return "TRUNCATE TABLE " + b.Quote(table)
}

func (b *base) Savepoint(name string) string {
	return "SAVEPOINT " + b.Quote(name)
}

func (b *base) ReleaseSavepoint(name string) string {
	return "RELEASE SAVEPOINT " + b.Quote(name)
}

func (b *base) RollbackToSavepoint(name string) string {
	return "ROLLBACK TO SAVEPOINT " + b.Quote(name)
}

func quoteWith(quote string) func(string) string {
	return func(s string) string {
		return quote + strings.ReplaceAll(s, quote, quote+quote) + quote
	}
}

func numericBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// common attribute values used by the registries
var (
	yes = schema.Bool(true)
	no  = schema.Bool(false)
)

func spec(nativeType string) schema.TypeSpec {
	return schema.Native(nativeType)
}

func sized(nativeType string, size int) schema.TypeSpec {
	return schema.TypeSpec{Type: nativeType, Size: schema.Int(size)}
}

func rule(abstract string, specs ...schema.TypeSpec) schema.ReverseRule {
	return schema.ReverseRule{Abstract: abstract, Specs: specs}
}
