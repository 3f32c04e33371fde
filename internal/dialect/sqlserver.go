package dialect

import (
	"fmt"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

type sqlserverDialect struct {
	*base
}

// SQLServer returns the Microsoft SQL Server dialect.
func SQLServer() Dialect {
	d := &sqlserverDialect{}
	d.base = &base{
		name:       "sqlserver",
		driverName: "sqlserver",
		types:      sqlserverTypes(),
		quotePart: func(s string) string {
			return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
		},
		quoteString: quoteWith("'"),
		boolLiteral: numericBool,
	}
	d.define = d.columnDefinition
	return d
}

func sqlserverTypes() *schema.TypeRegistry {
	return &schema.TypeRegistry{
		Dialect: "sqlserver",
		Mapping: map[string]schema.TypeSpec{
			schema.TypePrimary:      {Type: "int", AutoIncrement: yes, Nullable: no},
			schema.TypeBigPrimary:   {Type: "bigint", AutoIncrement: yes, Nullable: no},
			schema.TypeEnum:         spec("varchar"),
			schema.TypeBoolean:      spec("bit"),
			schema.TypeInteger:      spec("int"),
			schema.TypeTinyInteger:  spec("tinyint"),
			schema.TypeSmallInteger: spec("smallint"),
			schema.TypeBigInteger:   spec("bigint"),
			schema.TypeString:       sized("varchar", 255),
			schema.TypeText:         sized("varchar", 0),
			schema.TypeTinyText:     sized("varchar", 0),
			schema.TypeLongText:     sized("varchar", 0),
			schema.TypeDouble:       spec("float"),
			schema.TypeFloat:        spec("real"),
			schema.TypeDecimal:      {Type: "decimal", Precision: schema.Int(10), Scale: schema.Int(0)},
			schema.TypeDatetime:     spec("datetime"),
			schema.TypeDate:         spec("date"),
			schema.TypeTime:         spec("time"),
			schema.TypeTimestamp:    spec("datetime"),
			schema.TypeTimestampTZ:  {Type: "datetimeoffset", WithTimezone: yes},
			schema.TypeBinary:       sized("varbinary", 0),
			schema.TypeTinyBinary:   sized("varbinary", 0),
			schema.TypeLongBinary:   sized("varbinary", 0),
			schema.TypeJSON:         sized("varchar", 0),
			schema.TypeUUID:         spec("uniqueidentifier"),
		},
		Reverse: []schema.ReverseRule{
			rule(schema.TypePrimary, schema.TypeSpec{Type: "int", AutoIncrement: yes}),
			rule(schema.TypeBigPrimary, schema.TypeSpec{Type: "bigint", AutoIncrement: yes}),
			rule(schema.TypeEnum, schema.TypeSpec{Type: "varchar", Enum: yes}),
			rule(schema.TypeBoolean, spec("bit")),
			rule(schema.TypeInteger, spec("int")),
			rule(schema.TypeTinyInteger, spec("tinyint")),
			rule(schema.TypeSmallInteger, spec("smallint")),
			rule(schema.TypeBigInteger, spec("bigint")),
			rule(schema.TypeText, sized("varchar", 0), sized("nvarchar", 0)),
			rule(schema.TypeString, spec("varchar"), spec("char"), spec("nvarchar"), spec("nchar")),
			rule(schema.TypeDouble, spec("float")),
			rule(schema.TypeFloat, spec("real")),
			rule(schema.TypeDecimal, spec("decimal"), spec("numeric")),
			rule(schema.TypeDatetime, spec("datetime"), spec("datetime2")),
			rule(schema.TypeDate, spec("date")),
			rule(schema.TypeTime, spec("time")),
			rule(schema.TypeTimestampTZ, spec("datetimeoffset")),
			rule(schema.TypeBinary, spec("varbinary"), spec("binary")),
			rule(schema.TypeUUID, spec("uniqueidentifier")),
		},
		Exclude:             []schema.Field{schema.FieldWithTimezone},
		MaxIdentifierLength: 128,
	}
}

func (d *sqlserverDialect) ColumnType(c *schema.Column) string {
	switch strings.ToLower(c.Type) {
	case "varchar", "nvarchar", "varbinary":
		if c.Size <= 0 {
			return c.Type + "(max)"
		}
	}
	return sizedType(c.Type, c)
}

func (d *sqlserverDialect) defaultName(table, column string) string {
	return schema.Identifier(table, column, []string{"default"}, d.types.MaxIdentifierLength)
}

func (d *sqlserverDialect) checkName(table, column string) string {
	return schema.Identifier(table, column, []string{"check"}, d.types.MaxIdentifierLength)
}

func (d *sqlserverDialect) columnDefinition(table string, c *schema.Column) string {
	var sb strings.Builder
	sb.WriteString(d.Quote(c.Name))
	sb.WriteString(" ")
	sb.WriteString(d.ColumnType(c))
	if c.AutoIncrement {
		sb.WriteString(" IDENTITY(1,1)")
	}
	if c.Nullable {
		sb.WriteString(" NULL")
	} else {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil && !c.AutoIncrement {
		sb.WriteString(fmt.Sprintf(" CONSTRAINT %s DEFAULT %s", d.Quote(d.defaultName(table, c.Name)), d.Literal(c.CastedDefault())))
	}
	if len(c.EnumValues) > 0 {
		sb.WriteString(fmt.Sprintf(" CONSTRAINT %s %s", d.Quote(d.checkName(table, c.Name)), d.enumCheck(c)))
	}
	return sb.String()
}

func (d *sqlserverDialect) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), d.columnDefinition(table, c))
}

func (d *sqlserverDialect) RenameTable(from, to string) string {
	return fmt.Sprintf("EXEC sp_rename %s, %s", d.quoteString(from), d.quoteString(to))
}

func (d *sqlserverDialect) RenameColumn(table, from, to string) string {
	return fmt.Sprintf("EXEC sp_rename %s, %s, 'COLUMN'", d.quoteString(table+"."+from), d.quoteString(to))
}

// AlterColumn drops and recreates the named default and check constraints around the
// ALTER COLUMN, which cannot change them.
func (d *sqlserverDialect) AlterColumn(table string, initial, current *schema.Column) []string {
	prefix := fmt.Sprintf("ALTER TABLE %s ", d.Quote(table))
	statements := []string{
		prefix + fmt.Sprintf("DROP CONSTRAINT IF EXISTS %s", d.Quote(d.defaultName(table, initial.Name))),
		prefix + fmt.Sprintf("DROP CONSTRAINT IF EXISTS %s", d.Quote(d.checkName(table, initial.Name))),
	}

	null := " NULL"
	if !current.Nullable {
		null = " NOT NULL"
	}
	statements = append(statements, prefix+fmt.Sprintf("ALTER COLUMN %s %s%s", d.Quote(current.Name), d.ColumnType(current), null))

	if current.Default != nil && !current.AutoIncrement {
		statements = append(statements, prefix+fmt.Sprintf("ADD CONSTRAINT %s DEFAULT %s FOR %s",
			d.Quote(d.defaultName(table, current.Name)), d.Literal(current.CastedDefault()), d.Quote(current.Name)))
	}
	if len(current.EnumValues) > 0 {
		statements = append(statements, prefix+fmt.Sprintf("ADD CONSTRAINT %s %s", d.Quote(d.checkName(table, current.Name)), d.enumCheck(current)))
	}
	return statements
}

func (d *sqlserverDialect) PrimaryKeyClause(table string, columns []string) string {
	return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", d.Quote(d.primaryKeyName(table)), d.quoteList(columns))
}

func (d *sqlserverDialect) primaryKeyName(table string) string {
	return schema.Identifier(table, "primary", nil, d.types.MaxIdentifierLength)
}

func (d *sqlserverDialect) DropPrimaryKey(table string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Quote(table), d.Quote(d.primaryKeyName(table))), nil
}

func (d *sqlserverDialect) DropIndex(table string, idx *schema.Index) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(idx.Name), d.Quote(table))
}

// ForeignKeyClause maps RESTRICT to NO ACTION, the only non cascading rule SQL Server knows.
func (d *sqlserverDialect) ForeignKeyClause(fk *schema.ForeignKey) string {
	clone := fk.Clone()
	if clone.OnDelete == schema.Restrict {
		clone.OnDelete = schema.NoAction
	}
	if clone.OnUpdate == schema.Restrict {
		clone.OnUpdate = schema.NoAction
	}
	return d.base.ForeignKeyClause(clone)
}

func (d *sqlserverDialect) AddForeignKey(table string, fk *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), d.ForeignKeyClause(fk))
}

func (d *sqlserverDialect) Savepoint(name string) string {
	return "SAVE TRANSACTION " + d.Quote(name)
}

// ReleaseSavepoint is empty: SQL Server savepoints are released with the transaction.
func (d *sqlserverDialect) ReleaseSavepoint(string) string {
	return ""
}

func (d *sqlserverDialect) RollbackToSavepoint(name string) string {
	return "ROLLBACK TRANSACTION " + d.Quote(name)
}

func (d *sqlserverDialect) AddPrimaryKey(table string, columns []string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), d.PrimaryKeyClause(table, columns))
}
