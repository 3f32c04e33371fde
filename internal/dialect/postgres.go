package dialect

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/koba/db-sync/internal/schema"
)

type postgresDialect struct {
	*base
}

// Postgres returns the PostgreSQL dialect.
func Postgres() Dialect {
	d := &postgresDialect{}
	d.base = &base{
		name:        "postgres",
		driverName:  "postgres",
		types:       postgresTypes(),
		quotePart:   pq.QuoteIdentifier,
		quoteString: pq.QuoteLiteral,
		boolLiteral: func(v bool) string {
			if v {
				return "TRUE"
			}
			return "FALSE"
		},
	}
	d.define = d.columnDefinition
	return d
}

func postgresTypes() *schema.TypeRegistry {
	return &schema.TypeRegistry{
		Dialect: "postgres",
		Mapping: map[string]schema.TypeSpec{
			schema.TypePrimary:      {Type: "serial", AutoIncrement: yes, Nullable: no},
			schema.TypeBigPrimary:   {Type: "bigserial", AutoIncrement: yes, Nullable: no},
			schema.TypeEnum:         spec("character varying"),
			schema.TypeBoolean:      spec("boolean"),
			schema.TypeInteger:      spec("integer"),
			schema.TypeTinyInteger:  spec("smallint"),
			schema.TypeSmallInteger: spec("smallint"),
			schema.TypeBigInteger:   spec("bigint"),
			schema.TypeString:       sized("character varying", 255),
			schema.TypeText:         spec("text"),
			schema.TypeTinyText:     spec("text"),
			schema.TypeLongText:     spec("text"),
			schema.TypeDouble:       spec("double precision"),
			schema.TypeFloat:        spec("real"),
			schema.TypeDecimal:      {Type: "numeric", Precision: schema.Int(10), Scale: schema.Int(0)},
			schema.TypeDatetime:     {Type: "timestamp", WithTimezone: no},
			schema.TypeDate:         spec("date"),
			schema.TypeTime:         {Type: "time", WithTimezone: no},
			schema.TypeTimestamp:    {Type: "timestamp", WithTimezone: no},
			schema.TypeTimestampTZ:  {Type: "timestamp", WithTimezone: yes},
			schema.TypeBinary:       spec("bytea"),
			schema.TypeTinyBinary:   spec("bytea"),
			schema.TypeLongBinary:   spec("bytea"),
			schema.TypeJSON:         spec("json"),
			schema.TypeUUID:         spec("uuid"),
		},
		// numeric is matched before numrange and enum values before character varying:
		// reordering these rules changes the derived type of reloaded columns.
		Reverse: []schema.ReverseRule{
			rule(schema.TypePrimary, schema.TypeSpec{Type: "serial", AutoIncrement: yes}),
			rule(schema.TypeBigPrimary, schema.TypeSpec{Type: "bigserial", AutoIncrement: yes}),
			rule(schema.TypeEnum, schema.TypeSpec{Type: "character varying", Enum: yes}),
			rule(schema.TypeBoolean, spec("boolean"), spec("bool")),
			rule(schema.TypeInteger, spec("int"), spec("integer"), spec("int4"), spec("int4range")),
			rule(schema.TypeSmallInteger, spec("smallint"), spec("int2")),
			rule(schema.TypeBigInteger, spec("bigint"), spec("int8"), spec("int8range")),
			rule(schema.TypeString, spec("character varying"), spec("character"), spec("varchar")),
			rule(schema.TypeText, spec("text")),
			rule(schema.TypeDouble, spec("double precision")),
			rule(schema.TypeFloat, spec("real"), spec("money")),
			rule(schema.TypeDecimal, spec("numeric"), spec("numrange")),
			rule(schema.TypeTimestampTZ, schema.TypeSpec{Type: "timestamp", WithTimezone: yes}),
			rule(schema.TypeTimestamp, schema.TypeSpec{Type: "timestamp", WithTimezone: no}, spec("tsrange")),
			rule(schema.TypeDate, spec("date"), spec("daterange")),
			rule(schema.TypeTime, spec("time")),
			rule(schema.TypeBinary, spec("bytea")),
			rule(schema.TypeJSON, spec("json"), spec("jsonb")),
			rule(schema.TypeUUID, spec("uuid")),
		},
		MaxIdentifierLength: 63,
	}
}

// ColumnType renders serial types as their integer type, the form accepted by ALTER COLUMN TYPE.
func (d *postgresDialect) ColumnType(c *schema.Column) string {
	switch strings.ToLower(c.Type) {
	case "serial":
		return "integer"
	case "bigserial":
		return "bigint"
	case "timestamp", "time":
		if c.WithTimezone {
			return c.Type + " with time zone"
		}
		return c.Type + " without time zone"
	}
	return sizedType(c.Type, c)
}

func (d *postgresDialect) checkName(table, column string) string {
	return schema.Identifier(table, column, []string{"check"}, d.types.MaxIdentifierLength)
}

func (d *postgresDialect) columnDefinition(table string, c *schema.Column) string {
	var sb strings.Builder
	sb.WriteString(d.Quote(c.Name))
	sb.WriteString(" ")
	if c.AutoIncrement && strings.HasSuffix(strings.ToLower(c.Type), "serial") {
		sb.WriteString(c.Type)
	} else {
		sb.WriteString(d.ColumnType(c))
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	sb.WriteString(d.defaultClause(c))
	if len(c.EnumValues) > 0 {
		sb.WriteString(fmt.Sprintf(" CONSTRAINT %s %s", d.Quote(d.checkName(table, c.Name)), d.enumCheck(c)))
	}
	return sb.String()
}

func (d *postgresDialect) AlterColumn(table string, initial, current *schema.Column) []string {
	prefix := fmt.Sprintf("ALTER TABLE %s ", d.Quote(table))
	column := d.Quote(current.Name)

	var statements []string
	if typ := d.ColumnType(current); typ != d.ColumnType(initial) {
		statements = append(statements, prefix+fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", column, typ, column, typ))
	}
	if initial.Nullable != current.Nullable {
		if current.Nullable {
			statements = append(statements, prefix+fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", column))
		} else {
			statements = append(statements, prefix+fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", column))
		}
	}
	if !current.AutoIncrement && initial.CastedDefault() != current.CastedDefault() {
		if current.Default == nil {
			statements = append(statements, prefix+fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", column))
		} else {
			statements = append(statements, prefix+fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", column, d.Literal(current.CastedDefault())))
		}
	}
	if strings.Join(initial.EnumValues, "\x00") != strings.Join(current.EnumValues, "\x00") || initial.Name != current.Name {
		if len(initial.EnumValues) > 0 {
			statements = append(statements, prefix+fmt.Sprintf("DROP CONSTRAINT IF EXISTS %s", d.Quote(d.checkName(table, initial.Name))))
		}
		if len(current.EnumValues) > 0 {
			statements = append(statements, prefix+fmt.Sprintf("ADD CONSTRAINT %s %s", d.Quote(d.checkName(table, current.Name)), d.enumCheck(current)))
		}
	}
	return statements
}

func (d *postgresDialect) PrimaryKeyClause(table string, columns []string) string {
	return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", d.Quote(d.primaryKeyName(table)), d.quoteList(columns))
}

func (d *postgresDialect) primaryKeyName(table string) string {
	name := table
	if n := strings.LastIndex(table, "."); n >= 0 {
		name = table[n+1:]
	}
	return name + "_pkey"
}

func (d *postgresDialect) DropPrimaryKey(table string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Quote(table), d.Quote(d.primaryKeyName(table))), nil
}

func (d *postgresDialect) AddPrimaryKey(table string, columns []string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), d.PrimaryKeyClause(table, columns))
}
