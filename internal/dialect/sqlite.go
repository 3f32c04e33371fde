package dialect

import (
	"fmt"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

type sqliteDialect struct {
	*base
}

// SQLite returns the SQLite dialect. SQLite cannot alter columns or constraints in place,
// tables are rebuilt instead.
func SQLite() Dialect {
	d := &sqliteDialect{}
	d.base = &base{
		name:        "sqlite",
		driverName:  "sqlite",
		types:       sqliteTypes(),
		quotePart:   quoteWith(`"`),
		quoteString: quoteWith("'"),
		boolLiteral: numericBool,
	}
	d.define = d.columnDefinition
	return d
}

func sqliteTypes() *schema.TypeRegistry {
	return &schema.TypeRegistry{
		Dialect: "sqlite",
		Mapping: map[string]schema.TypeSpec{
			schema.TypePrimary:      {Type: "integer", Primary: yes, Nullable: no},
			schema.TypeBigPrimary:   {Type: "integer", Primary: yes, Nullable: no},
			schema.TypeEnum:         spec("varchar"),
			schema.TypeBoolean:      spec("boolean"),
			schema.TypeInteger:      spec("integer"),
			schema.TypeTinyInteger:  spec("tinyint"),
			schema.TypeSmallInteger: spec("smallint"),
			schema.TypeBigInteger:   spec("bigint"),
			schema.TypeString:       sized("varchar", 255),
			schema.TypeText:         spec("text"),
			schema.TypeTinyText:     spec("text"),
			schema.TypeLongText:     spec("text"),
			schema.TypeDouble:       spec("double"),
			schema.TypeFloat:        spec("real"),
			schema.TypeDecimal:      {Type: "numeric", Precision: schema.Int(10), Scale: schema.Int(0)},
			schema.TypeDatetime:     spec("datetime"),
			schema.TypeDate:         spec("date"),
			schema.TypeTime:         spec("time"),
			schema.TypeTimestamp:    spec("timestamp"),
			schema.TypeTimestampTZ:  {Type: "timestamp", WithTimezone: yes},
			schema.TypeBinary:       spec("blob"),
			schema.TypeTinyBinary:   spec("blob"),
			schema.TypeLongBinary:   spec("blob"),
			schema.TypeJSON:         spec("text"),
			schema.TypeUUID:         sized("varchar", 36),
		},
		Reverse: []schema.ReverseRule{
			rule(schema.TypePrimary, schema.TypeSpec{Type: "integer", Primary: yes}),
			rule(schema.TypeEnum, schema.TypeSpec{Type: "varchar", Enum: yes}),
			rule(schema.TypeBoolean, spec("boolean")),
			rule(schema.TypeInteger, spec("int"), spec("integer"), spec("mediumint")),
			rule(schema.TypeTinyInteger, spec("tinyint")),
			rule(schema.TypeSmallInteger, spec("smallint")),
			rule(schema.TypeBigInteger, spec("bigint")),
			rule(schema.TypeUUID, sized("varchar", 36)),
			rule(schema.TypeString, spec("varchar"), spec("char")),
			rule(schema.TypeText, spec("text"), spec("string")),
			rule(schema.TypeDouble, spec("double")),
			rule(schema.TypeFloat, spec("real"), spec("float")),
			rule(schema.TypeDecimal, spec("numeric"), spec("decimal")),
			rule(schema.TypeDatetime, spec("datetime")),
			rule(schema.TypeDate, spec("date")),
			rule(schema.TypeTime, spec("time")),
			rule(schema.TypeTimestamp, spec("timestamp")),
			rule(schema.TypeBinary, spec("blob")),
			rule(schema.TypeJSON, spec("json")),
		},
		Exclude:             []schema.Field{schema.FieldWithTimezone},
		MaxIdentifierLength: 64,
	}
}

func (d *sqliteDialect) columnDefinition(_ string, c *schema.Column) string {
	var sb strings.Builder
	sb.WriteString(d.Quote(c.Name))
	sb.WriteString(" ")
	sb.WriteString(d.ColumnType(c))
	if c.IsPrimary {
		sb.WriteString(" PRIMARY KEY AUTOINCREMENT")
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	sb.WriteString(d.defaultClause(c))
	if len(c.EnumValues) > 0 {
		sb.WriteString(" ")
		sb.WriteString(d.enumCheck(c))
	}
	return sb.String()
}

func (d *sqliteDialect) SupportsAlter() bool {
	return false
}

// AlterColumn returns nothing, altered columns are applied by rebuilding the table.
func (d *sqliteDialect) AlterColumn(string, *schema.Column, *schema.Column) []string {
	return nil
}

func (d *sqliteDialect) DropPrimaryKey(table string) (string, error) {
	return "", fmt.Errorf("sqlite cannot drop the primary key of %s in place", table)
}

func (d *sqliteDialect) CreateIndex(table string, idx *schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", unique, d.Quote(idx.Name), d.Quote(table), d.indexColumns(idx))
}

func (d *sqliteDialect) DropIndex(_ string, idx *schema.Index) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", d.Quote(idx.Name))
}

func (d *sqliteDialect) Truncate(table string) string {
	return "DELETE FROM " + d.Quote(table)
}
