package dialect

import (
	"fmt"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

type mysqlDialect struct {
	*base
}

// MySQL returns the MySQL and MariaDB dialect.
func MySQL() Dialect {
	d := &mysqlDialect{}
	d.base = &base{
		name:        "mysql",
		driverName:  "mysql",
		types:       mysqlTypes(),
		quotePart:   quoteWith("`"),
		quoteString: mysqlString,
		boolLiteral: numericBool,
	}
	d.define = d.columnDefinition
	return d
}

func mysqlTypes() *schema.TypeRegistry {
	return &schema.TypeRegistry{
		Dialect: "mysql",
		Mapping: map[string]schema.TypeSpec{
			schema.TypePrimary:      {Type: "int", AutoIncrement: yes, Nullable: no},
			schema.TypeBigPrimary:   {Type: "bigint", AutoIncrement: yes, Nullable: no},
			schema.TypeEnum:         spec("enum"),
			schema.TypeBoolean:      sized("tinyint", 1),
			schema.TypeInteger:      spec("int"),
			schema.TypeTinyInteger:  spec("tinyint"),
			schema.TypeSmallInteger: spec("smallint"),
			schema.TypeBigInteger:   spec("bigint"),
			schema.TypeString:       sized("varchar", 255),
			schema.TypeText:         spec("text"),
			schema.TypeTinyText:     spec("tinytext"),
			schema.TypeLongText:     spec("longtext"),
			schema.TypeDouble:       spec("double"),
			schema.TypeFloat:        spec("float"),
			schema.TypeDecimal:      {Type: "decimal", Precision: schema.Int(10), Scale: schema.Int(0)},
			schema.TypeDatetime:     spec("datetime"),
			schema.TypeDate:         spec("date"),
			schema.TypeTime:         spec("time"),
			schema.TypeTimestamp:    spec("timestamp"),
			schema.TypeTimestampTZ:  spec("timestamp"),
			schema.TypeBinary:       spec("blob"),
			schema.TypeTinyBinary:   spec("tinyblob"),
			schema.TypeLongBinary:   spec("longblob"),
			schema.TypeJSON:         spec("json"),
			schema.TypeUUID:         sized("char", 36),
		},
		Reverse: []schema.ReverseRule{
			rule(schema.TypePrimary, schema.TypeSpec{Type: "int", AutoIncrement: yes}),
			rule(schema.TypeBigPrimary, schema.TypeSpec{Type: "bigint", AutoIncrement: yes}),
			rule(schema.TypeEnum, spec("enum")),
			rule(schema.TypeBoolean, spec("bool"), spec("boolean"), sized("tinyint", 1)),
			rule(schema.TypeInteger, spec("int"), spec("integer"), spec("mediumint")),
			rule(schema.TypeTinyInteger, spec("tinyint")),
			rule(schema.TypeSmallInteger, spec("smallint")),
			rule(schema.TypeBigInteger, spec("bigint")),
			rule(schema.TypeUUID, sized("char", 36)),
			rule(schema.TypeString, spec("varchar"), spec("char")),
			rule(schema.TypeText, spec("text"), spec("mediumtext")),
			rule(schema.TypeTinyText, spec("tinytext")),
			rule(schema.TypeLongText, spec("longtext")),
			rule(schema.TypeDouble, spec("double")),
			rule(schema.TypeFloat, spec("float"), spec("real")),
			rule(schema.TypeDecimal, spec("decimal")),
			rule(schema.TypeDatetime, spec("datetime")),
			rule(schema.TypeDate, spec("date")),
			rule(schema.TypeTime, spec("time")),
			rule(schema.TypeTimestamp, spec("timestamp")),
			rule(schema.TypeBinary, spec("blob"), spec("binary"), spec("varbinary"), spec("mediumblob")),
			rule(schema.TypeTinyBinary, spec("tinyblob")),
			rule(schema.TypeLongBinary, spec("longblob")),
			rule(schema.TypeJSON, spec("json")),
		},
		Exclude:             []schema.Field{schema.FieldWithTimezone},
		MaxIdentifierLength: 64,
	}
}

func mysqlString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `''`).Replace(s) + "'"
}

func (d *mysqlDialect) ColumnType(c *schema.Column) string {
	if strings.EqualFold(c.Type, "enum") {
		values := make([]string, len(c.EnumValues))
		for n, v := range c.EnumValues {
			values[n] = mysqlString(v)
		}
		return fmt.Sprintf("enum(%s)", strings.Join(values, ","))
	}
	return sizedType(c.Type, c)
}

func (d *mysqlDialect) columnDefinition(_ string, c *schema.Column) string {
	var sb strings.Builder
	sb.WriteString(d.Quote(c.Name))
	sb.WriteString(" ")
	sb.WriteString(d.ColumnType(c))
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	sb.WriteString(d.defaultClause(c))
	if c.AutoIncrement {
		sb.WriteString(" AUTO_INCREMENT")
	}
	return sb.String()
}

func (d *mysqlDialect) AlterColumn(table string, _, current *schema.Column) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.Quote(table), d.columnDefinition(table, current))}
}

func (d *mysqlDialect) DropPrimaryKey(table string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", d.Quote(table)), nil
}

func (d *mysqlDialect) DropIndex(table string, idx *schema.Index) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(idx.Name), d.Quote(table))
}

func (d *mysqlDialect) DropForeignKey(table string, fk *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.Quote(table), d.Quote(fk.Name))
}

// TransactionalDDL is false: MySQL commits implicitly around every DDL statement.
func (d *mysqlDialect) TransactionalDDL() bool {
	return false
}
