package database

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

// inspector reads the structure of tables from the system catalog of one dialect.
type inspector interface {
	tables(ctx context.Context) ([]string, error)
	columns(ctx context.Context, table string) ([]*schema.Column, error)
	primaryKeys(ctx context.Context, table string) ([]string, error)
	indexes(ctx context.Context, table string) ([]*schema.Index, error)
	foreignKeys(ctx context.Context, table string) ([]*schema.ForeignKey, error)
}

func newInspector(d *Driver) inspector {
	switch d.dialect.Name() {
	case "mysql":
		return &mysqlInspector{driver: d}
	case "postgres":
		return &postgresInspector{driver: d}
	case "sqlserver":
		return &sqlserverInspector{driver: d}
	default:
		return &sqliteInspector{driver: d}
	}
}

// indexRow is one column of an index, in index order.
type indexRow struct {
	Name       string `db:"index_name"`
	Column     string `db:"column_name"`
	Unique     bool   `db:"is_unique"`
	Descending bool   `db:"is_descending"`
}

func groupIndexes(rows []indexRow) []*schema.Index {
	var indexes []*schema.Index
	byName := map[string]*schema.Index{}
	for _, row := range rows {
		idx, ok := byName[row.Name]
		if !ok {
			idx = &schema.Index{Name: row.Name, Unique: row.Unique}
			byName[row.Name] = idx
			indexes = append(indexes, idx)
		}
		idx.Columns = append(idx.Columns, row.Column)
		if row.Descending {
			if idx.Sort == nil {
				idx.Sort = map[string]string{}
			}
			idx.Sort[row.Column] = "DESC"
		}
	}
	return indexes
}

// foreignKeyRow is one column pair of a foreign key, in key order.
type foreignKeyRow struct {
	Name          string `db:"constraint_name"`
	Column        string `db:"column_name"`
	ForeignTable  string `db:"foreign_table"`
	ForeignColumn string `db:"foreign_column"`
	OnDelete      string `db:"on_delete"`
	OnUpdate      string `db:"on_update"`
}

func groupForeignKeys(rows []foreignKeyRow) []*schema.ForeignKey {
	var foreignKeys []*schema.ForeignKey
	byName := map[string]*schema.ForeignKey{}
	for _, row := range rows {
		fk, ok := byName[row.Name]
		if !ok {
			fk = schema.NewForeignKey(row.Name).
				SetOnDelete(row.OnDelete).
				SetOnUpdate(row.OnUpdate)
			fk.ForeignTable = row.ForeignTable
			byName[row.Name] = fk
			foreignKeys = append(foreignKeys, fk)
		}
		fk.Columns = append(fk.Columns, row.Column)
		fk.ForeignColumns = append(fk.ForeignColumns, row.ForeignColumn)
	}
	return foreignKeys
}

var (
	quotedValue  = regexp.MustCompile(`'((?:[^']|'')*)'`)
	castedString = regexp.MustCompile(`^'((?:[^']|'')*)'::[\w\s]+(?:\[\])?$`)
	numeric      = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

// quotedValues extracts every single quoted literal of an expression.
func quotedValues(expr string) []string {
	var values []string
	for _, match := range quotedValue.FindAllStringSubmatch(expr, -1) {
		values = append(values, strings.ReplaceAll(match[1], "''", "'"))
	}
	return values
}

// normalizeDefault turns a default expression read from the catalog into the value a
// declaration would use: literals lose their quotes and casts, anything else is a Fragment.
func normalizeDefault(expr string) any {
	expr = strings.TrimSpace(expr)
	for len(expr) > 1 && expr[0] == '(' && expr[len(expr)-1] == ')' {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}

	switch {
	case expr == "" || strings.EqualFold(expr, "NULL") || strings.HasPrefix(strings.ToUpper(expr), "NULL::"):
		return nil
	case castedString.MatchString(expr):
		return strings.ReplaceAll(castedString.FindStringSubmatch(expr)[1], "''", "'")
	case len(expr) > 1 && expr[0] == '\'' && expr[len(expr)-1] == '\'':
		return strings.ReplaceAll(expr[1:len(expr)-1], "''", "'")
	case numeric.MatchString(expr):
		return expr
	case strings.EqualFold(expr, "true"), strings.EqualFold(expr, "false"):
		return strings.ToLower(expr)
	}
	return schema.Fragment(expr)
}

var nativeType = regexp.MustCompile(`^\s*([a-zA-Z][a-zA-Z0-9_ ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*$`)

// parseNativeType splits "numeric(10,2)" into its type, size, precision and scale.
func parseNativeType(declared string) (typ string, size, precision, scale int) {
	match := nativeType.FindStringSubmatch(declared)
	if match == nil {
		return strings.ToLower(strings.TrimSpace(declared)), 0, 0, 0
	}

	typ = strings.ToLower(match[1])
	first, _ := strconv.Atoi(match[2])
	second, _ := strconv.Atoi(match[3])
	switch typ {
	case "numeric", "decimal":
		return typ, 0, first, second
	}
	return typ, first, 0, 0
}
