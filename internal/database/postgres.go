package database

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

// postgresInspector reads PostgreSQL tables of the current schema
type postgresInspector struct {
	driver *Driver
}

type postgresColumn struct {
	Name      string         `db:"column_name"`
	DataType  string         `db:"data_type"`
	Nullable  string         `db:"is_nullable"`
	Default   sql.NullString `db:"column_default"`
	Length    sql.NullInt64  `db:"character_maximum_length"`
	Precision sql.NullInt64  `db:"numeric_precision"`
	Scale     sql.NullInt64  `db:"numeric_scale"`
	Identity  string         `db:"is_identity"`
}

// tables retrieves all table names in the current schema
func (p *postgresInspector) tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	var tables []string
	if err := p.driver.selectContext(ctx, &tables, query); err != nil {
		return nil, err
	}
	return tables, nil
}

func (p *postgresInspector) columns(ctx context.Context, table string) ([]*schema.Column, error) {
	query := `
		SELECT
			column_name,
			data_type,
			is_nullable,
			column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			is_identity
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
		ORDER BY ordinal_position
	`
	var rows []postgresColumn
	if err := p.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}

	enums, err := p.enumChecks(ctx, table)
	if err != nil {
		return nil, err
	}

	columns := make([]*schema.Column, 0, len(rows))
	for _, row := range rows {
		col := schema.NewColumn(p.driver.Types(), row.Name)
		col.Type = row.DataType
		col.Nullable = row.Nullable == "YES"

		switch row.DataType {
		case "timestamp without time zone", "timestamp with time zone", "time without time zone", "time with time zone":
			col.Type = strings.Fields(row.DataType)[0]
			col.WithTimezone = strings.Contains(row.DataType, "with time zone")
		case "character varying", "character":
			col.Size = int(row.Length.Int64)
		case "numeric":
			col.Precision, col.Scale = int(row.Precision.Int64), int(row.Scale.Int64)
		}

		serial := row.Identity == "YES" || (row.Default.Valid && strings.HasPrefix(row.Default.String, "nextval("))
		switch {
		case serial && col.Type == "integer":
			col.Type, col.AutoIncrement = "serial", true
		case serial && col.Type == "bigint":
			col.Type, col.AutoIncrement = "bigserial", true
		case row.Default.Valid:
			col.Default = normalizeDefault(row.Default.String)
		}

		col.EnumValues = enums[row.Name]
		columns = append(columns, col)
	}
	return columns, nil
}

var postgresInCheck = regexp.MustCompile(`^CHECK \(+"?([^"():]+)"?\)?::text = ANY \(+ARRAY\[(.+)\]`)

// enumChecks maps columns to the values allowed by their CHECK (column IN (...)) constraint.
func (p *postgresInspector) enumChecks(ctx context.Context, table string) (map[string][]string, error) {
	query := `
		SELECT pg_get_constraintdef(c.oid)
		FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		WHERE c.contype = 'c' AND t.relname = ? AND pg_table_is_visible(t.oid)
		ORDER BY c.conname
	`
	var definitions []string
	if err := p.driver.selectContext(ctx, &definitions, query, table); err != nil {
		return nil, err
	}

	enums := map[string][]string{}
	for _, def := range definitions {
		if match := postgresInCheck.FindStringSubmatch(def); match != nil {
			enums[match[1]] = quotedValues(match[2])
		}
	}
	return enums, nil
}

func (p *postgresInspector) primaryKeys(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT a.attname
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, n) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE ix.indisprimary AND t.relname = ? AND pg_table_is_visible(t.oid)
		ORDER BY k.n
	`
	var columns []string
	if err := p.driver.selectContext(ctx, &columns, query, table); err != nil {
		return nil, err
	}
	return columns, nil
}

func (p *postgresInspector) indexes(ctx context.Context, table string) ([]*schema.Index, error) {
	query := `
		SELECT
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisunique AS is_unique,
			(ix.indoption[k.n - 1] & 1) = 1 AS is_descending
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, n) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE t.relname = ? AND t.relkind = 'r' AND NOT ix.indisprimary AND pg_table_is_visible(t.oid)
		ORDER BY i.relname, k.n
	`
	var rows []indexRow
	if err := p.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

func (p *postgresInspector) foreignKeys(ctx context.Context, table string) ([]*schema.ForeignKey, error) {
	query := `
		SELECT
			c.conname AS constraint_name,
			a.attname AS column_name,
			rt.relname AS foreign_table,
			ra.attname AS foreign_column,
			CASE c.confdeltype
				WHEN 'r' THEN 'RESTRICT' WHEN 'c' THEN 'CASCADE'
				WHEN 'n' THEN 'SET NULL' WHEN 'd' THEN 'SET DEFAULT'
				ELSE 'NO ACTION' END AS on_delete,
			CASE c.confupdtype
				WHEN 'r' THEN 'RESTRICT' WHEN 'c' THEN 'CASCADE'
				WHEN 'n' THEN 'SET NULL' WHEN 'd' THEN 'SET DEFAULT'
				ELSE 'NO ACTION' END AS on_update
		FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		JOIN pg_class rt ON rt.oid = c.confrelid
		JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(attnum, fattnum, n) ON true
		JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
		JOIN pg_attribute ra ON ra.attrelid = c.confrelid AND ra.attnum = k.fattnum
		WHERE c.contype = 'f' AND t.relname = ? AND pg_table_is_visible(t.oid)
		ORDER BY c.conname, k.n
	`
	var rows []foreignKeyRow
	if err := p.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return groupForeignKeys(rows), nil
}
