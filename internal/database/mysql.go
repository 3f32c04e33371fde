package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

// mysqlInspector reads MySQL tables from information_schema
type mysqlInspector struct {
	driver *Driver
}

type mysqlColumn struct {
	Name       string         `db:"column_name"`
	DataType   string         `db:"data_type"`
	ColumnType string         `db:"column_type"`
	Nullable   string         `db:"is_nullable"`
	Default    sql.NullString `db:"column_default"`
	Extra      string         `db:"extra"`
	Length     sql.NullInt64  `db:"character_maximum_length"`
	Precision  sql.NullInt64  `db:"numeric_precision"`
	Scale      sql.NullInt64  `db:"numeric_scale"`
}

// tables retrieves all table names in the current database
func (m *mysqlInspector) tables(ctx context.Context) ([]string, error) {
	var tables []string
	query := `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`
	if err := m.driver.selectContext(ctx, &tables, query); err != nil {
		return nil, err
	}
	return tables, nil
}

func (m *mysqlInspector) columns(ctx context.Context, table string) ([]*schema.Column, error) {
	query := `
		SELECT
			COLUMN_NAME AS column_name,
			DATA_TYPE AS data_type,
			COLUMN_TYPE AS column_type,
			IS_NULLABLE AS is_nullable,
			COLUMN_DEFAULT AS column_default,
			EXTRA AS extra,
			CHARACTER_MAXIMUM_LENGTH AS character_maximum_length,
			NUMERIC_PRECISION AS numeric_precision,
			NUMERIC_SCALE AS numeric_scale
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	var rows []mysqlColumn
	if err := m.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}

	columns := make([]*schema.Column, 0, len(rows))
	for _, row := range rows {
		col := schema.NewColumn(m.driver.Types(), row.Name)
		col.Type = strings.ToLower(row.DataType)
		col.Nullable = row.Nullable == "YES"
		col.AutoIncrement = strings.Contains(strings.ToLower(row.Extra), "auto_increment")

		switch col.Type {
		case "enum":
			col.EnumValues = quotedValues(row.ColumnType)
		case "varchar", "char", "binary", "varbinary":
			col.Size = int(row.Length.Int64)
		case "decimal":
			col.Precision, col.Scale = int(row.Precision.Int64), int(row.Scale.Int64)
		case "tinyint":
			// only the boolean display width survives in MySQL 8
			if _, size, _, _ := parseNativeType(strings.TrimSuffix(row.ColumnType, " unsigned")); size == 1 {
				col.Size = 1
			}
		}

		if row.Default.Valid && !col.AutoIncrement {
			col.Default = mysqlDefault(row.Default.String, row.Extra)
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// mysqlDefault converts COLUMN_DEFAULT, which MySQL reports unquoted and MariaDB quoted.
func mysqlDefault(value, extra string) any {
	upper := strings.ToUpper(value)
	switch {
	case strings.Contains(strings.ToUpper(extra), "DEFAULT_GENERATED"),
		strings.HasPrefix(upper, "CURRENT_TIMESTAMP"),
		upper == "NOW()":
		return schema.Fragment(value)
	case upper == "NULL":
		return nil
	case len(value) > 1 && value[0] == '\'' && value[len(value)-1] == '\'':
		return normalizeDefault(value)
	}
	return value
}

func (m *mysqlInspector) primaryKeys(ctx context.Context, table string) ([]string, error) {
	var columns []string
	query := `
		SELECT COLUMN_NAME
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME = 'PRIMARY'
		ORDER BY SEQ_IN_INDEX
	`
	if err := m.driver.selectContext(ctx, &columns, query, table); err != nil {
		return nil, err
	}
	return columns, nil
}

func (m *mysqlInspector) indexes(ctx context.Context, table string) ([]*schema.Index, error) {
	query := `
		SELECT
			INDEX_NAME AS index_name,
			COLUMN_NAME AS column_name,
			NON_UNIQUE = 0 AS is_unique,
			COALESCE(COLLATION, 'A') = 'D' AS is_descending
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME <> 'PRIMARY'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`
	var rows []indexRow
	if err := m.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

func (m *mysqlInspector) foreignKeys(ctx context.Context, table string) ([]*schema.ForeignKey, error) {
	query := `
		SELECT
			k.CONSTRAINT_NAME AS constraint_name,
			k.COLUMN_NAME AS column_name,
			k.REFERENCED_TABLE_NAME AS foreign_table,
			k.REFERENCED_COLUMN_NAME AS foreign_column,
			r.DELETE_RULE AS on_delete,
			r.UPDATE_RULE AS on_update
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.REFERENTIAL_CONSTRAINTS r
			ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
			AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
			AND r.TABLE_NAME = k.TABLE_NAME
		WHERE k.TABLE_SCHEMA = DATABASE() AND k.TABLE_NAME = ? AND k.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION
	`
	var rows []foreignKeyRow
	if err := m.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return groupForeignKeys(rows), nil
}
