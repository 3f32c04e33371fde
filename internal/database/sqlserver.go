package database

import (
	"context"
	"database/sql"
	"regexp"
	"slices"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

// sqlserverInspector reads SQL Server tables of the default schema
type sqlserverInspector struct {
	driver *Driver
}

type sqlserverColumn struct {
	Name      string         `db:"column_name"`
	DataType  string         `db:"data_type"`
	Nullable  string         `db:"is_nullable"`
	Default   sql.NullString `db:"column_default"`
	Length    sql.NullInt64  `db:"character_maximum_length"`
	Precision sql.NullInt64  `db:"numeric_precision"`
	Scale     sql.NullInt64  `db:"numeric_scale"`
	Identity  bool           `db:"is_identity"`
}

func (s *sqlserverInspector) tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME()
		ORDER BY TABLE_NAME
	`
	var tables []string
	if err := s.driver.selectContext(ctx, &tables, query); err != nil {
		return nil, err
	}
	return tables, nil
}

func (s *sqlserverInspector) columns(ctx context.Context, table string) ([]*schema.Column, error) {
	query := `
		SELECT
			COLUMN_NAME AS column_name,
			DATA_TYPE AS data_type,
			IS_NULLABLE AS is_nullable,
			COLUMN_DEFAULT AS column_default,
			CHARACTER_MAXIMUM_LENGTH AS character_maximum_length,
			CAST(NUMERIC_PRECISION AS int) AS numeric_precision,
			NUMERIC_SCALE AS numeric_scale,
			CAST(COLUMNPROPERTY(OBJECT_ID(TABLE_SCHEMA + '.' + TABLE_NAME), COLUMN_NAME, 'IsIdentity') AS bit) AS is_identity
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	var rows []sqlserverColumn
	if err := s.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}

	enums, err := s.enumChecks(ctx, table)
	if err != nil {
		return nil, err
	}

	columns := make([]*schema.Column, 0, len(rows))
	for _, row := range rows {
		col := schema.NewColumn(s.driver.Types(), row.Name)
		col.Type = strings.ToLower(row.DataType)
		col.Nullable = row.Nullable == "YES"
		col.AutoIncrement = row.Identity

		switch col.Type {
		case "varchar", "nvarchar", "char", "nchar", "varbinary", "binary":
			// -1 is reported for (max)
			col.Size = max(0, int(row.Length.Int64))
		case "decimal", "numeric":
			col.Precision, col.Scale = int(row.Precision.Int64), int(row.Scale.Int64)
		case "datetimeoffset":
			col.WithTimezone = true
		}

		if row.Default.Valid && !col.AutoIncrement {
			col.Default = normalizeDefault(row.Default.String)
		}
		col.EnumValues = enums[row.Name]
		columns = append(columns, col)
	}
	return columns, nil
}

var sqlserverEquals = regexp.MustCompile(`\[(\w+)\]\s*=\s*'`)

// enumChecks maps columns to the values of their CHECK constraints. SQL Server stores
// "c IN ('a','b')" as "([c]='b' OR [c]='a')", the values are reversed back.
func (s *sqlserverInspector) enumChecks(ctx context.Context, table string) (map[string][]string, error) {
	query := `
		SELECT cc.definition
		FROM sys.check_constraints cc
		WHERE cc.parent_object_id = OBJECT_ID(?)
		ORDER BY cc.name
	`
	var definitions []string
	if err := s.driver.selectContext(ctx, &definitions, query, table); err != nil {
		return nil, err
	}

	enums := map[string][]string{}
	for _, def := range definitions {
		match := sqlserverEquals.FindStringSubmatch(def)
		if match == nil || strings.Contains(strings.ToUpper(def), " AND ") {
			continue
		}
		values := quotedValues(def)
		slices.Reverse(values)
		enums[match[1]] = values
	}
	return enums, nil
}

func (s *sqlserverInspector) primaryKeys(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT c.name
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.object_id = OBJECT_ID(?) AND i.is_primary_key = 1
		ORDER BY ic.key_ordinal
	`
	var columns []string
	if err := s.driver.selectContext(ctx, &columns, query, table); err != nil {
		return nil, err
	}
	return columns, nil
}

func (s *sqlserverInspector) indexes(ctx context.Context, table string) ([]*schema.Index, error) {
	query := `
		SELECT
			i.name AS index_name,
			c.name AS column_name,
			i.is_unique AS is_unique,
			ic.is_descending_key AS is_descending
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.object_id = OBJECT_ID(?) AND i.is_primary_key = 0 AND i.type > 0
		ORDER BY i.name, ic.key_ordinal
	`
	var rows []indexRow
	if err := s.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

func (s *sqlserverInspector) foreignKeys(ctx context.Context, table string) ([]*schema.ForeignKey, error) {
	query := `
		SELECT
			fk.name AS constraint_name,
			pc.name AS column_name,
			OBJECT_NAME(fk.referenced_object_id) AS foreign_table,
			rc.name AS foreign_column,
			REPLACE(fk.delete_referential_action_desc, '_', ' ') AS on_delete,
			REPLACE(fk.update_referential_action_desc, '_', ' ') AS on_update
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE fk.parent_object_id = OBJECT_ID(?)
		ORDER BY fk.name, fkc.constraint_column_id
	`
	var rows []foreignKeyRow
	if err := s.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return groupForeignKeys(rows), nil
}
