package database

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/koba/db-sync/internal/schema"
)

// sqliteInspector reads SQLite tables through the pragma table functions
type sqliteInspector struct {
	driver *Driver
}

type sqliteColumn struct {
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull bool           `db:"not_null"`
	Default sql.NullString `db:"dflt_value"`
	PK      int            `db:"pk"`
}

func (s *sqliteInspector) tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`
	var tables []string
	if err := s.driver.selectContext(ctx, &tables, query); err != nil {
		return nil, err
	}
	return tables, nil
}

// definition returns the CREATE TABLE statement SQLite keeps for the table.
func (s *sqliteInspector) definition(ctx context.Context, table string) (string, error) {
	var definitions []string
	query := `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`
	if err := s.driver.selectContext(ctx, &definitions, query, table); err != nil {
		return "", err
	}
	if len(definitions) == 0 {
		return "", nil
	}
	return definitions[0], nil
}

func (s *sqliteInspector) tableInfo(ctx context.Context, table string) ([]sqliteColumn, error) {
	query := `SELECT name, type, "notnull" AS not_null, dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`
	var rows []sqliteColumn
	if err := s.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return rows, nil
}

var sqliteInCheck = regexp.MustCompile(`(?i)CHECK\s*\(\s*["` + "`" + `\[]?(\w+)["` + "`" + `\]]?\s+IN\s*\(([^)]*)\)\s*\)`)

func (s *sqliteInspector) columns(ctx context.Context, table string) ([]*schema.Column, error) {
	rows, err := s.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	definition, err := s.definition(ctx, table)
	if err != nil {
		return nil, err
	}
	enums := map[string][]string{}
	for _, match := range sqliteInCheck.FindAllStringSubmatch(definition, -1) {
		enums[match[1]] = quotedValues(match[2])
	}

	primaries := 0
	for _, row := range rows {
		if row.PK > 0 {
			primaries++
		}
	}

	columns := make([]*schema.Column, 0, len(rows))
	for _, row := range rows {
		col := schema.NewColumn(s.driver.Types(), row.Name)
		col.Type, col.Size, col.Precision, col.Scale = parseNativeType(row.Type)
		col.Nullable = !row.NotNull
		// a single INTEGER primary key aliases the rowid
		col.IsPrimary = row.PK > 0 && primaries == 1 && col.Type == "integer"
		if row.Default.Valid {
			col.Default = normalizeDefault(row.Default.String)
		}
		col.EnumValues = enums[row.Name]
		columns = append(columns, col)
	}
	return columns, nil
}

func (s *sqliteInspector) primaryKeys(ctx context.Context, table string) ([]string, error) {
	query := `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`
	var columns []string
	if err := s.driver.selectContext(ctx, &columns, query, table); err != nil {
		return nil, err
	}
	return columns, nil
}

func (s *sqliteInspector) indexes(ctx context.Context, table string) ([]*schema.Index, error) {
	query := `
		SELECT l.name AS index_name, x.name AS column_name, l."unique" AS is_unique, x."desc" AS is_descending
		FROM pragma_index_list(?) AS l
		JOIN pragma_index_xinfo(l.name) AS x
		WHERE l.origin <> 'pk' AND x.key = 1 AND l.name NOT LIKE 'sqlite_autoindex_%'
		ORDER BY l.name, x.seqno
	`
	var rows []indexRow
	if err := s.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

var sqliteForeignKey = regexp.MustCompile(`(?i)CONSTRAINT\s+["` + "`" + `\[]?([^"` + "`" + `\]\s]+)["` + "`" + `\]]?\s+FOREIGN\s+KEY\s*\(([^)]*)\)`)

// foreignKeys reads the keys from pragma_foreign_key_list, which does not report constraint
// names. Names are recovered from the CONSTRAINT clauses of the table definition.
func (s *sqliteInspector) foreignKeys(ctx context.Context, table string) ([]*schema.ForeignKey, error) {
	query := `
		SELECT id, "from" AS column_name, "table" AS foreign_table, "to" AS foreign_column, on_delete, on_update
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq
	`
	var rows []struct {
		ID int `db:"id"`
		foreignKeyRow
	}
	if err := s.driver.selectContext(ctx, &rows, query, table); err != nil {
		return nil, err
	}

	definition, err := s.definition(ctx, table)
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	for _, match := range sqliteForeignKey.FindAllStringSubmatch(definition, -1) {
		names[strings.Join(splitIdentifiers(match[2]), ",")] = match[1]
	}

	columns := map[int][]string{}
	for _, row := range rows {
		columns[row.ID] = append(columns[row.ID], row.Column)
	}

	grouped := make([]foreignKeyRow, 0, len(rows))
	for _, row := range rows {
		name, ok := names[strings.Join(columns[row.ID], ",")]
		if !ok {
			name = schema.Identifier(table, "foreign", columns[row.ID], s.driver.Types().MaxIdentifierLength)
		}
		row.foreignKeyRow.Name = name
		grouped = append(grouped, row.foreignKeyRow)
	}
	return groupForeignKeys(grouped), nil
}

func splitIdentifiers(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		names = append(names, strings.Trim(strings.TrimSpace(part), "\"`[]"))
	}
	return names
}
