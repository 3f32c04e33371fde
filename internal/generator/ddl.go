package generator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/schema"
)

// DDLGenerator generates DDL statements
type DDLGenerator struct {
	dialect dialect.Dialect
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator(d dialect.Dialect) *DDLGenerator {
	return &DDLGenerator{dialect: d}
}

// CreateTable generates the CREATE TABLE statement followed by the index statements.
func (g *DDLGenerator) CreateTable(t *schema.Table) []string {
	statements := []string{g.createTable(t.Name(), t)}
	for _, idx := range t.Indexes() {
		statements = append(statements, g.dialect.CreateIndex(t.Name(), idx))
	}
	return statements
}

func (g *DDLGenerator) createTable(name string, t *schema.Table) string {
	var parts []string

	// Column definitions
	inline := false
	for _, c := range t.Columns() {
		parts = append(parts, g.dialect.ColumnDefinition(name, c))
		inline = inline || c.IsPrimary
	}

	// Primary key
	if pks := t.PrimaryKeys(); len(pks) > 0 && !inline {
		parts = append(parts, g.dialect.PrimaryKeyClause(name, pks))
	}

	// Foreign keys
	for _, fk := range t.ForeignKeys() {
		parts = append(parts, g.dialect.ForeignKeyClause(fk))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", g.dialect.Quote(name), strings.Join(parts, ",\n  "))
}

// DropTable generates the DROP TABLE statement.
func (g *DDLGenerator) DropTable(name string) string {
	return "DROP TABLE " + g.dialect.Quote(name)
}

// Sync generates the statements applying the changes of the table selected by op, in the
// order foreign keys, indexes and columns are dropped, then columns, indexes and foreign keys
// are created.
func (g *DDLGenerator) Sync(t *schema.Table, op schema.Operation) ([]string, error) {
	d := g.dialect
	comparator := t.Comparator()
	var statements []string

	table := t.InitialName()
	if op.Has(schema.DoRename) && comparator.IsRenamed() {
		statements = append(statements, d.RenameTable(table, t.Name()))
		table = t.Name()
	}

	// Drop foreign keys first
	if op.Has(schema.DropForeignKeys) {
		for _, fk := range comparator.DroppedForeignKeys() {
			statements = append(statements, d.DropForeignKey(table, fk))
		}
		for _, pair := range comparator.AlteredForeignKeys() {
			statements = append(statements, d.DropForeignKey(table, pair.Initial))
		}
	}

	// Drop indexes
	if op.Has(schema.DropIndexes) {
		for _, idx := range comparator.DroppedIndexes() {
			statements = append(statements, d.DropIndex(table, idx))
		}
		for _, pair := range comparator.AlteredIndexes() {
			statements = append(statements, d.DropIndex(table, pair.Initial))
		}
	}

	if op.Has(schema.DropColumns) {
		for _, c := range comparator.DroppedColumns() {
			statements = append(statements, d.DropColumn(table, c.Name))
		}
	}

	if op.Has(schema.CreateColumns) {
		for _, c := range comparator.AddedColumns() {
			statements = append(statements, d.AddColumn(table, c))
		}
	}

	if op.Has(schema.AlterColumns) {
		for _, pair := range comparator.AlteredColumns() {
			if pair.Initial.Name != pair.Current.Name {
				statements = append(statements, d.RenameColumn(table, pair.Initial.Name, pair.Current.Name))
			}
			if definitionChanged(pair) {
				statements = append(statements, d.AlterColumn(table, pair.Initial, pair.Current)...)
			}
		}

		if primaryChanged(comparator) {
			if len(comparator.Initial().PrimaryKeys()) > 0 {
				stmt, err := d.DropPrimaryKey(table)
				if err != nil {
					return nil, err
				}
				statements = append(statements, stmt)
			}
			if pks := t.PrimaryKeys(); len(pks) > 0 {
				statements = append(statements, d.AddPrimaryKey(table, pks))
			}
		}
	}

	// Add indexes
	if op.Has(schema.CreateIndexes) {
		for _, idx := range comparator.AddedIndexes() {
			statements = append(statements, d.CreateIndex(table, idx))
		}
		for _, pair := range comparator.AlteredIndexes() {
			statements = append(statements, d.CreateIndex(table, pair.Current))
		}
	}

	// Add foreign keys
	if op.Has(schema.CreateForeignKeys) {
		for _, fk := range comparator.AddedForeignKeys() {
			statements = append(statements, d.AddForeignKey(table, fk))
		}
		for _, pair := range comparator.AlteredForeignKeys() {
			statements = append(statements, d.AddForeignKey(table, pair.Current))
		}
	}

	return statements, nil
}

// NeedsRebuild reports whether op selects changes that a dialect without in place ALTER
// support can only apply by rebuilding the table. live lists the columns the table has.
func (g *DDLGenerator) NeedsRebuild(t *schema.Table, op schema.Operation, live []string) bool {
	comparator := t.Comparator()

	if op.Has(schema.DropColumns) {
		for _, c := range comparator.DroppedColumns() {
			if slices.Contains(live, c.Name) {
				return true
			}
		}
	}
	if op.Has(schema.CreateColumns) {
		for _, c := range comparator.AddedColumns() {
			if !slices.Contains(live, c.Name) {
				return true
			}
		}
	}
	if op.Has(schema.AlterColumns) && (len(comparator.AlteredColumns()) > 0 || primaryChanged(comparator)) {
		return true
	}
	if op.Has(schema.DropForeignKeys) && len(comparator.DroppedForeignKeys())+len(comparator.AlteredForeignKeys()) > 0 {
		return true
	}
	if op.Has(schema.CreateForeignKeys) && len(comparator.AddedForeignKeys())+len(comparator.AlteredForeignKeys()) > 0 {
		return true
	}
	return false
}

// Rebuild generates the statements recreating table name with the declared structure:
// create a temporary table, copy the rows of the live columns, drop the original, rename
// the copy and create the indexes again.
func (g *DDLGenerator) Rebuild(t *schema.Table, name string, live []string) []string {
	d := g.dialect
	temp := name + "__rebuild"

	renamed := map[string]string{}
	for _, pair := range t.Comparator().AlteredColumns() {
		renamed[pair.Current.Name] = pair.Initial.Name
	}

	var targets, sources []string
	for _, c := range t.Columns() {
		source := c.Name
		if !slices.Contains(live, source) {
			source = renamed[c.Name]
		}
		if source == "" || !slices.Contains(live, source) {
			continue
		}
		targets = append(targets, d.Quote(c.Name))
		sources = append(sources, d.Quote(source))
	}

	statements := []string{g.createTable(temp, t)}
	if len(targets) > 0 {
		statements = append(statements, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			d.Quote(temp), strings.Join(targets, ", "), strings.Join(sources, ", "), d.Quote(name)))
	}
	statements = append(statements,
		g.DropTable(name),
		d.RenameTable(temp, name),
	)
	for _, idx := range t.Indexes() {
		statements = append(statements, d.CreateIndex(name, idx))
	}
	return statements
}

func definitionChanged(pair schema.ColumnPair) bool {
	renamed := pair.Initial.Clone()
	renamed.Name = pair.Current.Name
	return !renamed.Compare(pair.Current)
}

// primaryChanged compares the primary keys after applying column renames.
func primaryChanged(comparator *schema.Comparator) bool {
	if !comparator.IsPrimaryChanged() {
		return false
	}
	renamed := map[string]string{}
	for _, pair := range comparator.AlteredColumns() {
		renamed[pair.Initial.Name] = pair.Current.Name
	}
	initial := comparator.Initial().PrimaryKeys()
	for n, column := range initial {
		if to, ok := renamed[column]; ok {
			initial[n] = to
		}
	}
	return !slices.Equal(initial, comparator.Current().PrimaryKeys())
}
