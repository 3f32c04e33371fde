package diff

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/koba/db-sync/internal/schema"
	"github.com/koba/db-sync/internal/snapshot"
)

// DiffResult holds the complete comparison result
type DiffResult struct {
	SchemaDiffs []*SchemaDiff
}

// HasChanges reports whether any table differs.
func (r *DiffResult) HasChanges() bool {
	return len(r.SchemaDiffs) > 0
}

// Table returns the diff of the named table, or nil.
func (r *DiffResult) Table(name string) *SchemaDiff {
	for _, d := range r.SchemaDiffs {
		if d.TableName == name {
			return d
		}
	}
	return nil
}

// Compare lists the pending changes of declared table handles against the database.
func Compare(tables []*schema.Table) *DiffResult {
	result := &DiffResult{}
	for _, t := range tables {
		switch {
		case t.Status() == schema.StatusDeclaredDropped:
			result.SchemaDiffs = append(result.SchemaDiffs, &SchemaDiff{
				TableName: t.InitialName(),
				Action:    ActionDrop,
				OldSchema: t.InitialState(),
			})
		case t.Status() == schema.StatusNew:
			result.SchemaDiffs = append(result.SchemaDiffs, &SchemaDiff{
				TableName: t.Name(),
				Action:    ActionAdd,
				NewSchema: t.State(),
			})
		default:
			if d := compareSchemas(t.InitialState(), t.State()); d != nil {
				result.SchemaDiffs = append(result.SchemaDiffs, d)
			}
		}
	}
	return result
}

// CompareSnapshots compares two snapshots and returns the differences
func CompareSnapshots(snap1, snap2 *snapshot.Snapshot) *DiffResult {
	result := &DiffResult{}

	for _, name := range snap2.Names {
		table2 := snap2.Tables[name]
		table1, exists := snap1.Tables[name]
		if !exists {
			// Table added in snapshot2
			result.SchemaDiffs = append(result.SchemaDiffs, &SchemaDiff{
				TableName: name,
				Action:    ActionAdd,
				NewSchema: table2,
			})
			continue
		}

		if d := compareSchemas(table1, table2); d != nil {
			result.SchemaDiffs = append(result.SchemaDiffs, d)
		}
	}

	for _, name := range snap1.Names {
		if _, exists := snap2.Tables[name]; !exists {
			// Table removed in snapshot2
			result.SchemaDiffs = append(result.SchemaDiffs, &SchemaDiff{
				TableName: name,
				Action:    ActionDrop,
				OldSchema: snap1.Tables[name],
			})
		}
	}

	return result
}

var (
	addColor    = color.New(color.FgGreen)
	dropColor   = color.New(color.FgRed)
	modifyColor = color.New(color.FgYellow)
	titleColor  = color.New(color.FgCyan, color.Bold)
)

func actionColor(action Action) *color.Color {
	switch action {
	case ActionAdd:
		return addColor
	case ActionDrop:
		return dropColor
	}
	return modifyColor
}

// Display prints the diff result in a human-readable format
func Display(w io.Writer, result *DiffResult) {
	if !result.HasChanges() {
		fmt.Fprintln(w, "No differences found.")
		return
	}

	titleColor.Fprintln(w, "=== Schema Differences ===")
	fmt.Fprintln(w)
	for _, d := range result.SchemaDiffs {
		displaySchemaDiff(w, d)
	}
}

func displaySchemaDiff(w io.Writer, diff *SchemaDiff) {
	fmt.Fprintf(w, "Table: %s\n", diff.TableName)

	switch diff.Action {
	case ActionAdd:
		addColor.Fprintf(w, "  Action: ADD (new table)\n")
		fmt.Fprintf(w, "  Columns: %d\n", len(diff.NewSchema.Columns()))
	case ActionDrop:
		dropColor.Fprintf(w, "  Action: DROP (removed table)\n")
	case ActionModify:
		modifyColor.Fprintf(w, "  Action: MODIFY\n")
		if diff.OldName != "" {
			fmt.Fprintf(w, "  Renamed from: %s\n", diff.OldName)
		}
		if len(diff.ColumnChanges) > 0 {
			fmt.Fprintf(w, "  Column changes:\n")
			for _, change := range diff.ColumnChanges {
				line := fmt.Sprintf("    - %s: %s", change.ColumnName, change.Action)
				if change.Action == ActionRename {
					line += " from " + change.OldColumn.Name
				}
				actionColor(change.Action).Fprintln(w, line)
			}
		}
		if len(diff.IndexChanges) > 0 {
			fmt.Fprintf(w, "  Index changes:\n")
			for _, change := range diff.IndexChanges {
				actionColor(change.Action).Fprintf(w, "    - %s: %s\n", change.IndexName, change.Action)
			}
		}
		if len(diff.ForeignKeyChanges) > 0 {
			fmt.Fprintf(w, "  Foreign key changes:\n")
			for _, change := range diff.ForeignKeyChanges {
				actionColor(change.Action).Fprintf(w, "    - %s: %s\n", change.FKName, change.Action)
			}
		}
		if pk := diff.PrimaryKeyChange; pk != nil {
			modifyColor.Fprintf(w, "  Primary key: (%s) -> (%s)\n", strings.Join(pk.Old, ", "), strings.Join(pk.New, ", "))
		}
	}
	fmt.Fprintln(w)
}
