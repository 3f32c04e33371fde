package diff

import (
	"slices"

	"github.com/koba/db-sync/internal/schema"
)

// Action represents the type of change
type Action string

const (
	ActionAdd    Action = "ADD"
	ActionDrop   Action = "DROP"
	ActionModify Action = "MODIFY"
	ActionRename Action = "RENAME"
)

// SchemaDiff represents schema differences for a table
type SchemaDiff struct {
	TableName string
	// OldName is set when the table is renamed.
	OldName           string
	Action            Action
	OldSchema         *schema.State
	NewSchema         *schema.State
	ColumnChanges     []ColumnChange
	IndexChanges      []IndexChange
	ForeignKeyChanges []ForeignKeyChange
	PrimaryKeyChange  *PrimaryKeyChange
}

// ColumnChange represents a change to a column
type ColumnChange struct {
	ColumnName string
	Action     Action
	OldColumn  *schema.Column
	NewColumn  *schema.Column
}

// IndexChange represents a change to an index
type IndexChange struct {
	IndexName string
	Action    Action
	OldIndex  *schema.Index
	NewIndex  *schema.Index
}

// ForeignKeyChange represents a change to a foreign key
type ForeignKeyChange struct {
	FKName        string
	Action        Action
	OldForeignKey *schema.ForeignKey
	NewForeignKey *schema.ForeignKey
}

// PrimaryKeyChange holds the primary key columns before and after.
type PrimaryKeyChange struct {
	Old []string
	New []string
}

// compareSchemas lists the differences between the old and new state of a table, or nil
// when there are none.
func compareSchemas(old, new *schema.State) *SchemaDiff {
	cmp := schema.NewComparator(old, new)
	if !cmp.HasChanges() {
		return nil
	}

	diff := &SchemaDiff{
		TableName: new.Name(),
		Action:    ActionModify,
		OldSchema: old,
		NewSchema: new,
	}
	if cmp.IsRenamed() {
		diff.OldName = old.Name()
	}

	for _, c := range cmp.AddedColumns() {
		diff.ColumnChanges = append(diff.ColumnChanges, ColumnChange{ColumnName: c.Name, Action: ActionAdd, NewColumn: c})
	}
	for _, c := range cmp.DroppedColumns() {
		diff.ColumnChanges = append(diff.ColumnChanges, ColumnChange{ColumnName: c.Name, Action: ActionDrop, OldColumn: c})
	}
	for _, pair := range cmp.AlteredColumns() {
		action := ActionModify
		if pair.Current.Name != pair.Initial.Name && pair.Current.Compare(renamed(pair.Initial, pair.Current.Name)) {
			action = ActionRename
		}
		diff.ColumnChanges = append(diff.ColumnChanges, ColumnChange{
			ColumnName: pair.Current.Name,
			Action:     action,
			OldColumn:  pair.Initial,
			NewColumn:  pair.Current,
		})
	}

	for _, i := range cmp.AddedIndexes() {
		diff.IndexChanges = append(diff.IndexChanges, IndexChange{IndexName: i.Name, Action: ActionAdd, NewIndex: i})
	}
	for _, i := range cmp.DroppedIndexes() {
		diff.IndexChanges = append(diff.IndexChanges, IndexChange{IndexName: i.Name, Action: ActionDrop, OldIndex: i})
	}
	for _, pair := range cmp.AlteredIndexes() {
		diff.IndexChanges = append(diff.IndexChanges, IndexChange{
			IndexName: pair.Current.Name,
			Action:    ActionModify,
			OldIndex:  pair.Initial,
			NewIndex:  pair.Current,
		})
	}

	for _, f := range cmp.AddedForeignKeys() {
		diff.ForeignKeyChanges = append(diff.ForeignKeyChanges, ForeignKeyChange{FKName: f.Name, Action: ActionAdd, NewForeignKey: f})
	}
	for _, f := range cmp.DroppedForeignKeys() {
		diff.ForeignKeyChanges = append(diff.ForeignKeyChanges, ForeignKeyChange{FKName: f.Name, Action: ActionDrop, OldForeignKey: f})
	}
	for _, pair := range cmp.AlteredForeignKeys() {
		diff.ForeignKeyChanges = append(diff.ForeignKeyChanges, ForeignKeyChange{
			FKName:        pair.Current.Name,
			Action:        ActionModify,
			OldForeignKey: pair.Initial,
			NewForeignKey: pair.Current,
		})
	}

	if cmp.IsPrimaryChanged() {
		diff.PrimaryKeyChange = &PrimaryKeyChange{Old: old.PrimaryKeys(), New: new.PrimaryKeys()}
	}

	return diff
}

func renamed(c *schema.Column, name string) *schema.Column {
	clone := c.Clone()
	clone.Name = name
	return clone
}

// IsEmpty reports whether the diff only carries a table rename.
func (d *SchemaDiff) IsEmpty() bool {
	return d.Action == ActionModify &&
		len(d.ColumnChanges) == 0 &&
		len(d.IndexChanges) == 0 &&
		len(d.ForeignKeyChanges) == 0 &&
		d.PrimaryKeyChange == nil
}

// Columns returns the names of the changed columns with the given action.
func (d *SchemaDiff) Columns(action Action) []string {
	var names []string
	for _, change := range d.ColumnChanges {
		if change.Action == action {
			names = append(names, change.ColumnName)
		}
	}
	slices.Sort(names)
	return names
}
