package schema

import "strings"

// Operation is a bit mask selecting which kinds of changes a save applies.
type Operation uint

const (
	DropForeignKeys Operation = 1 << iota
	CreateForeignKeys
	DropIndexes
	CreateIndexes
	DropColumns
	CreateColumns
	AlterColumns
	DoRename
	DoDrop

	DoAll = DropForeignKeys | CreateForeignKeys | DropIndexes | CreateIndexes |
		DropColumns | CreateColumns | AlterColumns | DoRename | DoDrop
)

var operationNames = []struct {
	op   Operation
	name string
}{
	{DropForeignKeys, "drop-foreign-keys"},
	{CreateForeignKeys, "create-foreign-keys"},
	{DropIndexes, "drop-indexes"},
	{CreateIndexes, "create-indexes"},
	{DropColumns, "drop-columns"},
	{CreateColumns, "create-columns"},
	{AlterColumns, "alter-columns"},
	{DoRename, "rename"},
	{DoDrop, "drop"},
}

// Has reports whether every bit of flag is set.
func (o Operation) Has(flag Operation) bool {
	return o&flag == flag
}

func (o Operation) String() string {
	if o == DoAll {
		return "all"
	}
	var names []string
	for _, n := range operationNames {
		if o.Has(n.op) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
