package schema

import "slices"

// ColumnPair is a column present in both states with different definitions.
type ColumnPair struct {
	Current *Column
	Initial *Column
}

// IndexPair is an index present in both states with different definitions.
type IndexPair struct {
	Current *Index
	Initial *Index
}

// ForeignKeyPair is a foreign key present in both states with different definitions.
type ForeignKeyPair struct {
	Current *ForeignKey
	Initial *ForeignKey
}

// Comparator computes the difference between the initial and the current state of a table.
// Columns are matched by registration key, indexes by their columns and sort order, and
// foreign keys by their local columns.
type Comparator struct {
	initial *State
	current *State
}

// NewComparator compares current against initial.
func NewComparator(initial, current *State) *Comparator {
	return &Comparator{initial: initial, current: current}
}

func (c *Comparator) Initial() *State { return c.initial }
func (c *Comparator) Current() *State { return c.current }

// HasChanges reports whether the states differ in any way.
func (c *Comparator) HasChanges() bool {
	return c.IsRenamed() ||
		c.IsPrimaryChanged() ||
		len(c.AddedColumns()) > 0 ||
		len(c.DroppedColumns()) > 0 ||
		len(c.AlteredColumns()) > 0 ||
		len(c.AddedIndexes()) > 0 ||
		len(c.DroppedIndexes()) > 0 ||
		len(c.AlteredIndexes()) > 0 ||
		len(c.AddedForeignKeys()) > 0 ||
		len(c.DroppedForeignKeys()) > 0 ||
		len(c.AlteredForeignKeys()) > 0
}

func (c *Comparator) IsRenamed() bool {
	return c.initial.Name() != c.current.Name()
}

func (c *Comparator) IsPrimaryChanged() bool {
	return !slices.Equal(c.initial.PrimaryKeys(), c.current.PrimaryKeys())
}

func (c *Comparator) AddedColumns() []*Column {
	var added []*Column
	for _, key := range c.current.columns.keys {
		if !c.initial.columns.has(key) {
			added = append(added, c.current.columns.items[key])
		}
	}
	return added
}

func (c *Comparator) DroppedColumns() []*Column {
	var dropped []*Column
	for _, key := range c.initial.columns.keys {
		if !c.current.columns.has(key) {
			dropped = append(dropped, c.initial.columns.items[key])
		}
	}
	return dropped
}

func (c *Comparator) AlteredColumns() []ColumnPair {
	var altered []ColumnPair
	for _, key := range c.current.columns.keys {
		initial, ok := c.initial.columns.get(key)
		if !ok {
			continue
		}
		if current := c.current.columns.items[key]; !current.Compare(initial) {
			altered = append(altered, ColumnPair{Current: current, Initial: initial})
		}
	}
	return altered
}

func (c *Comparator) AddedIndexes() []*Index {
	var added []*Index
	for _, i := range c.current.Indexes() {
		if !c.initial.HasIndex(i.ColumnsWithSort()) {
			added = append(added, i)
		}
	}
	return added
}

func (c *Comparator) DroppedIndexes() []*Index {
	var dropped []*Index
	for _, i := range c.initial.Indexes() {
		if !c.current.HasIndex(i.ColumnsWithSort()) {
			dropped = append(dropped, i)
		}
	}
	return dropped
}

func (c *Comparator) AlteredIndexes() []IndexPair {
	var altered []IndexPair
	for _, current := range c.current.Indexes() {
		initial := c.initial.FindIndex(current.ColumnsWithSort())
		if initial != nil && !current.Compare(initial) {
			altered = append(altered, IndexPair{Current: current, Initial: initial})
		}
	}
	return altered
}

func (c *Comparator) AddedForeignKeys() []*ForeignKey {
	var added []*ForeignKey
	for _, f := range c.current.ForeignKeys() {
		if !c.initial.HasForeignKey(f.Columns) {
			added = append(added, f)
		}
	}
	return added
}

func (c *Comparator) DroppedForeignKeys() []*ForeignKey {
	var dropped []*ForeignKey
	for _, f := range c.initial.ForeignKeys() {
		if !c.current.HasForeignKey(f.Columns) {
			dropped = append(dropped, f)
		}
	}
	return dropped
}

func (c *Comparator) AlteredForeignKeys() []ForeignKeyPair {
	var altered []ForeignKeyPair
	for _, current := range c.current.ForeignKeys() {
		initial := c.initial.FindForeignKey(current.Columns)
		if initial != nil && !current.Compare(initial) {
			altered = append(altered, ForeignKeyPair{Current: current, Initial: initial})
		}
	}
	return altered
}
