package schema

import (
	"context"
	"slices"
)

// Status is the lifecycle state of a table handle.
type Status int

const (
	// StatusNew tables do not exist in the database yet.
	StatusNew Status = iota
	StatusExists
	// StatusDeclaredDropped tables exist and are dropped by the next save with DoDrop.
	StatusDeclaredDropped
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusExists:
		return "exists"
	case StatusDeclaredDropped:
		return "dropped"
	}
	return "unknown"
}

// Table is a handle pairing the state of a table in the database (initial) with the state
// declared by the caller (current). Declarations only change current; Save hands the
// difference to the driver's schema handler.
type Table struct {
	driver  Driver
	status  Status
	initial *State
	current *State
}

// NewTable returns a handle for a table that does not exist yet.
func NewTable(driver Driver, name string) *Table {
	return &Table{
		driver:  driver,
		status:  StatusNew,
		initial: NewState(name),
		current: NewState(name),
	}
}

// ExistingTable returns a handle for a table whose database structure is state.
func ExistingTable(driver Driver, state *State) *Table {
	initial := state.Clone()
	initial.RemountElements()
	return &Table{
		driver:  driver,
		status:  StatusExists,
		initial: initial,
		current: initial.Clone(),
	}
}

func (t *Table) Driver() Driver       { return t.driver }
func (t *Table) Types() *TypeRegistry { return t.driver.Types() }
func (t *Table) Status() Status       { return t.status }
func (t *Table) Name() string         { return t.current.Name() }
func (t *Table) InitialName() string  { return t.initial.Name() }

// Exists reports whether the table is present in the database.
func (t *Table) Exists() bool {
	return t.status == StatusExists || t.status == StatusDeclaredDropped
}

// SetName renames the table, applied by a save with DoRename.
func (t *Table) SetName(name string) {
	t.current.SetName(name)
}

func (t *Table) Columns() []*Column         { return t.current.Columns() }
func (t *Table) Indexes() []*Index          { return t.current.Indexes() }
func (t *Table) ForeignKeys() []*ForeignKey { return t.current.ForeignKeys() }
func (t *Table) PrimaryKeys() []string      { return t.current.PrimaryKeys() }

// State returns the declared state.
func (t *Table) State() *State {
	return t.current
}

// InitialState returns the state the table has in the database.
func (t *Table) InitialState() *State {
	return t.initial
}

// SetState replaces the declared state with a copy of state.
func (t *Table) SetState(state *State) {
	t.current = state.Clone()
	t.current.RemountElements()
}

// ResetState discards every declaration made since the last save.
func (t *Table) ResetState() {
	t.SetState(t.initial)
}

func (t *Table) Comparator() *Comparator {
	return NewComparator(t.initial, t.current)
}

func (t *Table) HasChanges() bool {
	return t.Comparator().HasChanges()
}

// Dependencies lists the other tables referenced by foreign keys.
func (t *Table) Dependencies() []string {
	var deps []string
	for _, f := range t.current.ForeignKeys() {
		if f.ForeignTable != t.Name() && !slices.Contains(deps, f.ForeignTable) {
			deps = append(deps, f.ForeignTable)
		}
	}
	return deps
}

// Column returns the declared column, creating it from the database column of the same name
// or from scratch.
func (t *Table) Column(name string) *Column {
	if c := t.current.FindColumn(name); c != nil {
		return c
	}

	var c *Column
	if initial := t.initial.FindColumn(name); initial != nil {
		c = initial.Clone()
	} else {
		c = NewColumn(t.Types(), name)
	}
	t.current.RegisterColumn(c)
	return c
}

// Index declares an index over the columns, reusing the name of an existing index over the
// same columns. Columns may carry a sort suffix.
func (t *Table) Index(columns ...string) (*Index, error) {
	if err := t.requireColumns("index", columns); err != nil {
		return nil, err
	}

	if i := t.current.FindIndex(columns); i != nil {
		return i, nil
	}

	i := NewIndex("", columns...)
	if initial := t.initial.FindIndex(columns); initial != nil {
		i = initial.Clone()
	} else {
		i.Name = t.identifier("index", i.Columns)
	}
	t.current.RegisterIndex(i)
	return i, nil
}

// ForeignKey declares a foreign key over the local columns. When createIndex is set, an index
// over the same columns is declared as well.
func (t *Table) ForeignKey(columns []string, createIndex bool) (*ForeignKey, error) {
	if err := t.requireColumns("foreign key", columns); err != nil {
		return nil, err
	}

	f := t.current.FindForeignKey(columns)
	if f == nil {
		if initial := t.initial.FindForeignKey(columns); initial != nil {
			f = initial.Clone()
		} else {
			f = NewForeignKey(t.identifier("foreign", columns), columns...)
		}
		t.current.RegisterForeignKey(f)
	}

	f.Index = createIndex
	if createIndex {
		if _, err := t.Index(columns...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (t *Table) requireColumns(kind string, columns []string) error {
	if len(columns) == 0 {
		return schemaErrorf(t.Name(), "%s requires at least one column", kind)
	}
	for _, expr := range columns {
		name, _ := ParseIndexColumn(expr)
		if !t.current.HasColumn(name) {
			return schemaErrorf(t.Name(), "undefined column '%s' in %s", name, kind)
		}
	}
	return nil
}

func (t *Table) identifier(kind string, columns []string) string {
	return Identifier(t.Name(), kind, columns, t.Types().MaxIdentifierLength)
}

// RenameColumn renames a declared column. A column keeps its new name until the next save.
func (t *Table) RenameColumn(name, newName string) error {
	c := t.current.FindColumn(name)
	if c == nil {
		return schemaErrorf(t.Name(), "undefined column '%s'", name)
	}
	if name == newName {
		return nil
	}
	if t.current.HasColumn(newName) {
		return schemaErrorf(t.Name(), "column '%s' already exists", newName)
	}

	key, _, _ := t.current.columns.find(func(x *Column) bool { return x == c })
	if initial, ok := t.initial.columns.get(key); ok && initial.Name != c.Name {
		return schemaErrorf(t.Name(), "column '%s' was already renamed from '%s'", name, initial.Name)
	}
	c.Name = newName
	return nil
}

// RenameIndex renames the index over the columns. An index keeps its new name until the
// next save.
func (t *Table) RenameIndex(columns []string, newName string) error {
	i := t.current.FindIndex(columns)
	if i == nil {
		return schemaErrorf(t.Name(), "undefined index over %v", columns)
	}
	if i.Name == newName {
		return nil
	}
	if _, other, ok := t.current.indexes.find(func(x *Index) bool { return x.Name == newName }); ok && other != i {
		return schemaErrorf(t.Name(), "index '%s' already exists", newName)
	}
	if initial := t.initial.FindIndex(columns); initial != nil && initial.Name != i.Name {
		return schemaErrorf(t.Name(), "index '%s' was already renamed from '%s'", i.Name, initial.Name)
	}
	i.Name = newName
	return nil
}

func (t *Table) DropColumn(name string) error {
	c := t.current.FindColumn(name)
	if c == nil {
		return schemaErrorf(t.Name(), "undefined column '%s'", name)
	}
	t.current.ForgetColumn(c)
	return nil
}

func (t *Table) DropIndex(columns ...string) error {
	i := t.current.FindIndex(columns)
	if i == nil {
		return schemaErrorf(t.Name(), "undefined index over %v", columns)
	}
	t.current.ForgetIndex(i)
	return nil
}

func (t *Table) DropForeignKey(columns ...string) error {
	f := t.current.FindForeignKey(columns)
	if f == nil {
		return schemaErrorf(t.Name(), "undefined foreign key over %v", columns)
	}
	t.current.ForgetForeignKey(f)
	return nil
}

// SetPrimaryKeys declares the explicit primary key columns.
func (t *Table) SetPrimaryKeys(columns ...string) {
	t.current.SetPrimaryKeys(columns)
}

// DeclareDropped marks an existing table to be dropped.
func (t *Table) DeclareDropped() error {
	if t.status == StatusNew {
		return schemaErrorf(t.Name(), "unable to drop a table that does not exist")
	}
	t.status = StatusDeclaredDropped
	return nil
}

// Save applies the operations selected by op through the schema handler. With reset, the
// declared state becomes the new initial state.
func (t *Table) Save(ctx context.Context, op Operation, reset bool) error {
	for _, c := range t.current.Columns() {
		if err := c.Err(); err != nil {
			return err
		}
	}

	handler := t.driver.Handler()
	if t.status == StatusDeclaredDropped && op.Has(DoDrop) {
		if err := handler.DropTable(ctx, t); err != nil {
			return err
		}
		t.status = StatusNew
		t.initial = NewState(t.current.Name())
		return nil
	}

	prepared := t.normalize(op.Has(CreateForeignKeys))
	switch {
	case t.status == StatusNew:
		if err := handler.CreateTable(ctx, prepared); err != nil {
			return err
		}
		t.status = StatusExists
		t.initial.SyncState(prepared.current)
	case prepared.HasChanges():
		if err := handler.SyncTable(ctx, prepared, op); err != nil {
			return err
		}
		if op.Has(DoRename) {
			t.initial.SetName(t.current.Name())
		}
	}

	if reset {
		t.current.SyncState(prepared.current)
		t.initial.SyncState(t.current)
		if t.status == StatusDeclaredDropped {
			t.status = StatusExists
		}
	}
	return nil
}

// normalize returns a copy of the handle prepared for the handler. Elements over dropped
// columns or dropped tables are removed and renamed columns are followed. New and altered
// foreign keys are deferred unless withForeignKeys is set.
func (t *Table) normalize(withForeignKeys bool) *Table {
	target := &Table{
		driver:  t.driver,
		status:  t.status,
		initial: t.initial.Clone(),
		current: t.current.Clone(),
	}
	comparator := t.Comparator()

	if t.status == StatusDeclaredDropped {
		for _, f := range target.current.ForeignKeys() {
			target.current.ForgetForeignKey(f)
		}
	}

	if !withForeignKeys {
		for _, added := range comparator.AddedForeignKeys() {
			if f := target.current.FindForeignKey(added.Columns); f != nil {
				target.current.ForgetForeignKey(f)
			}
		}
		// an altered foreign key is dropped now and created with the new ones
		for _, pair := range comparator.AlteredForeignKeys() {
			if f := target.current.FindForeignKey(pair.Current.Columns); f != nil {
				target.current.ForgetForeignKey(f)
			}
		}
	}

	for _, dropped := range comparator.DroppedColumns() {
		for _, i := range target.current.Indexes() {
			if slices.Contains(i.Columns, dropped.Name) {
				target.current.ForgetIndex(i)
			}
		}
		for _, f := range target.current.ForeignKeys() {
			if slices.Contains(f.Columns, dropped.Name) {
				target.current.ForgetForeignKey(f)
			}
		}
	}

	for _, pair := range comparator.AlteredColumns() {
		from, to := pair.Initial.Name, pair.Current.Name
		if from == to {
			continue
		}
		for _, i := range target.current.Indexes() {
			i.renameColumn(from, to)
		}
		for _, f := range target.current.ForeignKeys() {
			for n, column := range f.Columns {
				if column == from {
					f.Columns[n] = to
				}
			}
		}
		keys := target.current.ExplicitPrimaryKeys()
		for n, column := range keys {
			if column == from {
				keys[n] = to
			}
		}
		target.current.SetPrimaryKeys(keys)
	}
	return target
}
