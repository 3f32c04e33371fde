package schema

import (
	"encoding/json"
	"fmt"
	"slices"
)

// State is a snapshot of one table structure: its name, columns, indexes, foreign keys and
// explicitly declared primary keys. Element maps are keyed by the name an element had when it
// was registered until RemountElements is called.
type State struct {
	name        string
	columns     elements[*Column]
	indexes     elements[*Index]
	foreignKeys elements[*ForeignKey]
	primaryKeys []string
}

// NewState creates an empty state for the named table.
func NewState(name string) *State {
	return &State{name: name}
}

func (s *State) Name() string        { return s.name }
func (s *State) SetName(name string) { s.name = name }

func (s *State) Columns() []*Column         { return s.columns.values() }
func (s *State) Indexes() []*Index          { return s.indexes.values() }
func (s *State) ForeignKeys() []*ForeignKey { return s.foreignKeys.values() }

// RegisterColumn adds the column, replacing any column registered under the same name.
func (s *State) RegisterColumn(c *Column) {
	s.columns.set(c.Name, c)
}

// RegisterIndex adds the index, replacing any index registered under the same name.
func (s *State) RegisterIndex(i *Index) {
	s.indexes.set(i.Name, i)
}

// RegisterForeignKey adds the foreign key, replacing any key registered under the same name.
func (s *State) RegisterForeignKey(f *ForeignKey) {
	s.foreignKeys.set(f.Name, f)
}

// ForgetColumn removes the column, matched by identity or structure.
func (s *State) ForgetColumn(c *Column) {
	if key, _, ok := s.columns.find(func(x *Column) bool { return x == c || x.Compare(c) }); ok {
		s.columns.remove(key)
	}
}

// ForgetIndex removes the index, matched by identity or structure.
func (s *State) ForgetIndex(i *Index) {
	if key, _, ok := s.indexes.find(func(x *Index) bool { return x == i || x.Compare(i) }); ok {
		s.indexes.remove(key)
	}
}

// ForgetForeignKey removes the foreign key, matched by identity or structure.
func (s *State) ForgetForeignKey(f *ForeignKey) {
	if key, _, ok := s.foreignKeys.find(func(x *ForeignKey) bool { return x == f || x.Compare(f) }); ok {
		s.foreignKeys.remove(key)
	}
}

// FindColumn returns the column currently named name.
func (s *State) FindColumn(name string) *Column {
	_, c, _ := s.columns.find(func(c *Column) bool { return c.Name == name })
	return c
}

// FindIndex returns the index over exactly these columns (sort suffixes included).
func (s *State) FindIndex(columns []string) *Index {
	want := NewIndex("", columns...).ColumnsWithSort()
	_, i, _ := s.indexes.find(func(i *Index) bool { return slices.Equal(i.ColumnsWithSort(), want) })
	return i
}

// FindForeignKey returns the foreign key over exactly these local columns.
func (s *State) FindForeignKey(columns []string) *ForeignKey {
	_, f, _ := s.foreignKeys.find(func(f *ForeignKey) bool { return slices.Equal(f.Columns, columns) })
	return f
}

func (s *State) HasColumn(name string) bool          { return s.FindColumn(name) != nil }
func (s *State) HasIndex(columns []string) bool      { return s.FindIndex(columns) != nil }
func (s *State) HasForeignKey(columns []string) bool { return s.FindForeignKey(columns) != nil }

// SetPrimaryKeys sets the explicit primary key columns.
func (s *State) SetPrimaryKeys(columns []string) {
	s.primaryKeys = slices.Clone(columns)
}

// ExplicitPrimaryKeys returns the primary keys set with SetPrimaryKeys.
func (s *State) ExplicitPrimaryKeys() []string {
	return slices.Clone(s.primaryKeys)
}

// PrimaryKeys returns the explicit primary keys followed by every primary or auto-increment
// column not listed yet, without duplicates.
func (s *State) PrimaryKeys() []string {
	result := make([]string, 0, len(s.primaryKeys)+1)
	for _, name := range s.primaryKeys {
		if !slices.Contains(result, name) {
			result = append(result, name)
		}
	}
	for _, c := range s.columns.values() {
		if !isPrimaryColumn(c) || slices.Contains(result, c.Name) {
			continue
		}
		result = append(result, c.Name)
	}
	return result
}

func isPrimaryColumn(c *Column) bool {
	if c.AutoIncrement || c.IsPrimary {
		return true
	}
	switch c.AbstractType() {
	case TypePrimary, TypeBigPrimary:
		return true
	}
	return false
}

// RemountElements re-keys every element by its current name.
func (s *State) RemountElements() {
	s.columns.remount(func(c *Column) string { return c.Name })
	s.indexes.remount(func(i *Index) string { return i.Name })
	s.foreignKeys.remount(func(f *ForeignKey) string { return f.Name })
}

// SyncState makes s a deep copy of source, re-keyed by current element names.
func (s *State) SyncState(source *State) {
	s.name = source.name
	s.primaryKeys = slices.Clone(source.primaryKeys)
	s.columns = source.columns.clone((*Column).Clone)
	s.indexes = source.indexes.clone((*Index).Clone)
	s.foreignKeys = source.foreignKeys.clone((*ForeignKey).Clone)
	s.RemountElements()
}

// Clone returns a deep copy that keeps the registration keys of s.
func (s *State) Clone() *State {
	return &State{
		name:        s.name,
		primaryKeys: slices.Clone(s.primaryKeys),
		columns:     s.columns.clone((*Column).Clone),
		indexes:     s.indexes.clone((*Index).Clone),
		foreignKeys: s.foreignKeys.clone((*ForeignKey).Clone),
	}
}

type stateJSON struct {
	Name        string        `json:"name"`
	Columns     []*Column     `json:"columns"`
	Indexes     []*Index      `json:"indexes"`
	ForeignKeys []*ForeignKey `json:"foreign_keys"`
	PrimaryKeys []string      `json:"primary_keys,omitempty"`
}

func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Name:        s.name,
		Columns:     s.Columns(),
		Indexes:     s.Indexes(),
		ForeignKeys: s.ForeignKeys(),
		PrimaryKeys: s.primaryKeys,
	})
}

// DecodeState reads a state encoded with json.Marshal, binding its columns to types.
func DecodeState(data []byte, types *TypeRegistry) (*State, error) {
	var raw struct {
		stateJSON
		Columns []json.RawMessage `json:"columns"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}

	state := NewState(raw.Name)
	for _, data := range raw.Columns {
		c := NewColumn(types, "")
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to decode column of %s: %w", raw.Name, err)
		}
		state.RegisterColumn(c)
	}
	for _, i := range raw.Indexes {
		state.RegisterIndex(i)
	}
	for _, f := range raw.ForeignKeys {
		state.RegisterForeignKey(f)
	}
	state.SetPrimaryKeys(raw.PrimaryKeys)
	return state, nil
}
