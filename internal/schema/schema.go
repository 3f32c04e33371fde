package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// Fragment is a raw SQL expression used as a column default, e.g. CURRENT_TIMESTAMP.
type Fragment string

// Referential actions of a foreign key.
const (
	NoAction   = "NO ACTION"
	Cascade    = "CASCADE"
	SetNull    = "SET NULL"
	SetDefault = "SET DEFAULT"
	Restrict   = "RESTRICT"
)

// Column represents a database column
type Column struct {
	Name          string
	Type          string
	Size          int
	Precision     int
	Scale         int
	Nullable      bool
	Default       any
	AutoIncrement bool
	// IsPrimary marks a column rendered as an inline primary key (SQLite rowid alias).
	IsPrimary    bool
	WithTimezone bool
	EnumValues   []string
	// DeclaredType is the abstract type the column was last declared with.
	DeclaredType string

	types *TypeRegistry
	err   error
}

// NewColumn creates a nullable column without a type.
func NewColumn(types *TypeRegistry, name string) *Column {
	return &Column{Name: name, Nullable: true, types: types}
}

// Types returns the registry the column resolves its types against.
func (c *Column) Types() *TypeRegistry {
	return c.types
}

// Err returns the first error recorded by a type builder.
func (c *Column) Err() error {
	return c.err
}

// AbstractType derives the portable type from the native type and its attributes.
func (c *Column) AbstractType() string {
	if c.types == nil {
		return TypeUnknown
	}
	return c.types.ResolveAbstract(c)
}

// SetType resets every type attribute and applies the native spec of the abstract type.
func (c *Column) SetType(abstract string) error {
	if c.types == nil {
		return schemaErrorf("", "column '%s' has no type registry", c.Name)
	}
	spec, err := c.types.ResolveNative(abstract)
	if err != nil {
		return err
	}

	c.Size, c.Precision, c.Scale = 0, 0, 0
	c.EnumValues = nil
	c.Nullable = true
	c.AutoIncrement, c.IsPrimary, c.WithTimezone = false, false, false
	spec.apply(c)
	c.DeclaredType = c.types.Canonical(abstract)
	return nil
}

func (c *Column) setType(abstract string) *Column {
	if err := c.SetType(abstract); err != nil && c.err == nil {
		c.err = err
	}
	return c
}

func (c *Column) Primary() *Column      { return c.setType(TypePrimary) }
func (c *Column) BigPrimary() *Column   { return c.setType(TypeBigPrimary) }
func (c *Column) Boolean() *Column      { return c.setType(TypeBoolean) }
func (c *Column) Integer() *Column      { return c.setType(TypeInteger) }
func (c *Column) TinyInteger() *Column  { return c.setType(TypeTinyInteger) }
func (c *Column) SmallInteger() *Column { return c.setType(TypeSmallInteger) }
func (c *Column) BigInteger() *Column   { return c.setType(TypeBigInteger) }
func (c *Column) Text() *Column         { return c.setType(TypeText) }
func (c *Column) TinyText() *Column     { return c.setType(TypeTinyText) }
func (c *Column) LongText() *Column     { return c.setType(TypeLongText) }
func (c *Column) Double() *Column       { return c.setType(TypeDouble) }
func (c *Column) Float() *Column        { return c.setType(TypeFloat) }
func (c *Column) Datetime() *Column     { return c.setType(TypeDatetime) }
func (c *Column) Date() *Column         { return c.setType(TypeDate) }
func (c *Column) Time() *Column         { return c.setType(TypeTime) }
func (c *Column) Timestamp() *Column    { return c.setType(TypeTimestamp) }
func (c *Column) TimestampTZ() *Column  { return c.setType(TypeTimestampTZ) }
func (c *Column) Binary() *Column       { return c.setType(TypeBinary) }
func (c *Column) TinyBinary() *Column   { return c.setType(TypeTinyBinary) }
func (c *Column) LongBinary() *Column   { return c.setType(TypeLongBinary) }
func (c *Column) JSON() *Column         { return c.setType(TypeJSON) }
func (c *Column) UUID() *Column         { return c.setType(TypeUUID) }

// String declares a string column, size 0 keeps the dialect default.
func (c *Column) String(size int) *Column {
	c.setType(TypeString)
	if size > 0 {
		c.Size = size
	}
	return c
}

// Decimal declares a fixed point column.
func (c *Column) Decimal(precision, scale int) *Column {
	c.setType(TypeDecimal)
	if precision > 0 {
		c.Precision, c.Scale = precision, scale
	}
	return c
}

// Enum declares an enum column. Dialects without a native enum store it as a string
// sized to the longest value.
func (c *Column) Enum(values ...string) *Column {
	c.setType(TypeEnum)
	c.EnumValues = slices.Clone(values)
	if !strings.EqualFold(c.Type, TypeEnum) {
		c.Size = 0
		for _, v := range values {
			c.Size = max(c.Size, len(v))
		}
	}
	return c
}

// SetNullable sets the nullability of the column.
func (c *Column) SetNullable(nullable bool) *Column {
	c.Nullable = nullable
	return c
}

// SetDefault sets the default value, nil removes it.
func (c *Column) SetDefault(value any) *Column {
	c.Default = value
	return c
}

// SetSize overrides the size of the native type.
func (c *Column) SetSize(size int) *Column {
	c.Size = size
	return c
}

// CastedDefault returns the default converted to the value kind of the abstract type so that
// "0" and 0 compare equal for integer columns.
func (c *Column) CastedDefault() any {
	switch v := c.Default.(type) {
	case nil:
		return nil
	case Fragment:
		return v
	}

	switch c.AbstractType() {
	case TypePrimary, TypeBigPrimary, TypeInteger, TypeTinyInteger, TypeSmallInteger, TypeBigInteger:
		if n, err := cast.ToInt64E(c.Default); err == nil {
			return n
		}
	case TypeDouble, TypeFloat, TypeDecimal:
		if f, err := cast.ToFloat64E(c.Default); err == nil {
			return f
		}
	case TypeBoolean:
		if b, err := cast.ToBoolE(c.Default); err == nil {
			return b
		}
	}
	return cast.ToString(c.Default)
}

// Compare reports whether two columns are equal, ignoring the fields excluded by the registry.
func (c *Column) Compare(other *Column) bool {
	skip := func(f Field) bool { return c.types != nil && c.types.Excludes(f) || f == FieldDeclaredType }

	checks := []struct {
		field Field
		equal bool
	}{
		{FieldName, c.Name == other.Name},
		{FieldType, strings.EqualFold(c.Type, other.Type)},
		{FieldSize, c.Size == other.Size},
		{FieldPrecision, c.Precision == other.Precision},
		{FieldScale, c.Scale == other.Scale},
		{FieldNullable, c.Nullable == other.Nullable},
		{FieldDefault, c.CastedDefault() == other.CastedDefault()},
		{FieldAutoIncrement, c.AutoIncrement == other.AutoIncrement},
		{FieldPrimary, c.IsPrimary == other.IsPrimary},
		{FieldWithTimezone, c.WithTimezone == other.WithTimezone},
		{FieldEnumValues, slices.Equal(c.EnumValues, other.EnumValues)},
		{FieldDeclaredType, c.DeclaredType == other.DeclaredType},
	}
	for _, check := range checks {
		if !check.equal && !skip(check.field) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	clone := *c
	clone.EnumValues = slices.Clone(c.EnumValues)
	return &clone
}

type columnJSON struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Size            int      `json:"size,omitempty"`
	Precision       int      `json:"precision,omitempty"`
	Scale           int      `json:"scale,omitempty"`
	Nullable        bool     `json:"nullable"`
	Default         any      `json:"default,omitempty"`
	DefaultFragment bool     `json:"default_fragment,omitempty"`
	AutoIncrement   bool     `json:"auto_increment,omitempty"`
	Primary         bool     `json:"primary,omitempty"`
	WithTimezone    bool     `json:"with_timezone,omitempty"`
	EnumValues      []string `json:"enum_values,omitempty"`
	DeclaredType    string   `json:"declared_type,omitempty"`
}

func (c *Column) MarshalJSON() ([]byte, error) {
	_, fragment := c.Default.(Fragment)
	return json.Marshal(columnJSON{
		Name:            c.Name,
		Type:            c.Type,
		Size:            c.Size,
		Precision:       c.Precision,
		Scale:           c.Scale,
		Nullable:        c.Nullable,
		Default:         c.Default,
		DefaultFragment: fragment,
		AutoIncrement:   c.AutoIncrement,
		Primary:         c.IsPrimary,
		WithTimezone:    c.WithTimezone,
		EnumValues:      c.EnumValues,
		DeclaredType:    c.DeclaredType,
	})
}

func (c *Column) UnmarshalJSON(data []byte) error {
	var raw columnJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Column{
		Name:          raw.Name,
		Type:          raw.Type,
		Size:          raw.Size,
		Precision:     raw.Precision,
		Scale:         raw.Scale,
		Nullable:      raw.Nullable,
		Default:       raw.Default,
		AutoIncrement: raw.AutoIncrement,
		IsPrimary:     raw.Primary,
		WithTimezone:  raw.WithTimezone,
		EnumValues:    raw.EnumValues,
		DeclaredType:  raw.DeclaredType,
		types:         c.types,
	}
	if raw.DefaultFragment {
		c.Default = Fragment(fmt.Sprint(raw.Default))
	}
	return nil
}

// Index represents a database index
type Index struct {
	Name    string            `json:"name"`
	Columns []string          `json:"columns"`
	Sort    map[string]string `json:"sort,omitempty"` // column => ASC|DESC
	Unique  bool              `json:"unique"`
}

// NewIndex creates an index. Columns may carry a sort suffix, e.g. "created_at DESC".
func NewIndex(name string, columns ...string) *Index {
	idx := &Index{Name: name}
	idx.SetColumns(columns...)
	return idx
}

// ParseIndexColumn splits "column [ASC|DESC]" into its parts.
func ParseIndexColumn(expr string) (column, order string) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) > 1 {
		switch o := strings.ToUpper(fields[len(fields)-1]); o {
		case "ASC", "DESC":
			return strings.Join(fields[:len(fields)-1], " "), o
		}
	}
	return strings.Join(fields, " "), ""
}

// SetColumns replaces the indexed columns.
func (i *Index) SetColumns(columns ...string) *Index {
	i.Columns = make([]string, 0, len(columns))
	i.Sort = nil
	for _, expr := range columns {
		column, order := ParseIndexColumn(expr)
		i.Columns = append(i.Columns, column)
		// ascending is the default and is not recorded
		if order == "DESC" {
			if i.Sort == nil {
				i.Sort = map[string]string{}
			}
			i.Sort[column] = order
		}
	}
	return i
}

// SetUnique marks the index unique.
func (i *Index) SetUnique(unique bool) *Index {
	i.Unique = unique
	return i
}

// ColumnsWithSort returns the columns with their sort suffixes, the identity of the index.
func (i *Index) ColumnsWithSort() []string {
	result := make([]string, len(i.Columns))
	for n, column := range i.Columns {
		result[n] = column
		if order := i.Sort[column]; order != "" {
			result[n] = column + " " + order
		}
	}
	return result
}

func (i *Index) renameColumn(from, to string) {
	for n, column := range i.Columns {
		if column == from {
			i.Columns[n] = to
		}
	}
	if order, ok := i.Sort[from]; ok {
		delete(i.Sort, from)
		i.Sort[to] = order
	}
}

// Compare reports whether two indexes are equal
func (i *Index) Compare(other *Index) bool {
	return i.Name == other.Name &&
		i.Unique == other.Unique &&
		slices.Equal(i.ColumnsWithSort(), other.ColumnsWithSort())
}

// Clone returns a deep copy of the index.
func (i *Index) Clone() *Index {
	clone := *i
	clone.Columns = slices.Clone(i.Columns)
	if i.Sort != nil {
		clone.Sort = make(map[string]string, len(i.Sort))
		for k, v := range i.Sort {
			clone.Sort[k] = v
		}
	}
	return &clone
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Name           string   `json:"name"`
	Columns        []string `json:"columns"`
	ForeignTable   string   `json:"foreign_table"`
	ForeignColumns []string `json:"foreign_columns"`
	OnDelete       string   `json:"on_delete"` // CASCADE, SET NULL, etc.
	OnUpdate       string   `json:"on_update"`
	// Index reports whether a covering index is maintained for the local columns.
	Index bool `json:"index"`
}

// NewForeignKey creates a foreign key with NO ACTION rules.
func NewForeignKey(name string, columns ...string) *ForeignKey {
	return &ForeignKey{
		Name:     name,
		Columns:  slices.Clone(columns),
		OnDelete: NoAction,
		OnUpdate: NoAction,
		Index:    true,
	}
}

// References sets the referenced table and columns.
func (f *ForeignKey) References(table string, columns ...string) *ForeignKey {
	f.ForeignTable = table
	f.ForeignColumns = slices.Clone(columns)
	return f
}

// SetOnDelete sets the delete rule.
func (f *ForeignKey) SetOnDelete(rule string) *ForeignKey {
	f.OnDelete = normalizeRule(rule)
	return f
}

// SetOnUpdate sets the update rule.
func (f *ForeignKey) SetOnUpdate(rule string) *ForeignKey {
	f.OnUpdate = normalizeRule(rule)
	return f
}

func normalizeRule(rule string) string {
	rule = strings.ToUpper(strings.Join(strings.Fields(rule), " "))
	if rule == "" {
		return NoAction
	}
	return rule
}

// Compare reports whether two foreign keys are equal
func (f *ForeignKey) Compare(other *ForeignKey) bool {
	return f.Name == other.Name &&
		slices.Equal(f.Columns, other.Columns) &&
		f.ForeignTable == other.ForeignTable &&
		slices.Equal(f.ForeignColumns, other.ForeignColumns) &&
		f.OnDelete == other.OnDelete &&
		f.OnUpdate == other.OnUpdate
}

// Clone returns a deep copy of the foreign key.
func (f *ForeignKey) Clone() *ForeignKey {
	clone := *f
	clone.Columns = slices.Clone(f.Columns)
	clone.ForeignColumns = slices.Clone(f.ForeignColumns)
	return &clone
}
