package schema

import (
	"slices"
	"sort"
	"strings"
)

// Abstract column types understood by every dialect.
const (
	TypePrimary      = "primary"
	TypeBigPrimary   = "bigPrimary"
	TypeEnum         = "enum"
	TypeBoolean      = "boolean"
	TypeInteger      = "integer"
	TypeTinyInteger  = "tinyInteger"
	TypeSmallInteger = "smallInteger"
	TypeBigInteger   = "bigInteger"
	TypeString       = "string"
	TypeText         = "text"
	TypeTinyText     = "tinyText"
	TypeLongText     = "longText"
	TypeDouble       = "double"
	TypeFloat        = "float"
	TypeDecimal      = "decimal"
	TypeDatetime     = "datetime"
	TypeDate         = "date"
	TypeTime         = "time"
	TypeTimestamp    = "timestamp"
	TypeTimestampTZ  = "timestamptz"
	TypeBinary       = "binary"
	TypeTinyBinary   = "tinyBinary"
	TypeLongBinary   = "longBinary"
	TypeJSON         = "json"
	TypeUUID         = "uuid"

	// TypeUnknown is reported for native types no reverse rule matches.
	TypeUnknown = "unknown"
)

// DefaultAliases are shorthand abstract type names accepted by every registry.
var DefaultAliases = map[string]string{
	"int":            TypeInteger,
	"bigint":         TypeBigInteger,
	"smallint":       TypeSmallInteger,
	"tinyint":        TypeTinyInteger,
	"incremental":    TypePrimary,
	"bigIncremental": TypeBigPrimary,
	"bool":           TypeBoolean,
	"blob":           TypeBinary,
	"varchar":        TypeString,
	"longtext":       TypeLongText,
	"tinytext":       TypeTinyText,
}

// TypeSpec is a native type plus the attribute values that qualify it.
// Nil attributes are left untouched when the spec is applied and ignored when it is matched.
type TypeSpec struct {
	Type          string
	Size          *int
	Precision     *int
	Scale         *int
	Nullable      *bool
	AutoIncrement *bool
	Primary       *bool
	WithTimezone  *bool
	Enum          *bool
}

// Native returns a spec that only names a native type.
func Native(nativeType string) TypeSpec {
	return TypeSpec{Type: nativeType}
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func (s TypeSpec) apply(c *Column) {
	c.Type = s.Type
	if s.Size != nil {
		c.Size = *s.Size
	}
	if s.Precision != nil {
		c.Precision = *s.Precision
	}
	if s.Scale != nil {
		c.Scale = *s.Scale
	}
	if s.Nullable != nil {
		c.Nullable = *s.Nullable
	}
	if s.AutoIncrement != nil {
		c.AutoIncrement = *s.AutoIncrement
	}
	if s.Primary != nil {
		c.IsPrimary = *s.Primary
	}
	if s.WithTimezone != nil {
		c.WithTimezone = *s.WithTimezone
	}
}

func (s TypeSpec) matches(c *Column) bool {
	if !strings.EqualFold(s.Type, c.Type) {
		return false
	}
	switch {
	case s.Size != nil && *s.Size != c.Size:
		return false
	case s.Precision != nil && *s.Precision != c.Precision:
		return false
	case s.Scale != nil && *s.Scale != c.Scale:
		return false
	case s.AutoIncrement != nil && *s.AutoIncrement != c.AutoIncrement:
		return false
	case s.Primary != nil && *s.Primary != c.IsPrimary:
		return false
	case s.WithTimezone != nil && *s.WithTimezone != c.WithTimezone:
		return false
	case s.Enum != nil && *s.Enum != (len(c.EnumValues) > 0):
		return false
	}
	return true
}

// ReverseRule maps a set of native spellings back to one abstract type.
type ReverseRule struct {
	Abstract string
	Specs    []TypeSpec
}

// Field names a comparable column attribute.
type Field string

const (
	FieldName          Field = "name"
	FieldType          Field = "type"
	FieldSize          Field = "size"
	FieldPrecision     Field = "precision"
	FieldScale         Field = "scale"
	FieldNullable      Field = "nullable"
	FieldDefault       Field = "default"
	FieldAutoIncrement Field = "autoIncrement"
	FieldPrimary       Field = "primary"
	FieldWithTimezone  Field = "withTimezone"
	FieldEnumValues    Field = "enumValues"
	FieldDeclaredType  Field = "declaredType"
)

// TypeRegistry is the bidirectional mapping between abstract and native column types of one dialect.
type TypeRegistry struct {
	Dialect string
	Aliases map[string]string
	Mapping map[string]TypeSpec
	// Reverse is walked in order; the first rule with a matching spec wins.
	Reverse []ReverseRule
	// Exclude lists the column fields ignored by comparisons.
	Exclude             []Field
	MaxIdentifierLength int
}

// Canonical resolves aliases of an abstract type name.
func (r *TypeRegistry) Canonical(abstract string) string {
	if alias, ok := r.Aliases[abstract]; ok {
		return alias
	}
	if alias, ok := DefaultAliases[abstract]; ok {
		return alias
	}
	return abstract
}

// ResolveNative returns the native spec of an abstract type.
func (r *TypeRegistry) ResolveNative(abstract string) (TypeSpec, error) {
	spec, ok := r.Mapping[r.Canonical(abstract)]
	if !ok {
		return TypeSpec{}, schemaErrorf("", "undefined abstract type '%s' for dialect %s", abstract, r.Dialect)
	}
	return spec, nil
}

// ResolveAbstract derives the abstract type of a column from its native type and attributes.
func (r *TypeRegistry) ResolveAbstract(c *Column) string {
	for _, rule := range r.Reverse {
		for _, spec := range rule.Specs {
			if spec.matches(c) {
				return rule.Abstract
			}
		}
	}
	return TypeUnknown
}

// Excludes reports whether comparisons ignore the field.
func (r *TypeRegistry) Excludes(f Field) bool {
	if f == FieldDeclaredType {
		return true
	}
	return slices.Contains(r.Exclude, f)
}

// Types lists the abstract types the registry can render, sorted.
func (r *TypeRegistry) Types() []string {
	types := make([]string, 0, len(r.Mapping))
	for name := range r.Mapping {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
