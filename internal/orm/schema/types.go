// Package schema resolves Go struct types into relational entity metadata:
// table and column mapping, ordered primary and foreign keys, and the
// direction and cardinality of relationships between entity types.
package schema

import (
	"reflect"
	"strings"
)

// Cardinality describes how many rows sit on each end of a navigation
type Cardinality int

const (
	// OneToOne joins a single row on both ends (shared key)
	OneToOne Cardinality = iota
	// OneToMany is seen from the principal: a collection of dependents
	OneToMany
	// ManyToOne is seen from the dependent: a reference to its principal
	ManyToOne
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case OneToOne:
		return "one-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToOne:
		return "many-to-one"
	default:
		return "unknown"
	}
}

// Side tells which end of a navigation is the principal
type Side int

const (
	// PrincipalSelf means the declaring type is the principal
	PrincipalSelf Side = iota
	// PrincipalOther means the related type is the principal
	PrincipalOther
)

// Column maps one struct field to one table column
type Column struct {
	Name      string       // column name
	Field     string       // Go field name
	Index     []int        // field index path, for reflect.Value.FieldByIndex
	Type      reflect.Type // Go type of the field
	Required  bool         // NOT NULL
	Key       bool         // primary key member
	KeyOrder  int          // explicit ordinal from order=N, 0 when absent
	Identity  bool         // integer key assigned by the store
	Generated bool         // uuid key assigned on insert when zero
}

// ForeignKey is an ordered foreign key held by a dependent type
type ForeignKey struct {
	Name       string       // constraint name
	Navigation string       // navigation on the dependent, "" when only the principal navigates
	Dependent  reflect.Type // type holding the key
	Principal  reflect.Type // referenced type
	Table      string       // principal table
	Columns    []*Column    // dependent columns, in principal key order
	References []*Column    // principal primary key columns
	Required   bool
}

// IsPrimaryKey reports whether the foreign key columns are exactly the
// dependent's primary key, which makes the relationship one-to-one
func (fk *ForeignKey) IsPrimaryKey(pk []*Column) bool {
	if len(fk.Columns) != len(pk) {
		return false
	}
	for i := range pk {
		if fk.Columns[i].Name != pk[i].Name {
			return false
		}
	}
	return true
}

// ColumnNames returns the dependent column names
func (fk *ForeignKey) ColumnNames() []string {
	return columnNames(fk.Columns)
}

// Navigation is a field referencing another entity type
type Navigation struct {
	Name        string
	Index       []int
	Related     reflect.Type // element struct type
	Collection  bool         // []T or []*T
	Pointer     bool         // *T reference or []*T elements
	Cardinality Cardinality
	Principal   Side
	ForeignKey  *ForeignKey // key on whichever side is dependent
}

// Relationship is the resolved direction between two types
type Relationship struct {
	Principal  reflect.Type
	Dependent  reflect.Type
	ForeignKey *ForeignKey
}

// EntityMetadata holds the resolved relational facts of one entity type.
// Values are immutable once returned by the registry.
type EntityMetadata struct {
	Type        reflect.Type
	TypeName    string // package-qualified type name used in errors
	Table       string
	Columns     []*Column
	PrimaryKey  []*Column
	ForeignKeys map[string]*ForeignKey // navigation name -> key held by this type
	Navigations map[string]*Navigation
	NavOrder    []string // navigation names in declaration order

	byName  map[string]*Column
	byField map[string]*Column
}

// Column looks up a column by column name or field name, case-insensitively
func (m *EntityMetadata) Column(name string) (*Column, bool) {
	if c, ok := m.byField[name]; ok {
		return c, true
	}
	if c, ok := m.byName[strings.ToLower(name)]; ok {
		return c, true
	}
	for f, c := range m.byField {
		if strings.EqualFold(f, name) {
			return c, true
		}
	}
	return nil, false
}

// Identity returns the store-generated key column, if any
func (m *EntityMetadata) Identity() *Column {
	for _, c := range m.PrimaryKey {
		if c.Identity {
			return c
		}
	}
	return nil
}

// ColumnNames returns all column names in declaration order
func (m *EntityMetadata) ColumnNames() []string {
	return columnNames(m.Columns)
}

// KeyNames returns the primary key column names in key order
func (m *EntityMetadata) KeyNames() []string {
	return columnNames(m.PrimaryKey)
}

// KeyValues extracts the primary key tuple from a struct value
func (m *EntityMetadata) KeyValues(v reflect.Value) []any {
	v = reflect.Indirect(v)
	key := make([]any, len(m.PrimaryKey))
	for i, c := range m.PrimaryKey {
		key[i] = v.FieldByIndex(c.Index).Interface()
	}
	return key
}

// Values extracts the given columns from a struct value
func Values(v reflect.Value, cols []*Column) []any {
	v = reflect.Indirect(v)
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = v.FieldByIndex(c.Index).Interface()
	}
	return out
}

// References returns the navigations of this type whose foreign key this
// type holds, in declaration order
func (m *EntityMetadata) References() []*Navigation {
	var out []*Navigation
	for _, name := range m.NavOrder {
		nav := m.Navigations[name]
		if nav.Principal == PrincipalOther {
			out = append(out, nav)
		}
	}
	return out
}

func (m *EntityMetadata) index() {
	m.byName = make(map[string]*Column, len(m.Columns))
	m.byField = make(map[string]*Column, len(m.Columns))
	for _, c := range m.Columns {
		m.byName[strings.ToLower(c.Name)] = c
		m.byField[c.Field] = c
	}
}

func columnNames(cols []*Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
