package schema

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/inflect"
	"github.com/google/uuid"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
)

// Tabler overrides the default pluralised table name of an entity type
type Tabler interface {
	TableName() string
}

var (
	tablerType  = reflect.TypeOf((*Tabler)(nil)).Elem()
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
)

// shape is the structural, non-recursive part of an entity: everything that
// can be read from the type itself without looking at related types.
type shape struct {
	typ      reflect.Type
	name     string // package-qualified
	simple   string // bare type name
	table    string
	columns  []*Column
	pk       []*Column
	navs     []*navDecl
	fkTagged map[string][]*Column // navigation -> columns tagged fk=<navigation>
}

type navDecl struct {
	name       string
	index      []int
	related    reflect.Type
	collection bool
	pointer    bool
	fkMember   string // rel:"fk=<Member>"
	dependent  bool   // rel:"dependent"
}

type columnTag struct {
	name      string
	key       bool
	order     int
	identity  bool
	generated bool
	required  bool
	fkNav     string
}

func (s *shape) column(member string) (*Column, bool) {
	for _, c := range s.columns {
		if c.Field == member {
			return c, true
		}
	}
	for _, c := range s.columns {
		if strings.EqualFold(c.Name, member) || strings.EqualFold(c.Field, member) {
			return c, true
		}
	}
	return nil, false
}

// buildShape reads struct tags and conventions of t
func buildShape(t reflect.Type) (*shape, error) {
	s := &shape{
		typ:      t,
		name:     ormerrors.TypeName(t),
		simple:   t.Name(),
		fkTagged: make(map[string][]*Column),
	}
	s.table = tableName(t)

	if err := s.collect(t, nil); err != nil {
		return nil, err
	}
	if len(s.columns) == 0 {
		return nil, fmt.Errorf("type %s has no mapped columns", s.name)
	}

	seen := make(map[string]string, len(s.columns))
	for _, c := range s.columns {
		lower := strings.ToLower(c.Name)
		if other, dup := seen[lower]; dup {
			return nil, fmt.Errorf("type %s maps fields %s and %s to column %q", s.name, other, c.Field, c.Name)
		}
		seen[lower] = c.Field
	}

	if err := s.resolveKey(); err != nil {
		return nil, err
	}

	for nav, cols := range s.fkTagged {
		if !s.hasNav(nav) {
			return nil, fmt.Errorf("type %s tags %s with fk=%s but has no navigation named %s",
				s.name, cols[0].Field, nav, nav)
		}
	}
	return s, nil
}

func (s *shape) hasNav(name string) bool {
	for _, n := range s.navs {
		if n.name == name {
			return true
		}
	}
	return false
}

func (s *shape) collect(t reflect.Type, parent []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		dbTag, hasDB := f.Tag.Lookup("db")
		if dbTag == "-" {
			continue
		}

		// flatten embedded structs that are not values of their own
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !isScalarStruct(f.Type) && !hasDB {
			if err := s.collect(f.Type, index); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		relTag, hasRel := f.Tag.Lookup("rel")
		if related, collection, pointer, ok := navigationTarget(f.Type); ok && !hasDB {
			nav := &navDecl{
				name:       f.Name,
				index:      index,
				related:    related,
				collection: collection,
				pointer:    pointer,
			}
			if err := parseRelTag(nav, relTag); err != nil {
				return fmt.Errorf("type %s field %s: %w", s.name, f.Name, err)
			}
			s.navs = append(s.navs, nav)
			continue
		}
		if hasRel {
			return fmt.Errorf("type %s field %s: rel tag on a non-navigation field", s.name, f.Name)
		}
		if f.Type.Kind() == reflect.Struct && !isScalarStruct(f.Type) {
			return fmt.Errorf("type %s field %s: unsupported struct value %s; use a pointer for navigations",
				s.name, f.Name, f.Type)
		}

		tag, err := parseColumnTag(dbTag)
		if err != nil {
			return fmt.Errorf("type %s field %s: %w", s.name, f.Name, err)
		}
		col := &Column{
			Name:      f.Name,
			Field:     f.Name,
			Index:     index,
			Type:      f.Type,
			Key:       tag.key,
			KeyOrder:  tag.order,
			Identity:  tag.identity,
			Generated: tag.generated,
			Required:  tag.required || isRequiredType(f.Type),
		}
		if tag.name != "" {
			col.Name = tag.name
		}
		if col.Identity || col.Generated {
			col.Key = true
		}
		if col.Identity && !isInteger(f.Type) {
			return fmt.Errorf("type %s field %s: identity requires an integer field", s.name, f.Name)
		}
		if col.Generated && f.Type != uuidType {
			return fmt.Errorf("type %s field %s: generated requires a uuid.UUID field", s.name, f.Name)
		}
		if tag.fkNav != "" {
			s.fkTagged[tag.fkNav] = append(s.fkTagged[tag.fkNav], col)
		}
		s.columns = append(s.columns, col)
	}
	return nil
}

// resolveKey picks the primary key from key tags or naming conventions
func (s *shape) resolveKey() error {
	for _, c := range s.columns {
		if c.Key {
			s.pk = append(s.pk, c)
		}
	}

	if len(s.pk) == 0 {
		for _, candidate := range []string{"ID", "Id", s.simple + "ID", s.simple + "Id"} {
			if c, ok := s.column(candidate); ok && c.Field == candidate {
				c.Key = true
				switch {
				case isInteger(c.Type):
					c.Identity = true
				case c.Type == uuidType:
					c.Generated = true
				}
				s.pk = []*Column{c}
				break
			}
		}
	}
	if len(s.pk) == 0 {
		return fmt.Errorf("type %s has no primary key: tag a member with db:\",key\" or name it ID", s.name)
	}

	for _, c := range s.pk {
		c.Required = true
	}
	if len(s.pk) == 1 {
		return nil
	}

	for _, c := range s.pk {
		if c.KeyOrder == 0 || c.Identity {
			return ormerrors.AmbiguousCompositeKey(s.name)
		}
	}
	if err := sortByOrder(s.pk); err != nil {
		return ormerrors.AmbiguousCompositeKey(s.name)
	}
	return nil
}

// sortByOrder sorts columns by explicit ordinal, rejecting duplicates
func sortByOrder(cols []*Column) error {
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].KeyOrder < cols[j].KeyOrder })
	for i := 1; i < len(cols); i++ {
		if cols[i].KeyOrder == cols[i-1].KeyOrder {
			return fmt.Errorf("duplicate order %d", cols[i].KeyOrder)
		}
	}
	return nil
}

func parseColumnTag(tag string) (columnTag, error) {
	var ct columnTag
	if tag == "" {
		return ct, nil
	}
	parts := strings.Split(tag, ",")
	ct.name = strings.TrimSpace(parts[0])
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "key":
			ct.key = true
		case "identity":
			ct.identity = true
		case "generated":
			ct.generated = true
		case "required":
			ct.required = true
		case "order":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return ct, fmt.Errorf("invalid order %q: must be a positive integer", value)
			}
			ct.order = n
		case "fk":
			if value == "" {
				return ct, fmt.Errorf("fk option needs a navigation name")
			}
			ct.fkNav = value
		case "":
		default:
			return ct, fmt.Errorf("unknown db tag option %q", opt)
		}
	}
	return ct, nil
}

func parseRelTag(nav *navDecl, tag string) error {
	if tag == "" {
		return nil
	}
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "fk":
			if value == "" {
				return fmt.Errorf("fk option needs a member name")
			}
			nav.fkMember = value
		case "dependent":
			nav.dependent = true
		case "":
		default:
			return fmt.Errorf("unknown rel tag option %q", opt)
		}
	}
	if nav.collection && nav.dependent {
		return fmt.Errorf("a collection navigation cannot be the dependent side")
	}
	return nil
}

// navigationTarget reports whether t references another entity type
func navigationTarget(t reflect.Type) (related reflect.Type, collection, pointer, ok bool) {
	switch t.Kind() {
	case reflect.Ptr:
		if isEntityStruct(t.Elem()) {
			return t.Elem(), false, true, true
		}
	case reflect.Slice:
		elem := t.Elem()
		if elem.Kind() == reflect.Ptr && isEntityStruct(elem.Elem()) {
			return elem.Elem(), true, true, true
		}
		if isEntityStruct(elem) {
			return elem, true, false, true
		}
	}
	return nil, false, false, false
}

func isEntityStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && !isScalarStruct(t)
}

// isScalarStruct reports struct types stored in a single column
func isScalarStruct(t reflect.Type) bool {
	return t == timeType ||
		t.Implements(valuerType) ||
		reflect.PointerTo(t).Implements(scannerType)
}

func isRequiredType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Float32, reflect.Float64:
		return true
	case reflect.Array:
		return t == uuidType
	case reflect.Struct:
		return t == timeType
	}
	return isInteger(t)
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func tableName(t reflect.Type) string {
	if reflect.PointerTo(t).Implements(tablerType) {
		if name := reflect.New(t).Interface().(Tabler).TableName(); name != "" {
			return name
		}
	}
	return inflect.Pluralize(t.Name())
}
