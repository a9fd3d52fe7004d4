package crud

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/ormerrors"
	"github.com/reposit-go/reposit/internal/orm/query"
	"github.com/reposit-go/reposit/internal/orm/schema"
)

var uuidType = reflect.TypeOf(uuid.UUID{})

// node is one entity reachable from the roots of an insert
type node struct {
	ptr        reflect.Value
	meta       *schema.EntityMetadata
	persisted  bool // reached through a navigation with its store key already set
	principals []edge
}

// edge links a dependent node to the principal whose key it copies
type edge struct {
	principal *node
	fk        *schema.ForeignKey
}

type nodeKey struct {
	addr uintptr
	typ  reflect.Type
}

// graph collects the entities of an insert and orders them principal first
type graph struct {
	registry *schema.Registry
	nodes    []*node
	index    map[nodeKey]*node
	roots    map[nodeKey]bool
}

func newGraph(r *schema.Registry) *graph {
	return &graph{registry: r, index: make(map[nodeKey]*node), roots: make(map[nodeKey]bool)}
}

func keyOf(ptr reflect.Value) nodeKey {
	return nodeKey{addr: ptr.Pointer(), typ: ptr.Type().Elem()}
}

// visit adds the entity at ptr and everything reachable through its
// populated navigations. Entities reached through a navigation whose
// store-assigned key is set are treated as existing rows unless they are
// also one of the roots.
func (g *graph) visit(ptr reflect.Value) (*node, error) {
	k := keyOf(ptr)
	if n, ok := g.index[k]; ok {
		return n, nil
	}

	meta, err := g.registry.Resolve(k.typ)
	if err != nil {
		return nil, err
	}
	n := &node{ptr: ptr, meta: meta}
	n.persisted = !g.roots[k] && hasStoreKey(meta, ptr.Elem())
	g.index[k] = n
	g.nodes = append(g.nodes, n)
	if n.persisted {
		return n, nil
	}

	v := ptr.Elem()
	for _, name := range meta.NavOrder {
		nav := meta.Navigations[name]
		field := v.FieldByIndex(nav.Index)

		switch {
		case nav.Collection:
			for i := 0; i < field.Len(); i++ {
				el := field.Index(i)
				if nav.Pointer {
					if el.IsNil() {
						continue
					}
				} else {
					el = el.Addr()
				}
				child, err := g.visit(el)
				if err != nil {
					return nil, err
				}
				child.link(n, nav.ForeignKey)
			}
		case field.IsNil():
			continue
		case nav.Principal == schema.PrincipalOther:
			parent, err := g.visit(field)
			if err != nil {
				return nil, err
			}
			n.link(parent, nav.ForeignKey)
		default:
			child, err := g.visit(field)
			if err != nil {
				return nil, err
			}
			child.link(n, nav.ForeignKey)
		}
	}
	return n, nil
}

func (n *node) link(principal *node, fk *schema.ForeignKey) {
	if principal == n {
		return
	}
	for _, e := range n.principals {
		if e.principal == principal && e.fk == fk {
			return
		}
	}
	n.principals = append(n.principals, edge{principal: principal, fk: fk})
}

// order returns the new entities with every principal before its
// dependents, otherwise in discovery order
func (g *graph) order() ([]*node, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*node]int, len(g.nodes))
	out := make([]*node, 0, len(g.nodes))

	var walk func(n *node) error
	walk = func(n *node) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			return ormerrors.AmbiguousPrincipal(n.meta.TypeName, n.meta.TypeName)
		}
		state[n] = visiting
		for _, e := range n.principals {
			if e.principal.persisted {
				continue
			}
			if state[e.principal] == visiting {
				return ormerrors.AmbiguousPrincipal(n.meta.TypeName, e.principal.meta.TypeName)
			}
			if err := walk(e.principal); err != nil {
				return err
			}
		}
		state[n] = done
		if !n.persisted {
			out = append(out, n)
		}
		return nil
	}

	for _, n := range g.nodes {
		if err := walk(n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// hasStoreKey reports whether an identity or generated key is already set
func hasStoreKey(meta *schema.EntityMetadata, v reflect.Value) bool {
	for _, c := range meta.PrimaryKey {
		if (c.Identity || c.Generated) && !v.FieldByIndex(c.Index).IsZero() {
			return true
		}
	}
	return false
}

// Add inserts the entities and every new entity reachable from them, each
// principal before its dependents. Store-assigned keys are written back into
// the entities and propagated to the foreign keys of their dependents.
func (e *Executor) Add(ctx context.Context, entities ...any) error {
	g := newGraph(e.registry)
	ptrs := make([]reflect.Value, len(entities))
	for i, entity := range entities {
		ptr, err := entityValue(entity)
		if err != nil {
			return err
		}
		ptrs[i] = ptr
		g.roots[keyOf(ptr)] = true
	}
	for _, ptr := range ptrs {
		if _, err := g.visit(ptr); err != nil {
			return err
		}
	}

	ordered, err := g.order()
	if err != nil {
		return err
	}
	for _, n := range ordered {
		if err := e.insert(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) insert(ctx context.Context, n *node) error {
	meta := n.meta
	v := n.ptr.Elem()

	for _, ed := range n.principals {
		pv := ed.principal.ptr.Elem()
		for i, c := range ed.fk.Columns {
			ref := pv.FieldByIndex(ed.fk.References[i].Index)
			if err := assign(v.FieldByIndex(c.Index), normalize(ref.Interface())); err != nil {
				return fmt.Errorf("copying key %s of %s: %w", c.Name, meta.TypeName, err)
			}
		}
	}

	if err := e.EnsureTable(ctx, meta); err != nil {
		return err
	}
	w, err := e.uow.Writer(ctx, meta.TypeName)
	if err != nil {
		return err
	}

	var (
		identity *schema.Column
		names    []string
		marks    []string
	)
	args := query.NewArgs(e.dialect)
	for _, c := range meta.Columns {
		f := v.FieldByIndex(c.Index)
		if c.Identity && f.IsZero() {
			identity = c
			continue
		}
		if c.Generated && f.IsZero() && f.Type() == uuidType {
			f.Set(reflect.ValueOf(uuid.New()))
		}
		names = append(names, e.dialect.Quote(c.Name))
		marks = append(marks, args.Add(f.Interface()))
	}

	var stmt strings.Builder
	stmt.WriteString("INSERT INTO ")
	stmt.WriteString(e.dialect.Quote(meta.Table))
	switch {
	case len(names) > 0:
		fmt.Fprintf(&stmt, " (%s) VALUES (%s)", strings.Join(names, ", "), strings.Join(marks, ", "))
	case e.dialect.Name() == dialect.MySQL:
		stmt.WriteString(" () VALUES ()")
	default:
		stmt.WriteString(" DEFAULT VALUES")
	}

	if identity != nil && e.dialect.Returning() {
		stmt.WriteString(" RETURNING ")
		stmt.WriteString(e.dialect.Quote(identity.Name))
		rs, err := e.query(ctx, w, OperationCreate, meta.TypeName, stmt.String(), args.Values())
		if err != nil {
			return err
		}
		if len(rs.Rows) == 0 {
			return fmt.Errorf("insert into %s returned no key", meta.Table)
		}
		if err := assign(v.FieldByIndex(identity.Index), rs.Rows[0][0]); err != nil {
			return err
		}
	} else {
		res, err := e.exec(ctx, w, OperationCreate, meta.TypeName, stmt.String(), args.Values())
		if err != nil {
			return err
		}
		if identity != nil {
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("reading generated key of %s: %w", meta.TypeName, err)
			}
			if err := assign(v.FieldByIndex(identity.Index), id); err != nil {
				return err
			}
		}
	}

	e.uow.MarkWritten(meta.Table)
	return nil
}
