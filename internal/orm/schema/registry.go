package schema

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
)

// Registry resolves and caches entity metadata for the lifetime of the
// process. It is safe for concurrent use; each type is resolved once even
// when several goroutines ask for it at the same time.
type Registry struct {
	mu        sync.RWMutex
	shapes    map[reflect.Type]*shape
	entities  map[reflect.Type]*EntityMetadata
	relations map[[2]reflect.Type]*Relationship
	group     singleflight.Group
}

// NewRegistry creates an empty metadata registry
func NewRegistry() *Registry {
	return &Registry{
		shapes:    make(map[reflect.Type]*shape),
		entities:  make(map[reflect.Type]*EntityMetadata),
		relations: make(map[[2]reflect.Type]*Relationship),
	}
}

// Resolve returns the metadata of t, which must be a struct or pointer to struct
func (r *Registry) Resolve(t reflect.Type) (*EntityMetadata, error) {
	t, err := entityType(t)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	m, ok := r.entities[t]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := r.group.Do(flightKey("entity", t), func() (interface{}, error) {
		r.mu.RLock()
		m, ok := r.entities[t]
		r.mu.RUnlock()
		if ok {
			return m, nil
		}

		s, err := r.shape(t)
		if err != nil {
			return nil, err
		}
		m, err = r.resolveEntity(s)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.entities[t] = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*EntityMetadata), nil
}

// ResolveOf returns the metadata of T
func ResolveOf[T any](r *Registry) (*EntityMetadata, error) {
	return r.Resolve(reflect.TypeOf((*T)(nil)).Elem())
}

// ResolveForeignKey returns the foreign key dependent holds towards
// principal, or nil when it holds none
func (r *Registry) ResolveForeignKey(dependent, principal reflect.Type) (*ForeignKey, error) {
	dep, err := r.shapeOf(dependent)
	if err != nil {
		return nil, err
	}
	p, err := r.shapeOf(principal)
	if err != nil {
		return nil, err
	}
	return inverseForeignKey(dep, p, "")
}

// ResolvePrincipal decides which of a and b is the principal. Exactly one of
// them must hold a foreign key to the other unless a navigation is marked
// explicitly; otherwise the relationship is ambiguous.
func (r *Registry) ResolvePrincipal(a, b reflect.Type) (*Relationship, error) {
	sa, err := r.shapeOf(a)
	if err != nil {
		return nil, err
	}
	sb, err := r.shapeOf(b)
	if err != nil {
		return nil, err
	}

	key := pairKey(sa.typ, sb.typ)
	r.mu.RLock()
	rel, ok := r.relations[key]
	r.mu.RUnlock()
	if ok {
		return rel, nil
	}

	fa, err := inverseForeignKey(sa, sb, "")
	if err != nil {
		return nil, err
	}
	var fb *ForeignKey
	if sa.typ != sb.typ {
		if fb, err = inverseForeignKey(sb, sa, ""); err != nil {
			return nil, err
		}
	}

	switch {
	case fa != nil && fb == nil:
		rel = &Relationship{Principal: sb.typ, Dependent: sa.typ, ForeignKey: fa}
	case fb != nil && fa == nil:
		rel = &Relationship{Principal: sa.typ, Dependent: sb.typ, ForeignKey: fb}
	case fa != nil && fb != nil && hasDependentMarker(sa, sb) != hasDependentMarker(sb, sa):
		if hasDependentMarker(sa, sb) {
			rel = &Relationship{Principal: sb.typ, Dependent: sa.typ, ForeignKey: fa}
		} else {
			rel = &Relationship{Principal: sa.typ, Dependent: sb.typ, ForeignKey: fb}
		}
	default:
		return nil, ormerrors.AmbiguousPrincipal(sa.name, sb.name)
	}

	r.mu.Lock()
	if cached, ok := r.relations[key]; ok {
		rel = cached
	} else {
		r.relations[key] = rel
	}
	r.mu.Unlock()
	return rel, nil
}

// DependencyOrder resolves types and every principal they reach, returning
// them with principals before dependents
func (r *Registry) DependencyOrder(types ...reflect.Type) ([]*EntityMetadata, error) {
	nodes := make(map[reflect.Type]*EntityMetadata)
	var visit func(t reflect.Type) error
	visit = func(t reflect.Type) error {
		m, err := r.Resolve(t)
		if err != nil {
			return err
		}
		if _, seen := nodes[m.Type]; seen {
			return nil
		}
		nodes[m.Type] = m
		for _, fk := range m.ForeignKeys {
			if err := visit(fk.Principal); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range types {
		if err := visit(t); err != nil {
			return nil, err
		}
	}

	return NewDependencyGraph(nodes).TopologicalSort()
}

// Len returns the number of fully resolved types
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

func (r *Registry) shapeOf(t reflect.Type) (*shape, error) {
	t, err := entityType(t)
	if err != nil {
		return nil, err
	}
	return r.shape(t)
}

// shape returns the cached structural description of t
func (r *Registry) shape(t reflect.Type) (*shape, error) {
	r.mu.RLock()
	s, ok := r.shapes[t]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := r.group.Do(flightKey("shape", t), func() (interface{}, error) {
		s, err := buildShape(t)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if cached, ok := r.shapes[t]; ok {
			return cached, nil
		}
		r.shapes[t] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*shape), nil
}

func entityType(t reflect.Type) (reflect.Type, error) {
	if t == nil {
		return nil, fmt.Errorf("entity type cannot be nil")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity type %s must be a struct", t)
	}
	return t, nil
}

func flightKey(kind string, t reflect.Type) string {
	return fmt.Sprintf("%s:%s#%p", kind, t.String(), t)
}

func pairKey(a, b reflect.Type) [2]reflect.Type {
	if ormerrors.TypeName(a) > ormerrors.TypeName(b) {
		return [2]reflect.Type{b, a}
	}
	return [2]reflect.Type{a, b}
}
