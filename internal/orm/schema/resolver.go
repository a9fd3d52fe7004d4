package schema

import (
	"fmt"
	"strings"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
)

// navForeignKey finds the key that dep holds for its reference navigation nav
// to p. explicit reports that the key was declared rather than found by
// naming convention. A nil key with a nil error means dep holds no key.
func navForeignKey(dep *shape, nav *navDecl, p *shape) (fk *ForeignKey, explicit bool, err error) {
	var cols []*Column

	switch {
	case nav.fkMember != "":
		c, ok := dep.column(nav.fkMember)
		if !ok {
			return nil, true, ormerrors.ForeignKeyMemberMissing(nav.fkMember, dep.name)
		}
		cols = []*Column{c}
		explicit = true

	case len(dep.fkTagged[nav.name]) > 0:
		cols = append(cols, dep.fkTagged[nav.name]...)
		if len(cols) > 1 {
			for _, c := range cols {
				if c.KeyOrder == 0 {
					return nil, true, ormerrors.AmbiguousCompositeKey(dep.name)
				}
			}
			if err := sortByOrder(cols); err != nil {
				return nil, true, ormerrors.AmbiguousCompositeKey(dep.name)
			}
		}
		explicit = true

	case nav.dependent:
		cols = append(cols, dep.pk...)
		explicit = true

	default:
		cols = conventionalKey(dep, p, nav.name)
		if cols == nil {
			return nil, false, nil
		}
	}

	fk, err = newForeignKey(dep, p, nav.name, cols)
	return fk, explicit, err
}

// inverseForeignKey finds the key dep holds towards p when the navigation is
// declared on p. member is the rel:"fk=" override of p's navigation, if any.
func inverseForeignKey(dep *shape, p *shape, member string) (*ForeignKey, error) {
	if member != "" {
		c, ok := dep.column(member)
		if !ok {
			return nil, ormerrors.ForeignKeyMemberMissing(member, dep.name)
		}
		for _, nav := range dep.navs {
			if nav.related == p.typ && !nav.collection {
				if fk, _, err := navForeignKey(dep, nav, p); err == nil && fk != nil &&
					len(fk.Columns) == 1 && fk.Columns[0] == c {
					return fk, nil
				}
			}
		}
		return newForeignKey(dep, p, "", []*Column{c})
	}

	var found []*ForeignKey
	for _, nav := range dep.navs {
		if nav.related != p.typ || nav.collection {
			continue
		}
		fk, _, err := navForeignKey(dep, nav, p)
		if err != nil {
			return nil, err
		}
		if fk != nil {
			found = append(found, fk)
		}
	}

	switch len(found) {
	case 0:
		cols := conventionalKey(dep, p, "")
		if cols == nil {
			return nil, nil
		}
		return newForeignKey(dep, p, "", cols)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("type %s holds %d foreign keys to %s: name one with rel:\"fk=<Member>\"",
			dep.name, len(found), p.name)
	}
}

// conventionalKey matches {Navigation}ID, {Principal}ID and their Id forms
// against a single-column principal key
func conventionalKey(dep *shape, p *shape, navName string) []*Column {
	if len(p.pk) != 1 {
		return nil
	}
	var candidates []string
	if navName != "" {
		candidates = append(candidates, navName+"ID", navName+"Id")
	}
	candidates = append(candidates, p.simple+"ID", p.simple+"Id")
	for _, name := range candidates {
		for _, c := range dep.columns {
			if c.Field == name && (dep.typ != p.typ || !c.Key) {
				return []*Column{c}
			}
		}
	}
	return nil
}

func newForeignKey(dep *shape, p *shape, navName string, cols []*Column) (*ForeignKey, error) {
	if len(cols) != len(p.pk) {
		return nil, fmt.Errorf("foreign key %s on type %s has %d columns but the key of %s has %d",
			strings.Join(columnNames(cols), ", "), dep.name, len(cols), p.name, len(p.pk))
	}
	required := true
	for _, c := range cols {
		required = required && c.Required
	}
	return &ForeignKey{
		Name:       fmt.Sprintf("FK_%s_%s_%s", dep.table, p.table, strings.Join(columnNames(cols), "_")),
		Navigation: navName,
		Dependent:  dep.typ,
		Principal:  p.typ,
		Table:      p.table,
		Columns:    cols,
		References: p.pk,
		Required:   required,
	}, nil
}

// hasDependentMarker reports whether dep marks a navigation to p as dependent
func hasDependentMarker(dep *shape, p *shape) bool {
	for _, nav := range dep.navs {
		if nav.related == p.typ && (nav.dependent || nav.fkMember != "" || len(dep.fkTagged[nav.name]) > 0) {
			return true
		}
	}
	return false
}

// resolveNavigation decides direction and cardinality of one navigation of s
func (r *Registry) resolveNavigation(s *shape, nav *navDecl) (*Navigation, error) {
	other, err := r.shape(nav.related)
	if err != nil {
		return nil, fmt.Errorf("navigation %s on type %s: %w", nav.name, s.name, err)
	}

	out := &Navigation{
		Name:       nav.name,
		Index:      nav.index,
		Related:    nav.related,
		Collection: nav.collection,
		Pointer:    nav.pointer,
	}

	if nav.collection {
		fk, err := inverseForeignKey(other, s, nav.fkMember)
		if err != nil {
			return nil, err
		}
		if fk == nil {
			return nil, ormerrors.AmbiguousPrincipal(s.name, other.name)
		}
		if fk.IsPrimaryKey(other.pk) {
			return nil, fmt.Errorf("collection navigation %s on type %s targets a one-to-one relationship with %s",
				nav.name, s.name, other.name)
		}
		out.Cardinality = OneToMany
		out.Principal = PrincipalSelf
		out.ForeignKey = fk
		return out, nil
	}

	own, explicit, err := navForeignKey(s, nav, other)
	if err != nil {
		return nil, err
	}

	var inverse *ForeignKey
	if other.typ != s.typ {
		inverse, err = inverseForeignKey(other, s, "")
		if err != nil {
			return nil, err
		}
	}

	switch {
	case own != nil && (inverse == nil || explicit):
		out.Principal = PrincipalOther
		out.ForeignKey = own
		out.Cardinality = ManyToOne
		if own.IsPrimaryKey(s.pk) {
			out.Cardinality = OneToOne
		}
		return out, nil

	case own == nil && inverse != nil:
		if !inverse.IsPrimaryKey(other.pk) {
			return nil, fmt.Errorf("reference navigation %s on type %s points at the many side of its relationship with %s; declare it as a slice",
				nav.name, s.name, other.name)
		}
		out.Principal = PrincipalSelf
		out.ForeignKey = inverse
		out.Cardinality = OneToOne
		return out, nil

	default:
		return nil, ormerrors.AmbiguousPrincipal(s.name, other.name)
	}
}

// resolveEntity builds the full metadata of s from its own shape and the
// shapes of its neighbours
func (r *Registry) resolveEntity(s *shape) (*EntityMetadata, error) {
	m := &EntityMetadata{
		Type:        s.typ,
		TypeName:    s.name,
		Table:       s.table,
		Columns:     s.columns,
		PrimaryKey:  s.pk,
		ForeignKeys: make(map[string]*ForeignKey),
		Navigations: make(map[string]*Navigation, len(s.navs)),
	}

	for _, decl := range s.navs {
		nav, err := r.resolveNavigation(s, decl)
		if err != nil {
			return nil, err
		}
		m.Navigations[nav.Name] = nav
		m.NavOrder = append(m.NavOrder, nav.Name)
		if nav.Principal == PrincipalOther {
			m.ForeignKeys[nav.Name] = nav.ForeignKey
		}
	}

	m.index()
	return m, nil
}
