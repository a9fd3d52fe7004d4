package crud

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/reposit-go/reposit/internal/orm/query"
	"github.com/reposit-go/reposit/internal/orm/schema"
	"github.com/reposit-go/reposit/internal/orm/transaction"
)

// fetchBatchSize bounds the key tuples bound into one navigation query
const fetchBatchSize = 500

// includeTree is a set of dot-separated navigation paths split per level
type includeTree struct {
	order    []string
	children map[string][]string
}

func parseIncludes(paths []string) includeTree {
	t := includeTree{children: make(map[string][]string)}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		head, rest, _ := strings.Cut(path, ".")
		if _, seen := t.children[head]; !seen {
			t.order = append(t.order, head)
			t.children[head] = nil
		}
		if rest != "" {
			t.children[head] = append(t.children[head], rest)
		}
	}
	return t
}

// load populates the navigations named by paths on items, which are
// pointers to entities of meta. Each navigation level costs one query per
// batch of keys.
func (e *Executor) load(ctx context.Context, q transaction.Querier, meta *schema.EntityMetadata, items []reflect.Value, paths []string) error {
	tree := parseIncludes(paths)
	for _, name := range tree.order {
		nav, ok := meta.Navigations[name]
		if !ok {
			return fmt.Errorf("type %s has no navigation %q", meta.TypeName, name)
		}
		related, err := e.registry.Resolve(nav.Related)
		if err != nil {
			return err
		}

		loaded, err := e.loadNavigation(ctx, q, meta, related, nav, items)
		if err != nil {
			return fmt.Errorf("loading %s.%s: %w", meta.TypeName, name, err)
		}
		if sub := tree.children[name]; len(sub) > 0 && len(loaded) > 0 {
			if err := e.load(ctx, q, related, loaded, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadNavigation fills nav on every item and returns the related entities
// it attached
func (e *Executor) loadNavigation(ctx context.Context, q transaction.Querier, meta, related *schema.EntityMetadata, nav *schema.Navigation, items []reflect.Value) ([]reflect.Value, error) {
	if nav.Cardinality == schema.OneToOne && !nav.Collection && nav.Related != meta.Type {
		// materialized by the join of every select
		return attached(items, nav), nil
	}

	exists, err := e.schema.ValidateSchema(ctx, q, related)
	if err != nil {
		return nil, e.uow.Observe(err)
	}
	if !exists {
		return nil, nil
	}

	fk := nav.ForeignKey
	// local columns of items, remote columns of related rows
	local, remote := fk.References, fk.Columns
	if nav.Principal == schema.PrincipalOther {
		local, remote = fk.Columns, fk.References
	}

	var (
		tuples [][]any
		seen   = make(map[string]bool)
	)
	for _, it := range items {
		t := keyValues(it, local)
		k := tupleKey(t)
		if hasNull(t) || seen[k] {
			continue
		}
		seen[k] = true
		tuples = append(tuples, t)
	}

	buckets := make(map[string][]reflect.Value)
	var all []reflect.Value
	for start := 0; start < len(tuples); start += fetchBatchSize {
		end := min(start+fetchBatchSize, len(tuples))
		rows, err := e.selectKeysIn(ctx, q, related, remote, tuples[start:end])
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			k := tupleKey(keyValues(r, remote))
			buckets[k] = append(buckets[k], r)
		}
		all = append(all, rows...)
	}

	if !nav.Collection {
		for _, it := range items {
			if matches := buckets[tupleKey(keyValues(it, local))]; len(matches) > 0 {
				it.Elem().FieldByIndex(nav.Index).Set(matches[0])
			}
		}
		return all, nil
	}

	// value collections hold copies, so nested paths load into the slice
	// elements rather than the scanned rows
	var out []reflect.Value
	for _, it := range items {
		field := it.Elem().FieldByIndex(nav.Index)
		matches := buckets[tupleKey(keyValues(it, local))]
		slice := reflect.MakeSlice(field.Type(), len(matches), len(matches))
		for i, m := range matches {
			if nav.Pointer {
				slice.Index(i).Set(m)
				out = append(out, m)
			} else {
				slice.Index(i).Set(m.Elem())
				out = append(out, slice.Index(i).Addr())
			}
		}
		field.Set(slice)
	}
	return out, nil
}

// selectKeysIn reads the rows of meta whose columns match one of tuples, in
// primary key order
func (e *Executor) selectKeysIn(ctx context.Context, q transaction.Querier, meta *schema.EntityMetadata, cols []*schema.Column, tuples [][]any) ([]reflect.Value, error) {
	c := e.compiler(meta, "t0")
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = query.Qualify(e.dialect, "t0", col.Name)
	}

	s := selection{args: query.NewArgs(e.dialect)}
	s.where = c.KeysIn(names, tuples, s.args)
	order, err := c.OrderBy(query.EffectiveSort(nil, meta.KeyNames(), true))
	if err != nil {
		return nil, err
	}
	s.order = order
	return e.run(ctx, q, meta, s, nil)
}

// attached collects the non-nil targets of a reference navigation
func attached(items []reflect.Value, nav *schema.Navigation) []reflect.Value {
	var out []reflect.Value
	for _, it := range items {
		f := it.Elem().FieldByIndex(nav.Index)
		if !f.IsNil() {
			out = append(out, f)
		}
	}
	return out
}
