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

// segment is the slice of a select list mapped to one entity
type segment struct {
	meta   *schema.EntityMetadata
	nav    *schema.Navigation // nil for the root
	offset int
}

// projection is the select list of an entity and its joined one-to-one
// navigations
type projection struct {
	segments []segment
	columns  []string
	joins    []query.Join
	tables   []string
}

// project builds the select list of meta aliased t0. One-to-one navigations
// whose tables exist are left joined one level deep.
func (e *Executor) project(ctx context.Context, q transaction.Querier, meta *schema.EntityMetadata) (*projection, error) {
	p := &projection{}
	p.add(e, meta, nil, "t0")

	for _, name := range meta.NavOrder {
		nav := meta.Navigations[name]
		if nav.Cardinality != schema.OneToOne || nav.Collection || nav.Related == meta.Type {
			continue
		}
		related, err := e.registry.Resolve(nav.Related)
		if err != nil {
			return nil, err
		}
		exists, err := e.schema.ValidateSchema(ctx, q, related)
		if err != nil {
			return nil, e.uow.Observe(err)
		}
		if !exists {
			continue
		}

		alias := fmt.Sprintf("t%d", len(p.segments))
		p.joins = append(p.joins, query.Join{
			Type:      query.LeftJoin,
			Table:     related.Table,
			Alias:     alias,
			Condition: e.joinCondition(nav, "t0", alias),
		})
		p.add(e, related, nav, alias)
	}
	return p, nil
}

func (p *projection) add(e *Executor, meta *schema.EntityMetadata, nav *schema.Navigation, alias string) {
	p.segments = append(p.segments, segment{meta: meta, nav: nav, offset: len(p.columns)})
	for _, c := range meta.Columns {
		p.columns = append(p.columns, query.Qualify(e.dialect, alias, c.Name))
	}
	p.tables = append(p.tables, meta.Table)
}

// joinCondition equates the foreign key of nav with the key it references
func (e *Executor) joinCondition(nav *schema.Navigation, root, alias string) string {
	fk := nav.ForeignKey
	depAlias, prinAlias := root, alias
	if nav.Principal == schema.PrincipalSelf {
		depAlias, prinAlias = alias, root
	}
	parts := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		parts[i] = query.Qualify(e.dialect, depAlias, c.Name) + " = " +
			query.Qualify(e.dialect, prinAlias, fk.References[i].Name)
	}
	return strings.Join(parts, " AND ")
}

// materialize builds one entity per row, attaching joined navigations whose
// key columns are not all NULL
func (p *projection) materialize(rs [][]any) ([]reflect.Value, error) {
	root := p.segments[0].meta
	out := make([]reflect.Value, 0, len(rs))
	for _, row := range rs {
		ptr := reflect.New(root.Type)
		if err := scanEntity(ptr.Elem(), root.Columns, row[:len(root.Columns)]); err != nil {
			return nil, fmt.Errorf("materializing %s: %w", root.TypeName, err)
		}

		for _, s := range p.segments[1:] {
			values := row[s.offset : s.offset+len(s.meta.Columns)]
			if !segmentPresent(s.meta, values) {
				continue
			}
			related := reflect.New(s.meta.Type)
			if err := scanEntity(related.Elem(), s.meta.Columns, values); err != nil {
				return nil, fmt.Errorf("materializing %s: %w", s.meta.TypeName, err)
			}
			ptr.Elem().FieldByIndex(s.nav.Index).Set(related)
		}
		out = append(out, ptr)
	}
	return out, nil
}

func segmentPresent(meta *schema.EntityMetadata, values []any) bool {
	for i, c := range meta.Columns {
		if c.Key && values[i] != nil {
			return true
		}
	}
	return false
}

// selection is a compiled select over one entity
type selection struct {
	where  string
	order  string
	paging string
	args   *query.Args
}

// run executes a selection over meta and returns pointers to new entities,
// with the navigations in fetch loaded
func (e *Executor) run(ctx context.Context, q transaction.Querier, meta *schema.EntityMetadata, s selection, fetch []string) ([]reflect.Value, error) {
	p, err := e.project(ctx, q, meta)
	if err != nil {
		return nil, err
	}

	b := query.Select(e.dialect, meta.Table, "t0", p.columns...).
		Where(s.where).
		OrderBy(s.order).
		Paging(s.paging)
	for _, j := range p.joins {
		b.Join(j)
	}

	rs, err := e.fetch(ctx, q, meta.TypeName, p.tables, b.ToSQL(), s.args.Values())
	if err != nil {
		return nil, err
	}
	items, err := p.materialize(rs.Rows)
	if err != nil {
		return nil, err
	}
	if len(fetch) > 0 && len(items) > 0 {
		if err := e.load(ctx, q, meta, items, fetch); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// compileOptions compiles the filter, sort and paging of opts. take bounds
// the result when opts carries no paging.
func (e *Executor) compileOptions(meta *schema.EntityMetadata, opts *query.Options, stable bool, take int) (selection, error) {
	if opts == nil {
		opts = query.New()
	}
	c := e.compiler(meta, "t0")
	s := selection{args: query.NewArgs(e.dialect)}

	var err error
	if s.where, err = c.Compile(opts.Filter, s.args); err != nil {
		return s, err
	}
	if s.order, err = c.OrderBy(query.EffectiveSort(opts.Sort, meta.KeyNames(), stable)); err != nil {
		return s, err
	}
	switch {
	case opts.Paging != nil:
		if s.paging, err = c.Page(*opts.Paging, s.args); err != nil {
			return s, err
		}
	case take > 0:
		s.paging = c.Take(take, s.args)
	}
	return s, nil
}

// FindAll returns the entities of meta matching opts. Paging implies a
// stable order on the primary key when no sort is given.
func (e *Executor) FindAll(ctx context.Context, meta *schema.EntityMetadata, opts *query.Options) ([]reflect.Value, error) {
	q, exists, err := e.reader(ctx, meta)
	if err != nil || !exists {
		return nil, err
	}
	stable := opts != nil && opts.Paging != nil
	s, err := e.compileOptions(meta, opts, stable, 0)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, q, meta, s, fetchOf(opts))
}

// Find returns the first entity matching opts in its sort order, the
// primary key when none is given, or an invalid value when nothing matches
func (e *Executor) Find(ctx context.Context, meta *schema.EntityMetadata, opts *query.Options) (reflect.Value, error) {
	q, exists, err := e.reader(ctx, meta)
	if err != nil || !exists {
		return reflect.Value{}, err
	}
	var first *query.Options
	if opts != nil {
		first = opts.Clone()
		first.Paging = nil
	}
	s, err := e.compileOptions(meta, first, true, 1)
	if err != nil {
		return reflect.Value{}, err
	}
	items, err := e.run(ctx, q, meta, s, fetchOf(opts))
	if err != nil || len(items) == 0 {
		return reflect.Value{}, err
	}
	return items[0], nil
}

// FindByKey returns the entity with the given key, or an invalid value
func (e *Executor) FindByKey(ctx context.Context, meta *schema.EntityMetadata, key []any, fetch ...string) (reflect.Value, error) {
	q, exists, err := e.reader(ctx, meta)
	if err != nil || !exists {
		return reflect.Value{}, err
	}
	s := selection{args: query.NewArgs(e.dialect)}
	if s.where, err = e.keyCondition(meta, "t0", key, s.args); err != nil {
		return reflect.Value{}, err
	}
	items, err := e.run(ctx, q, meta, s, fetch)
	if err != nil || len(items) == 0 {
		return reflect.Value{}, err
	}
	return items[0], nil
}

// Page returns one page of the entities matching opts and the number of
// matching rows across all pages
func (e *Executor) Page(ctx context.Context, meta *schema.EntityMetadata, opts *query.Options) ([]reflect.Value, int64, error) {
	if opts == nil || opts.Paging == nil {
		return nil, 0, fmt.Errorf("paged read of %s requires paging options", meta.TypeName)
	}
	if err := opts.Paging.Validate(); err != nil {
		return nil, 0, err
	}
	total, err := e.Count(ctx, meta, opts.Filter)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}
	items, err := e.FindAll(ctx, meta, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Count returns the number of rows of meta matching filter
func (e *Executor) Count(ctx context.Context, meta *schema.EntityMetadata, filter query.Expr) (int64, error) {
	q, exists, err := e.reader(ctx, meta)
	if err != nil || !exists {
		return 0, err
	}
	args := query.NewArgs(e.dialect)
	where, err := e.compiler(meta, "t0").Compile(filter, args)
	if err != nil {
		return 0, err
	}
	stmt := query.Select(e.dialect, meta.Table, "t0", "COUNT(*)").Where(where).ToSQL()
	return e.scalar(ctx, q, meta.TypeName, []string{meta.Table}, stmt, args.Values())
}

// Exists reports whether any row of meta matches filter
func (e *Executor) Exists(ctx context.Context, meta *schema.EntityMetadata, filter query.Expr) (bool, error) {
	q, exists, err := e.reader(ctx, meta)
	if err != nil || !exists {
		return false, err
	}
	c := e.compiler(meta, "t0")
	args := query.NewArgs(e.dialect)
	where, err := c.Compile(filter, args)
	if err != nil {
		return false, err
	}
	stmt := query.Select(e.dialect, meta.Table, "t0", "1").
		Where(where).
		Paging(c.Take(1, args)).
		ToSQL()
	rs, err := e.fetch(ctx, q, meta.TypeName, []string{meta.Table}, stmt, args.Values())
	if err != nil {
		return false, err
	}
	return len(rs.Rows) > 0, nil
}

func fetchOf(opts *query.Options) []string {
	if opts == nil {
		return nil
	}
	return opts.Fetch
}
