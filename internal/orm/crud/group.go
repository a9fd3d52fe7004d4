package crud

import (
	"context"
	"reflect"

	"github.com/reposit-go/reposit/internal/orm/query"
	"github.com/reposit-go/reposit/internal/orm/schema"
	"github.com/reposit-go/reposit/internal/orm/transaction"
)

// GroupRow is one group of a grouped read: the key value converted to the
// key member's type, the number of matching rows and the matching entities
type GroupRow struct {
	Key   reflect.Value
	Count int64
	Items []reflect.Value
}

// GroupRows groups the entities of meta matching opts.Filter by the opts.Key
// member. Groups are ordered by key and paged as units; total is the number
// of groups across all pages. A NULL key forms its own group, holding the
// zero value of the key type.
func (e *Executor) GroupRows(ctx context.Context, meta *schema.EntityMetadata, opts query.GroupOptions) ([]GroupRow, int64, error) {
	q, exists, err := e.reader(ctx, meta)
	if err != nil || !exists {
		return nil, 0, err
	}

	c := e.compiler(meta, "t0")
	keyRef, err := c.Column(opts.Key)
	if err != nil {
		return nil, 0, err
	}
	keyCol, _ := meta.Column(opts.Key)
	order, err := c.OrderBy([]query.SortKey{{Member: keyCol.Name, Desc: opts.Desc}})
	if err != nil {
		return nil, 0, err
	}

	args := query.NewArgs(e.dialect)
	where, err := c.Compile(opts.Filter, args)
	if err != nil {
		return nil, 0, err
	}
	b := query.Select(e.dialect, meta.Table, "t0", keyRef.SQL, "COUNT(*)").
		Where(where).
		GroupBy(keyRef.SQL).
		OrderBy(order)
	if opts.Paging != nil {
		clause, err := c.Page(*opts.Paging, args)
		if err != nil {
			return nil, 0, err
		}
		b.Paging(clause)
	}

	tables := []string{meta.Table}
	rs, err := e.fetch(ctx, q, meta.TypeName, tables, b.ToSQL(), args.Values())
	if err != nil {
		return nil, 0, err
	}

	groups := make([]GroupRow, len(rs.Rows))
	tuples := make([][]any, len(rs.Rows))
	index := make(map[string]int, len(rs.Rows))
	for i, row := range rs.Rows {
		key := reflect.New(keyCol.Type).Elem()
		if err := assign(key, row[0]); err != nil {
			return nil, 0, err
		}
		var count int64
		if err := assign(reflect.ValueOf(&count).Elem(), row[1]); err != nil {
			return nil, 0, err
		}
		groups[i] = GroupRow{Key: key, Count: count}
		tuples[i] = []any{normalize(row[0])}
		if _, dup := index[keyString(key.Interface())]; !dup {
			index[keyString(key.Interface())] = i
		}
	}

	total := int64(len(groups))
	if opts.Paging != nil {
		if total, err = e.countGroups(ctx, q, meta, c, keyRef.SQL, opts.Filter); err != nil {
			return nil, 0, err
		}
	}
	if len(groups) == 0 {
		return nil, total, nil
	}

	// members of the page's groups, in key then primary key order
	s := selection{args: query.NewArgs(e.dialect)}
	filter, err := c.Compile(opts.Filter, s.args)
	if err != nil {
		return nil, 0, err
	}
	s.where = c.KeysIn([]string{keyRef.SQL}, tuples, s.args)
	if filter != "1=1" {
		s.where = "(" + filter + ") AND " + s.where
	}
	sort := append([]query.SortKey{{Member: keyCol.Name, Desc: opts.Desc}}, query.EffectiveSort(nil, meta.KeyNames(), true)...)
	if s.order, err = c.OrderBy(sort); err != nil {
		return nil, 0, err
	}

	items, err := e.run(ctx, q, meta, s, nil)
	if err != nil {
		return nil, 0, err
	}
	for _, it := range items {
		k := keyString(it.Elem().FieldByIndex(keyCol.Index).Interface())
		if i, ok := index[k]; ok {
			groups[i].Items = append(groups[i].Items, it)
		}
	}
	return groups, total, nil
}

func (e *Executor) countGroups(ctx context.Context, q transaction.Querier, meta *schema.EntityMetadata, c *query.Compiler, keySQL string, filter query.Expr) (int64, error) {
	args := query.NewArgs(e.dialect)
	where, err := c.Compile(filter, args)
	if err != nil {
		return 0, err
	}
	inner := query.Select(e.dialect, meta.Table, "t0", keySQL).
		Where(where).
		GroupBy(keySQL).
		ToSQL()
	stmt := "SELECT COUNT(*) FROM (" + inner + ") g"
	return e.scalar(ctx, q, meta.TypeName, []string{meta.Table}, stmt, args.Values())
}
