package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposit-go/reposit/internal/orm/dialect"
)

func TestOrderBy(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	clause, err := c.OrderBy([]SortKey{{Member: "Name"}, {Member: "Id", Desc: true}})
	require.NoError(t, err)
	assert.Equal(t, `ORDER BY t0."Name" ASC, t0."Id" DESC`, clause)

	clause, err = c.OrderBy(nil)
	require.NoError(t, err)
	assert.Empty(t, clause)

	_, err = c.OrderBy([]SortKey{{Member: "Nope"}})
	assert.Error(t, err)
}

func TestEffectiveSort(t *testing.T) {
	explicit := []SortKey{{Member: "Name"}}
	assert.Equal(t, explicit, EffectiveSort(explicit, []string{"Id"}, true))
	assert.Nil(t, EffectiveSort(nil, []string{"Id"}, false))
	assert.Equal(t,
		[]SortKey{{Member: "OrderNo"}, {Member: "LineNo"}},
		EffectiveSort(nil, []string{"OrderNo", "LineNo"}, true))
}

func TestPage(t *testing.T) {
	tests := []struct {
		dialect string
		sql     string
		args    []any
	}{
		{dialect.SQLite, "LIMIT ? OFFSET ?", []any{5, 10}},
		{dialect.Postgres, "OFFSET $1 ROWS FETCH NEXT $2 ROWS ONLY", []any{10, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			c := newCompiler(t, tt.dialect)
			args := NewArgs(c.Dialect())
			clause, err := c.Page(Paging{Index: 3, Size: 5}, args)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, clause)
			assert.Equal(t, tt.args, args.Values())
		})
	}

	c := newCompiler(t, dialect.SQLite)
	_, err := c.Page(Paging{Index: 0, Size: 5}, NewArgs(c.Dialect()))
	assert.ErrorContains(t, err, "page index")
	_, err = c.Page(Paging{Index: 1, Size: 0}, NewArgs(c.Dialect()))
	assert.ErrorContains(t, err, "page size")
}

func TestKeysIn(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	args := NewArgs(c.Dialect())
	assert.Equal(t, "a IN (?, ?)", c.KeysIn([]string{"a"}, [][]any{{1}, {2}}, args))
	assert.Equal(t, []any{1, 2}, args.Values())

	args = NewArgs(c.Dialect())
	assert.Equal(t, "(a IN (?) OR a IS NULL)", c.KeysIn([]string{"a"}, [][]any{{1}, {nil}}, args))

	args = NewArgs(c.Dialect())
	assert.Equal(t, "((a = ? AND b = ?) OR (a = ? AND b = ?))",
		c.KeysIn([]string{"a", "b"}, [][]any{{1, 2}, {3, 4}}, args))
	assert.Equal(t, []any{1, 2, 3, 4}, args.Values())

	assert.Equal(t, "1=0", c.KeysIn([]string{"a"}, nil, NewArgs(c.Dialect())))
}

func TestSelectBuilder(t *testing.T) {
	d, _ := dialect.Get(dialect.SQLite)

	sql := Select(d, "Customers", "t0", `t0."Id"`, `t0."Name"`).
		Join(Join{Type: LeftJoin, Table: "Profiles", Alias: "t1", Condition: `t1."Id" = t0."Id"`}).
		Where(`t0."Id" > ?`).
		OrderBy(`ORDER BY t0."Id" ASC`).
		Paging("LIMIT ? OFFSET ?").
		ToSQL()

	assert.Equal(t,
		`SELECT t0."Id", t0."Name" FROM "Customers" t0 LEFT JOIN "Profiles" t1 ON t1."Id" = t0."Id" WHERE t0."Id" > ? ORDER BY t0."Id" ASC LIMIT ? OFFSET ?`,
		sql)

	count := Select(d, "Customers", "t0", "COUNT(*)").Where("1=1").ToSQL()
	assert.Equal(t, `SELECT COUNT(*) FROM "Customers" t0`, count)
}

func TestOptionsBuilder(t *testing.T) {
	o := New().
		Where(Field("Id").Gt(1)).
		Where(Field("Id").Lt(5)).
		OrderBy("Name").
		OrderByDesc("Id").
		Page(2, 10).
		Include("Orders", "Orders.Lines")

	_, ok := o.Filter.(*Binary)
	assert.True(t, ok)
	assert.Len(t, o.Sort, 2)
	assert.Equal(t, &Paging{Index: 2, Size: 10}, o.Paging)
	assert.Equal(t, []string{"Orders", "Orders.Lines"}, o.Fetch)

	clone := o.Clone()
	clone.Paging.Index = 9
	clone.Sort[0].Desc = true
	assert.Equal(t, 2, o.Paging.Index)
	assert.False(t, o.Sort[0].Desc)

	page := Page[int]{Total: 21, Size: 5}
	assert.Equal(t, 5, page.Pages())
}
