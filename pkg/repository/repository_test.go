package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type Customer struct {
	Id     int
	Name   string
	Orders []*Order
}

type Order struct {
	Id         int
	CustomerId int
	Customer   *Customer
	Total      float64
	Status     string
}

type Shipment struct {
	Warehouse int    `db:",key,order=1"`
	Number    int    `db:",key,order=2"`
	Carrier   string `db:",required"`
}

type Ledger struct {
	Id    int
	Left  int `db:",key"`
	Right int `db:",key"`
}

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), Descriptor{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "store.db"),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func begin(t *testing.T, s *Store) *Context {
	t.Helper()
	c, err := s.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { c.Dispose() })
	return c
}

func customers(t *testing.T, c *Context) *Repository[Customer] {
	t.Helper()
	r, err := For[Customer](c)
	require.NoError(t, err)
	return r
}

func TestCustomerScenario(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := begin(t, s)
	repo := customers(t, c)
	for i := 1; i <= 4; i++ {
		name := fmt.Sprintf("Random Name %d", i)
		if i == 3 {
			name = "Test Name 3"
		}
		require.NoError(t, repo.Add(ctx, &Customer{Id: i, Name: name}))
	}
	require.NoError(t, c.Commit(ctx))

	c = begin(t, s)
	repo = customers(t, c)

	found, err := repo.Find(ctx, Field("Id").Gt(1).And(Field("Id").Lt(3)))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 2, found.Id)

	all, err := repo.FindAll(ctx, Field("Name").Contains("Test"))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 3, all[0].Id)

	missing, err := repo.Find(ctx, Field("Id").Gt(10))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPaginationCoverage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, func(ctx context.Context, c *Context) error {
		repo, err := For[Customer](c)
		if err != nil {
			return err
		}
		batch := make([]*Customer, 21)
		for i := range batch {
			batch[i] = &Customer{Name: fmt.Sprintf("customer %02d", i+1)}
		}
		return repo.AddRange(ctx, batch)
	}))

	repo := customers(t, begin(t, s))
	last := 0
	for index := 1; index <= 5; index++ {
		page, err := repo.Page(ctx, Query().OrderBy("Id").Page(index, 5))
		require.NoError(t, err)
		assert.EqualValues(t, 21, page.Total)
		assert.Equal(t, 5, page.Pages())

		want := 5
		if index == 5 {
			want = 1
		}
		require.Len(t, page.Items, want)
		for _, item := range page.Items {
			assert.Greater(t, item.Id, last)
			last = item.Id
		}
	}
	assert.Equal(t, 21, last)
}

func TestRollbackOnDispose(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	const n = 3

	c := begin(t, s)
	repo := customers(t, c)
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Add(ctx, &Customer{Name: "discarded"}))
	}
	require.NoError(t, c.Dispose())
	assert.Equal(t, StateRolledBack, c.State())

	count, err := customers(t, begin(t, s)).Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	c = begin(t, s)
	repo = customers(t, c)
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Add(ctx, &Customer{Name: "kept"}))
	}
	require.NoError(t, c.Commit(ctx))
	require.NoError(t, c.Dispose())

	count, err = customers(t, begin(t, s)).Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
}

func TestCompositeKeyRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, func(ctx context.Context, c *Context) error {
		repo, err := For[Shipment](c)
		if err != nil {
			return err
		}
		return repo.Add(ctx, &Shipment{Warehouse: 10, Number: 20, Carrier: "post"})
	}))

	repo, err := For[Shipment](begin(t, s))
	require.NoError(t, err)

	got, err := repo.Get(ctx, []any{10, 20})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "post", got.Carrier)

	swapped, err := repo.Get(ctx, []any{20, 10})
	require.NoError(t, err)
	assert.Nil(t, swapped)

	_, err = repo.Get(ctx, []any{10})
	assert.Error(t, err)
}

func TestAmbiguousCompositeKey(t *testing.T) {
	s := openStore(t)
	_, err := For[Ledger](begin(t, s))
	assert.ErrorIs(t, err, ErrAmbiguousCompositeKeyOrdering)
}

func TestForeignKeyViolation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := begin(t, s)
	orders, err := For[Order](c)
	require.NoError(t, err)

	err = orders.Add(ctx, &Order{CustomerId: 999, Total: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignKeyViolation)

	var classified *Error
	require.True(t, errors.As(err, &classified))
	assert.Contains(t, classified.Type, "Order")
}

func TestUpdateDeleteNotFound(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := begin(t, s)
	repo := customers(t, c)
	require.NoError(t, repo.Add(ctx, &Customer{Name: "a"}))

	assert.ErrorIs(t, repo.Update(ctx, &Customer{Id: 50}), ErrEntityNotFound)
	assert.ErrorIs(t, repo.DeleteByKey(ctx, 50), ErrEntityNotFound)

	ok, err := repo.TryDelete(ctx, &Customer{Id: 1})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFinalizedContext(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := begin(t, s)
	repo := customers(t, c)
	require.NoError(t, c.Commit(ctx))
	assert.Equal(t, StateCommitted, c.State())

	assert.ErrorIs(t, repo.Add(ctx, &Customer{Name: "late"}), ErrContextFinalized)
	_, err := repo.Count(ctx, nil)
	assert.ErrorIs(t, err, ErrContextFinalized)
	_, err = c.ExecuteSQLCommand(ctx, "DELETE FROM Customers")
	assert.ErrorIs(t, err, ErrContextFinalized)
	assert.ErrorIs(t, c.Commit(ctx), ErrContextFinalized)
}

func seedOrders(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.Do(context.Background(), func(ctx context.Context, c *Context) error {
		repo, err := For[Customer](c)
		if err != nil {
			return err
		}
		return repo.Add(ctx,
			&Customer{Name: "ann", Orders: []*Order{{Total: 10, Status: "open"}, {Total: 5, Status: "paid"}}},
			&Customer{Name: "bob", Orders: []*Order{{Total: 7, Status: "paid"}}},
			&Customer{Name: "cy", Orders: []*Order{{Total: 1, Status: "paid"}, {Total: 2, Status: "open"}, {Total: 3, Status: "paid"}}},
		)
	}))
}

func TestGroupBy(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedOrders(t, s)

	orders, err := For[Order](begin(t, s))
	require.NoError(t, err)

	groups, err := GroupBy[string](ctx, orders, GroupOptions{Key: "Status"})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "open", groups[0].Key)
	assert.EqualValues(t, 2, groups[0].Count)
	assert.Equal(t, "paid", groups[1].Key)
	assert.Len(t, groups[1].Items, 4)

	totals, err := GroupBySelect(ctx, orders, GroupOptions{Key: "CustomerId", Filter: Field("Status").Eq("paid")},
		func(customer int64, items []*Order) string {
			sum := 0.0
			for _, o := range items {
				sum += o.Total
			}
			return fmt.Sprintf("%d:%g", customer, sum)
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"1:5", "2:7", "3:4"}, totals)

	page, err := GroupPage[int](ctx, orders, GroupOptions{Key: "CustomerId", Desc: true, Paging: &Paging{Index: 2, Size: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].Key)
	assert.Len(t, page.Items[0].Items, 2)
}

func TestToDictionary(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedOrders(t, s)

	c := begin(t, s)
	byName, err := ToDictionary(ctx, customers(t, c), nil, func(c *Customer) string { return c.Name })
	require.NoError(t, err)
	assert.Len(t, byName, 3)
	assert.Equal(t, 2, byName["bob"].Id)

	orders, err := For[Order](c)
	require.NoError(t, err)
	_, err = ToDictionary(ctx, orders, nil, func(o *Order) string { return o.Status })
	assert.ErrorContains(t, err, "duplicate dictionary key")

	totals, err := ToDictionaryOf(ctx, orders, Field("CustomerId").Eq(2),
		func(o *Order) int { return o.Id },
		func(o *Order) float64 { return o.Total })
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{3: 7}, totals)
}

func TestGetWithFetch(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedOrders(t, s)

	c := begin(t, s)
	ann, err := customers(t, c).Get(ctx, []any{1}, "Orders.Customer")
	require.NoError(t, err)
	require.NotNil(t, ann)
	require.Len(t, ann.Orders, 2)
	require.NotNil(t, ann.Orders[0].Customer)
	assert.Equal(t, "ann", ann.Orders[0].Customer.Name)

	orders, err := For[Order](c)
	require.NoError(t, err)
	list, err := orders.FindAllWith(ctx, Query().Where(Field("Total").Ge(5)).OrderByDesc("Total").Include("Customer"))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 10.0, list[0].Total)
	assert.Equal(t, "bob", list[1].Customer.Name)
}

func TestRawSQL(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedOrders(t, s)

	c := begin(t, s)
	n, err := c.ExecuteSQLCommand(ctx, `UPDATE "Orders" SET "Status" = ? WHERE "Status" = ?`, "closed", "open")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	rows, err := c.ExecuteSQLQuery(ctx, `SELECT COUNT(*) AS n FROM "Orders" WHERE "Status" = ?`, "closed")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0]["n"])
}

func TestEnsureTables(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := openStore(t, WithLogger(zap.New(core)))
	ctx := context.Background()

	c := begin(t, s)
	require.NoError(t, c.EnsureTables(ctx, (*Order)(nil), Shipment{}))
	require.NoError(t, c.EnsureTables(ctx, Customer{}))
	require.NoError(t, c.Commit(ctx))

	var tables []string
	for _, e := range logs.FilterMessage("created table").All() {
		tables = append(tables, e.ContextMap()["table"].(string))
	}
	assert.ElementsMatch(t, []string{"Customers", "Orders", "Shipments"}, tables)
	assert.Less(t, indexOf(tables, "Customers"), indexOf(tables, "Orders"))

	assert.Error(t, begin(t, s).EnsureTables(ctx, nil))
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestCachedReads_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr(), Config: DefaultCacheConfig()})
	require.NoError(t, err)

	s := openStore(t, WithCache(backend, DefaultCacheConfig()))
	ctx := context.Background()
	seedOrders(t, s)

	count := func() int64 {
		n, err := customers(t, begin(t, s)).Count(ctx, nil)
		require.NoError(t, err)
		return n
	}
	assert.EqualValues(t, 3, count())

	_, err = s.DB().Exec(`INSERT INTO "Customers" ("Name") VALUES ('hidden')`)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count(), "served from cache")

	require.NoError(t, s.Do(ctx, func(ctx context.Context, c *Context) error {
		_, err := c.ExecuteSQLCommand(ctx, `UPDATE "Customers" SET "Name" = "Name"`)
		return err
	}))
	assert.EqualValues(t, 4, count(), "raw commands invalidate every table")
	assert.NotEmpty(t, mr.Keys())
}

func TestModerncDriver(t *testing.T) {
	s, err := Open(context.Background(), Descriptor{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "modernc.db"),
	})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, func(ctx context.Context, c *Context) error {
		repo, err := For[Customer](c)
		if err != nil {
			return err
		}
		return repo.Add(ctx, &Customer{Name: "modern", Orders: []*Order{{Total: 4.5, Status: "open"}}})
	}))

	c := begin(t, s)
	got, err := customers(t, c).Get(ctx, []any{1}, "Orders")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "modern", got.Name)
	require.Len(t, got.Orders, 1)
	assert.Equal(t, 4.5, got.Orders[0].Total)

	orders, err := For[Order](c)
	require.NoError(t, err)
	assert.ErrorIs(t, orders.Add(ctx, &Order{CustomerId: 77}), ErrForeignKeyViolation)
}
