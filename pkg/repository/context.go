package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/reposit-go/reposit/internal/orm/crud"
	"github.com/reposit-go/reposit/internal/orm/transaction"
)

// Context is one unit of work: a pinned connection, a transaction begun by
// the first write, and a terminal Commit or Dispose. A finalized Context
// rejects every operation with ErrContextFinalized.
type Context struct {
	store *Store
	uow   *transaction.UnitOfWork
	exec  *crud.Executor
}

// Commit makes the unit's writes durable
func (c *Context) Commit(ctx context.Context) error {
	return c.uow.Commit(ctx)
}

// Dispose rolls back uncommitted writes and releases the connection. It is
// safe to defer after Commit.
func (c *Context) Dispose() error {
	return c.uow.Dispose()
}

// State returns the lifecycle state of the unit
func (c *Context) State() State {
	return c.uow.State()
}

// ExecuteSQLCommand runs a statement with positional parameters inside the
// unit's transaction and returns the number of rows affected
func (c *Context) ExecuteSQLCommand(ctx context.Context, stmt string, args ...any) (int64, error) {
	return c.exec.ExecuteSQLCommand(ctx, stmt, args...)
}

// ExecuteSQLQuery runs a query with positional parameters and returns its
// rows keyed by column name
func (c *Context) ExecuteSQLQuery(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	return c.exec.ExecuteSQLQuery(ctx, stmt, args...)
}

// EnsureTables creates the tables of the given entity types, principals
// first, when they do not exist yet. Pass zero values or pointers:
//
//	c.EnsureTables(ctx, Customer{}, (*Order)(nil))
func (c *Context) EnsureTables(ctx context.Context, samples ...any) error {
	types := make([]reflect.Type, len(samples))
	for i, s := range samples {
		if s == nil {
			return fmt.Errorf("EnsureTables: sample %d is nil", i)
		}
		types[i] = reflect.TypeOf(s)
	}
	ordered, err := c.store.registry.DependencyOrder(types...)
	if err != nil {
		return err
	}
	for _, meta := range ordered {
		if err := c.exec.EnsureTable(ctx, meta); err != nil {
			return err
		}
	}
	return nil
}
