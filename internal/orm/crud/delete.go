package crud

import (
	"context"
	"fmt"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
	"github.com/reposit-go/reposit/internal/orm/query"
	"github.com/reposit-go/reposit/internal/orm/schema"
	"github.com/reposit-go/reposit/internal/orm/transaction"
)

// Delete removes the row with the key of entity. It fails with
// EntityNotFound when no such row exists.
func (e *Executor) Delete(ctx context.Context, entity any) error {
	meta, key, err := e.entityKey(entity)
	if err != nil {
		return err
	}
	return e.DeleteByKey(ctx, meta, key...)
}

// TryDelete is Delete reporting a missing row as false instead of an error
func (e *Executor) TryDelete(ctx context.Context, entity any) (bool, error) {
	meta, key, err := e.entityKey(entity)
	if err != nil {
		return false, err
	}
	return e.deleteKey(ctx, meta, key)
}

// DeleteByKey removes the row of meta with the given key
func (e *Executor) DeleteByKey(ctx context.Context, meta *schema.EntityMetadata, key ...any) error {
	found, err := e.deleteKey(ctx, meta, key)
	if err != nil {
		return err
	}
	if !found {
		return ormerrors.EntityNotFound(meta.TypeName, key)
	}
	return nil
}

// DeleteRange deletes each entity in order, stopping at the first failure
func (e *Executor) DeleteRange(ctx context.Context, entities ...any) error {
	for _, entity := range entities {
		if err := e.Delete(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// DeleteWhere removes every row of meta matching filter and returns the
// number of rows removed. A nil filter matches every row.
func (e *Executor) DeleteWhere(ctx context.Context, meta *schema.EntityMetadata, filter query.Expr) (int64, error) {
	w, exists, err := e.writer(ctx, meta)
	if err != nil || !exists {
		return 0, err
	}

	args := query.NewArgs(e.dialect)
	where, err := e.compiler(meta, "").Compile(filter, args)
	if err != nil {
		return 0, err
	}
	stmt := "DELETE FROM " + e.dialect.Quote(meta.Table)
	if where != "1=1" {
		stmt += " WHERE " + where
	}

	res, err := e.exec(ctx, w, OperationDelete, meta.TypeName, stmt, args.Values())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		e.uow.MarkWritten(meta.Table)
	}
	return n, nil
}

func (e *Executor) deleteKey(ctx context.Context, meta *schema.EntityMetadata, key []any) (bool, error) {
	w, exists, err := e.writer(ctx, meta)
	if err != nil || !exists {
		return false, err
	}

	args := query.NewArgs(e.dialect)
	where, err := e.keyCondition(meta, "", key, args)
	if err != nil {
		return false, err
	}
	stmt := "DELETE FROM " + e.dialect.Quote(meta.Table) + " WHERE " + where

	res, err := e.exec(ctx, w, OperationDelete, meta.TypeName, stmt, args.Values())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		e.uow.MarkWritten(meta.Table)
	}
	return n > 0, nil
}

// existsByKey reports whether a row with key exists, reading through q
func (e *Executor) existsByKey(ctx context.Context, q transaction.Querier, meta *schema.EntityMetadata, key []any) (bool, error) {
	args := query.NewArgs(e.dialect)
	where, err := e.keyCondition(meta, "t0", key, args)
	if err != nil {
		return false, err
	}
	c := e.compiler(meta, "t0")
	stmt := query.Select(e.dialect, meta.Table, "t0", "1").
		Where(where).
		Paging(c.Take(1, args)).
		ToSQL()
	rs, err := e.query(ctx, q, OperationRead, meta.TypeName, stmt, args.Values())
	if err != nil {
		return false, err
	}
	return len(rs.Rows) > 0, nil
}

func (e *Executor) entityKey(entity any) (*schema.EntityMetadata, []any, error) {
	ptr, err := entityValue(entity)
	if err != nil {
		return nil, nil, err
	}
	meta, err := e.registry.Resolve(ptr.Type().Elem())
	if err != nil {
		return nil, nil, err
	}
	return meta, meta.KeyValues(ptr), nil
}
