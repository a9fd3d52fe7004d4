package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
	"github.com/reposit-go/reposit/internal/orm/query"
)

// Update writes every non-key column of entity to the row with the same key.
// It fails with EntityNotFound when no such row exists.
func (e *Executor) Update(ctx context.Context, entity any) error {
	found, err := e.TryUpdate(ctx, entity)
	if err != nil {
		return err
	}
	if !found {
		ptr, _ := entityValue(entity)
		meta, err := e.registry.Resolve(ptr.Type().Elem())
		if err != nil {
			return err
		}
		return ormerrors.EntityNotFound(meta.TypeName, meta.KeyValues(ptr))
	}
	return nil
}

// TryUpdate is Update reporting a missing row as false instead of an error
func (e *Executor) TryUpdate(ctx context.Context, entity any) (bool, error) {
	ptr, err := entityValue(entity)
	if err != nil {
		return false, err
	}
	meta, err := e.registry.Resolve(ptr.Type().Elem())
	if err != nil {
		return false, err
	}

	w, exists, err := e.writer(ctx, meta)
	if err != nil || !exists {
		return false, err
	}

	v := ptr.Elem()
	args := query.NewArgs(e.dialect)
	var sets []string
	for _, c := range meta.Columns {
		if c.Key {
			continue
		}
		sets = append(sets, e.dialect.Quote(c.Name)+" = "+args.Add(v.FieldByIndex(c.Index).Interface()))
	}

	key := meta.KeyValues(v)
	if len(sets) == 0 {
		// nothing to write: the row only has to exist
		return e.existsByKey(ctx, w, meta, key)
	}

	where, err := e.keyCondition(meta, "", key, args)
	if err != nil {
		return false, err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		e.dialect.Quote(meta.Table), strings.Join(sets, ", "), where)

	res, err := e.exec(ctx, w, OperationUpdate, meta.TypeName, stmt, args.Values())
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

// UpdateRange updates each entity in order, stopping at the first failure
func (e *Executor) UpdateRange(ctx context.Context, entities ...any) error {
	for _, entity := range entities {
		if err := e.Update(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}
