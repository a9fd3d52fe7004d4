package repository

import (
	"context"
	"reflect"

	"github.com/reposit-go/reposit/internal/orm/query"
	"github.com/reposit-go/reposit/internal/orm/schema"
)

// Repository offers typed operations on entities of type T within one
// Context. T must be a struct type; entities are passed and returned as *T.
type Repository[T any] struct {
	ctx  *Context
	meta *schema.EntityMetadata
}

// For returns the repository of T in c. Metadata errors such as an ambiguous
// composite key or a missing foreign key member surface here.
func For[T any](c *Context) (*Repository[T], error) {
	meta, err := c.store.registry.Resolve(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return &Repository[T]{ctx: c, meta: meta}, nil
}

// Metadata returns the resolved mapping of T
func (r *Repository[T]) Metadata() *schema.EntityMetadata {
	return r.meta
}

// Add inserts entities together with every new entity reachable through
// their navigations, principals first, and writes store-generated keys back
func (r *Repository[T]) Add(ctx context.Context, entities ...*T) error {
	return r.ctx.exec.Add(ctx, toAny(entities)...)
}

// AddRange is Add over a slice
func (r *Repository[T]) AddRange(ctx context.Context, entities []*T) error {
	return r.Add(ctx, entities...)
}

// Update overwrites the row with the key of entity. It fails with
// ErrEntityNotFound when there is no such row.
func (r *Repository[T]) Update(ctx context.Context, entity *T) error {
	return r.ctx.exec.Update(ctx, entity)
}

// TryUpdate is Update reporting a missing row as false
func (r *Repository[T]) TryUpdate(ctx context.Context, entity *T) (bool, error) {
	return r.ctx.exec.TryUpdate(ctx, entity)
}

// UpdateRange updates entities in order, stopping at the first failure
func (r *Repository[T]) UpdateRange(ctx context.Context, entities []*T) error {
	return r.ctx.exec.UpdateRange(ctx, toAny(entities)...)
}

// Delete removes the row with the key of entity. It fails with
// ErrEntityNotFound when there is no such row.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	return r.ctx.exec.Delete(ctx, entity)
}

// TryDelete is Delete reporting a missing row as false
func (r *Repository[T]) TryDelete(ctx context.Context, entity *T) (bool, error) {
	return r.ctx.exec.TryDelete(ctx, entity)
}

// DeleteByKey removes the row with the given key, in key order
func (r *Repository[T]) DeleteByKey(ctx context.Context, key ...any) error {
	return r.ctx.exec.DeleteByKey(ctx, r.meta, key...)
}

// DeleteRange deletes entities in order, stopping at the first failure
func (r *Repository[T]) DeleteRange(ctx context.Context, entities []*T) error {
	return r.ctx.exec.DeleteRange(ctx, toAny(entities)...)
}

// DeleteWhere removes every row matching filter and returns how many were
// removed
func (r *Repository[T]) DeleteWhere(ctx context.Context, filter Expr) (int64, error) {
	return r.ctx.exec.DeleteWhere(ctx, r.meta, filter)
}

// Get returns the entity with the given key, or nil. fetch names
// navigations to load, as dot-separated paths.
func (r *Repository[T]) Get(ctx context.Context, key []any, fetch ...string) (*T, error) {
	v, err := r.ctx.exec.FindByKey(ctx, r.meta, key, fetch...)
	if err != nil || !v.IsValid() {
		return nil, err
	}
	return v.Interface().(*T), nil
}

// Find returns the first entity matching filter in key order, or nil
func (r *Repository[T]) Find(ctx context.Context, filter Expr) (*T, error) {
	return r.FindWith(ctx, query.New().Where(filter))
}

// FindWith returns the first entity matching opts, or nil
func (r *Repository[T]) FindWith(ctx context.Context, opts *Options) (*T, error) {
	v, err := r.ctx.exec.Find(ctx, r.meta, opts)
	if err != nil || !v.IsValid() {
		return nil, err
	}
	return v.Interface().(*T), nil
}

// FindAll returns every entity matching filter
func (r *Repository[T]) FindAll(ctx context.Context, filter Expr) ([]*T, error) {
	return r.FindAllWith(ctx, query.New().Where(filter))
}

// FindAllWith returns the entities selected by opts
func (r *Repository[T]) FindAllWith(ctx context.Context, opts *Options) ([]*T, error) {
	values, err := r.ctx.exec.FindAll(ctx, r.meta, opts)
	if err != nil {
		return nil, err
	}
	return fromValues[T](values), nil
}

// Page returns the page of entities selected by opts, which must carry
// paging, along with the number of matching rows across all pages
func (r *Repository[T]) Page(ctx context.Context, opts *Options) (Page[*T], error) {
	values, total, err := r.ctx.exec.Page(ctx, r.meta, opts)
	if err != nil {
		return Page[*T]{}, err
	}
	return Page[*T]{
		Items: fromValues[T](values),
		Total: total,
		Index: opts.Paging.Index,
		Size:  opts.Paging.Size,
	}, nil
}

// Count returns the number of entities matching filter
func (r *Repository[T]) Count(ctx context.Context, filter Expr) (int64, error) {
	return r.ctx.exec.Count(ctx, r.meta, filter)
}

// Exists reports whether any entity matches filter
func (r *Repository[T]) Exists(ctx context.Context, filter Expr) (bool, error) {
	return r.ctx.exec.Exists(ctx, r.meta, filter)
}

// EnsureTable creates the table of T, and those of its principals, when
// missing
func (r *Repository[T]) EnsureTable(ctx context.Context) error {
	return r.ctx.exec.EnsureTable(ctx, r.meta)
}

func toAny[T any](entities []*T) []any {
	out := make([]any, len(entities))
	for i, e := range entities {
		out[i] = e
	}
	return out
}

func fromValues[T any](values []reflect.Value) []*T {
	out := make([]*T, len(values))
	for i, v := range values {
		out[i] = v.Interface().(*T)
	}
	return out
}
