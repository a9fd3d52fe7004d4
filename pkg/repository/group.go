package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/reposit-go/reposit/internal/orm/crud"
)

// Group is the set of entities sharing one key value
type Group[K comparable, T any] struct {
	Key   K
	Count int64
	Items []*T
}

// GroupBy groups the entities of r matching opts.Filter by the opts.Key
// member, ordered by key. K must be the member's type or convertible from it.
func GroupBy[K comparable, T any](ctx context.Context, r *Repository[T], opts GroupOptions) ([]Group[K, T], error) {
	groups, _, err := groupRows[K](ctx, r, opts)
	return groups, err
}

// GroupPage returns one page of groups; opts must carry paging. Total counts
// groups, not rows.
func GroupPage[K comparable, T any](ctx context.Context, r *Repository[T], opts GroupOptions) (Page[Group[K, T]], error) {
	if opts.Paging == nil {
		return Page[Group[K, T]]{}, fmt.Errorf("paged grouping of %s requires paging options", r.meta.TypeName)
	}
	groups, total, err := groupRows[K](ctx, r, opts)
	if err != nil {
		return Page[Group[K, T]]{}, err
	}
	return Page[Group[K, T]]{
		Items: groups,
		Total: total,
		Index: opts.Paging.Index,
		Size:  opts.Paging.Size,
	}, nil
}

// GroupBySelect groups like GroupBy and projects each group through fn
func GroupBySelect[K comparable, T, R any](ctx context.Context, r *Repository[T], opts GroupOptions, fn func(key K, items []*T) R) ([]R, error) {
	groups, err := GroupBy[K](ctx, r, opts)
	if err != nil {
		return nil, err
	}
	out := make([]R, len(groups))
	for i, g := range groups {
		out[i] = fn(g.Key, g.Items)
	}
	return out, nil
}

// ToDictionary maps the entities matching filter by key. Two entities with
// the same key are an error.
func ToDictionary[K comparable, T any](ctx context.Context, r *Repository[T], filter Expr, key func(*T) K) (map[K]*T, error) {
	return ToDictionaryOf(ctx, r, filter, key, func(e *T) *T { return e })
}

// ToDictionaryOf maps the entities matching filter by key to value
func ToDictionaryOf[K comparable, T, V any](ctx context.Context, r *Repository[T], filter Expr, key func(*T) K, value func(*T) V) (map[K]V, error) {
	items, err := r.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(items))
	for _, item := range items {
		k := key(item)
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("duplicate dictionary key %v for type %s", k, r.meta.TypeName)
		}
		out[k] = value(item)
	}
	return out, nil
}

func groupRows[K comparable, T any](ctx context.Context, r *Repository[T], opts GroupOptions) ([]Group[K, T], int64, error) {
	rows, total, err := r.ctx.exec.GroupRows(ctx, r.meta, opts)
	if err != nil {
		return nil, 0, err
	}
	groups := make([]Group[K, T], len(rows))
	for i, row := range rows {
		key, err := convertKey[K](row)
		if err != nil {
			return nil, 0, fmt.Errorf("grouping %s by %s: %w", r.meta.TypeName, opts.Key, err)
		}
		groups[i] = Group[K, T]{Key: key, Count: row.Count, Items: fromValues[T](row.Items)}
	}
	return groups, total, nil
}

// convertKey converts a group key to K, dereferencing pointer keys
func convertKey[K comparable](row crud.GroupRow) (K, error) {
	var zero K
	target := reflect.TypeOf((*K)(nil)).Elem()
	v := row.Key

	if v.Type() != target && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return zero, nil
		}
		v = v.Elem()
	}
	if v.Type() == target {
		return v.Interface().(K), nil
	}
	if !v.Type().ConvertibleTo(target) {
		return zero, fmt.Errorf("key of type %s is not convertible to %s", v.Type(), target)
	}
	return v.Convert(target).Interface().(K), nil
}
