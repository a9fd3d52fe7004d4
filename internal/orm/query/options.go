package query

import (
	"fmt"
)

// SortKey orders results by one member
type SortKey struct {
	Member string
	Desc   bool
}

// Paging selects one 1-based page of results
type Paging struct {
	Index int
	Size  int
}

// Skip returns the number of rows before the page
func (p Paging) Skip() int {
	return (p.Index - 1) * p.Size
}

// Validate checks that index and size are positive
func (p Paging) Validate() error {
	if p.Index < 1 {
		return fmt.Errorf("page index must be at least 1, got %d", p.Index)
	}
	if p.Size < 1 {
		return fmt.Errorf("page size must be at least 1, got %d", p.Size)
	}
	return nil
}

// Page is one page of a paged read
type Page[T any] struct {
	Items []T
	Total int64 // matching rows across all pages
	Index int
	Size  int
}

// Pages returns the number of pages needed for Total rows
func (p Page[T]) Pages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// Options describes a read: filter, sort keys, paging and navigations to fetch.
// Options are consumed once per call; builders return the same value for chaining.
type Options struct {
	Filter Expr
	Sort   []SortKey
	Paging *Paging
	Fetch  []string
}

// New creates empty query options
func New() *Options {
	return &Options{}
}

// Where adds a filter, combined with AND when one is already set
func (o *Options) Where(e Expr) *Options {
	if o.Filter == nil {
		o.Filter = unwrap(e)
	} else {
		o.Filter = &Binary{Op: OpAnd, Left: o.Filter, Right: unwrap(e)}
	}
	return o
}

// OrderBy appends an ascending sort key
func (o *Options) OrderBy(member string) *Options {
	o.Sort = append(o.Sort, SortKey{Member: member})
	return o
}

// OrderByDesc appends a descending sort key
func (o *Options) OrderByDesc(member string) *Options {
	o.Sort = append(o.Sort, SortKey{Member: member, Desc: true})
	return o
}

// Page selects a 1-based page
func (o *Options) Page(index, size int) *Options {
	o.Paging = &Paging{Index: index, Size: size}
	return o
}

// Include names navigations to populate. Nested paths use dots: "Orders.Lines".
func (o *Options) Include(paths ...string) *Options {
	o.Fetch = append(o.Fetch, paths...)
	return o
}

// Clone returns a copy that can be modified independently
func (o *Options) Clone() *Options {
	if o == nil {
		return New()
	}
	c := &Options{
		Filter: o.Filter,
		Sort:   append([]SortKey(nil), o.Sort...),
		Fetch:  append([]string(nil), o.Fetch...),
	}
	if o.Paging != nil {
		p := *o.Paging
		c.Paging = &p
	}
	return c
}

// GroupOptions describes a grouped read. Groups are ordered by key; Paging
// applies to groups, not to rows.
type GroupOptions struct {
	Filter Expr
	Key    string
	Desc   bool
	Paging *Paging
}
