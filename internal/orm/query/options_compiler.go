package query

import (
	"strings"
)

// EffectiveSort returns the caller's sort keys, or the primary key in
// ascending order when there are none and a stable order is required
func EffectiveSort(sort []SortKey, primaryKey []string, stable bool) []SortKey {
	if len(sort) > 0 || !stable {
		return sort
	}
	keys := make([]SortKey, len(primaryKey))
	for i, name := range primaryKey {
		keys[i] = SortKey{Member: name}
	}
	return keys
}

// OrderBy renders sort keys in caller precedence, or "" for none
func (c *Compiler) OrderBy(keys []SortKey) (string, error) {
	if len(keys) == 0 {
		return "", nil
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		ref, err := c.columns(k.Member)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts[i] = ref.SQL + " " + dir
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// Page renders the skip/take clause of p
func (c *Compiler) Page(p Paging, args *Args) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return c.dialect.Paging(p.Skip(), p.Size, args.Add), nil
}

// Take renders a clause returning the first n rows
func (c *Compiler) Take(n int, args *Args) string {
	return c.dialect.Paging(0, n, args.Add)
}

// Column resolves a member to its qualified column
func (c *Compiler) Column(member string) (ColumnRef, error) {
	return c.columns(member)
}

// KeysIn matches rows whose columns equal one of the tuples. A single column
// compiles to IN; composite keys to an OR of conjunctions. A nil value in a
// single-column set also matches NULL.
func (c *Compiler) KeysIn(columns []string, tuples [][]any, args *Args) string {
	if len(tuples) == 0 {
		return "1=0"
	}

	if len(columns) == 1 {
		var (
			placeholders []string
			hasNull      bool
		)
		for _, t := range tuples {
			if t[0] == nil {
				hasNull = true
				continue
			}
			placeholders = append(placeholders, args.Add(t[0]))
		}
		switch {
		case len(placeholders) == 0:
			return columns[0] + " IS NULL"
		case hasNull:
			return "(" + columns[0] + " IN (" + strings.Join(placeholders, ", ") + ") OR " + columns[0] + " IS NULL)"
		default:
			return columns[0] + " IN (" + strings.Join(placeholders, ", ") + ")"
		}
	}

	alternatives := make([]string, len(tuples))
	for i, t := range tuples {
		parts := make([]string, len(columns))
		for j, col := range columns {
			parts[j] = col + " = " + args.Add(t[j])
		}
		alternatives[i] = "(" + strings.Join(parts, " AND ") + ")"
	}
	if len(alternatives) == 1 {
		return alternatives[0]
	}
	return "(" + strings.Join(alternatives, " OR ") + ")"
}
