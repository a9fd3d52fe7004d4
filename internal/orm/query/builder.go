package query

import (
	"fmt"
	"strings"

	"github.com/reposit-go/reposit/internal/orm/dialect"
)

// JoinType represents the type of SQL join
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// String returns the string representation of the join type
func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT"
	default:
		return "INNER"
	}
}

// Join represents a SQL join clause
type Join struct {
	Type      JoinType
	Table     string
	Alias     string
	Condition string
}

// SelectBuilder assembles a SELECT statement from compiled fragments
type SelectBuilder struct {
	dialect dialect.Dialect
	table   string
	alias   string
	columns []string
	joins   []Join
	where   string
	groupBy []string
	orderBy string
	paging  string
}

// Select starts a SELECT of columns from table aliased as alias
func Select(d dialect.Dialect, table, alias string, columns ...string) *SelectBuilder {
	return &SelectBuilder{
		dialect: d,
		table:   table,
		alias:   alias,
		columns: columns,
	}
}

// Join adds a join clause
func (b *SelectBuilder) Join(j Join) *SelectBuilder {
	b.joins = append(b.joins, j)
	return b
}

// Where sets the compiled condition
func (b *SelectBuilder) Where(condition string) *SelectBuilder {
	b.where = condition
	return b
}

// GroupBy sets the grouping expressions
func (b *SelectBuilder) GroupBy(exprs ...string) *SelectBuilder {
	b.groupBy = exprs
	return b
}

// OrderBy sets the compiled ORDER BY clause
func (b *SelectBuilder) OrderBy(clause string) *SelectBuilder {
	b.orderBy = clause
	return b
}

// Paging sets the compiled paging clause
func (b *SelectBuilder) Paging(clause string) *SelectBuilder {
	b.paging = clause
	return b
}

// ToSQL generates the statement text
func (b *SelectBuilder) ToSQL() string {
	var sql strings.Builder

	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(b.columns, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(b.dialect.Quote(b.table))
	if b.alias != "" {
		sql.WriteString(" ")
		sql.WriteString(b.alias)
	}

	for _, j := range b.joins {
		sql.WriteString(fmt.Sprintf(" %s JOIN %s %s ON %s",
			j.Type, b.dialect.Quote(j.Table), j.Alias, j.Condition))
	}

	if b.where != "" && b.where != "1=1" {
		sql.WriteString(" WHERE ")
		sql.WriteString(b.where)
	}

	if len(b.groupBy) > 0 {
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(b.groupBy, ", "))
	}

	if b.orderBy != "" {
		sql.WriteString(" ")
		sql.WriteString(b.orderBy)
	}

	if b.paging != "" {
		sql.WriteString(" ")
		sql.WriteString(b.paging)
	}

	return sql.String()
}
