package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/schema"
)

type Customer struct {
	Id     int
	Name   string
	Active bool
	Score  float64
}

var registry = schema.NewRegistry()

func newCompiler(t *testing.T, name string) *Compiler {
	t.Helper()
	d, err := dialect.Get(name)
	require.NoError(t, err)
	m, err := schema.ResolveOf[Customer](registry)
	require.NoError(t, err)
	return NewCompiler(d, EntityColumns(m, d, "t0"))
}

func compile(t *testing.T, c *Compiler, e Expr) (string, []any) {
	t.Helper()
	args := NewArgs(c.Dialect())
	sql, err := c.Compile(e, args)
	require.NoError(t, err)
	return sql, args.Values()
}

func TestCompile_CustomerScenario(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	sql, args := compile(t, c, Field("Id").Gt(1).And(Field("Id").Lt(3)))
	assert.Equal(t, `(t0."Id" > ? AND t0."Id" < ?)`, sql)
	assert.Equal(t, []any{1, 3}, args)

	sql, args = compile(t, c, Field("Name").Contains("Test"))
	assert.Equal(t, `t0."Name" LIKE ? ESCAPE '\'`, sql)
	assert.Equal(t, []any{"%Test%"}, args)
}

func TestCompile_OperandSymmetry(t *testing.T) {
	c := newCompiler(t, dialect.ANSI)

	ops := []Operator{OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual}
	for _, op := range ops {
		t.Run(op.String(), func(t *testing.T) {
			memberFirst, argsA := compile(t, c, Compare(op, Field("Id"), 5))
			literalFirst, argsB := compile(t, c, Compare(op.Mirror(), 5, Field("Id")))

			assert.Equal(t, memberFirst, literalFirst)
			assert.Equal(t, argsA, argsB)
			assert.Equal(t, fmt.Sprintf(`t0."Id" %s @p0`, op), memberFirst)
		})

		t.Run(op.String()+" members", func(t *testing.T) {
			a, _ := compile(t, c, Compare(op, Field("Score"), Field("Id")))
			b, _ := compile(t, c, Compare(op.Mirror(), Field("Id"), Field("Score")))
			assert.Equal(t, a, b)
		})
	}
}

func TestCompile_BooleanLiterals(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	sql, args := compile(t, c, True())
	assert.Equal(t, "1=1", sql)
	assert.Empty(t, args)

	sql, args = compile(t, c, False())
	assert.Equal(t, "1=0", sql)
	assert.Empty(t, args)

	sql, args = compile(t, c, Field("Id").Eq(1).And(True()))
	assert.Equal(t, `t0."Id" = ?`, sql)
	assert.Equal(t, []any{1}, args)

	sql, _ = compile(t, c, Field("Id").Eq(1).And(False()))
	assert.Equal(t, "1=0", sql)

	sql, _ = compile(t, c, Not(False()))
	assert.Equal(t, "1=1", sql)
}

func TestCompile_ConstantFolding(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"literal comparison", Value(1).Lt(Value(2)), "1=1"},
		{"mixed numeric", Value(2.5).Gt(Value(3)), "1=0"},
		{"string method", Value("abc").Contains("b"), "1=1"},
		{"starts with", Value("abc").StartsWith("x"), "1=0"},
		{"to string", Value(12).ToString().Eq("12"), "1=1"},
		{"null equality", Value(nil).Eq(nil), "1=1"},
		{"or with true", Field("Id").Eq(1).Or(Value(1).Eq(1)), "1=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compile(t, c, tt.expr)
			assert.Equal(t, tt.want, sql)
			assert.Empty(t, args)
		})
	}
}

func TestCompile_StringMethods(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	tests := []struct {
		name    string
		expr    Expr
		sql     string
		pattern any
	}{
		{"starts with", Field("Name").StartsWith("Ran"), `t0."Name" LIKE ? ESCAPE '\'`, "Ran%"},
		{"ends with", Field("Name").EndsWith("1"), `t0."Name" LIKE ? ESCAPE '\'`, "%1"},
		{"contains", Field("Name").Contains("dom"), `t0."Name" LIKE ? ESCAPE '\'`, "%dom%"},
		{"wildcards escaped", Field("Name").Contains("50%_off"), `t0."Name" LIKE ? ESCAPE '\'`, `%50\%\_off%`},
		{"equals", Field("Name").Equals("x"), `t0."Name" = ?`, "x"},
		{"cast", Field("Id").ToString().StartsWith("1"), `CAST(t0."Id" AS TEXT) LIKE ? ESCAPE '\'`, "1%"},
		{"string needs no cast", Field("Name").ToString().Eq("x"), `t0."Name" = ?`, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compile(t, c, tt.expr)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, []any{tt.pattern}, args)
		})
	}

	t.Run("mysql has no escape clause", func(t *testing.T) {
		my := newCompiler(t, dialect.MySQL)
		sql, _ := compile(t, my, Field("Name").StartsWith("a"))
		assert.Equal(t, "t0.`Name` LIKE ?", sql)

		sql, _ = compile(t, my, Field("Id").ToString().Eq("1"))
		assert.Equal(t, "CAST(t0.`Id` AS CHAR) = ?", sql)
	})
}

func TestCompile_Parenthesization(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	sql, args := compile(t, c, Field("Id").Eq(1).Or(Field("Id").Eq(2)).And(Field("Name").Eq("x")))
	assert.Equal(t, `((t0."Id" = ? OR t0."Id" = ?) AND t0."Name" = ?)`, sql)
	assert.Equal(t, []any{1, 2, "x"}, args)

	sql, _ = compile(t, c, Field("Id").Eq(1).Or(Field("Id").Eq(2).And(Field("Name").Eq("x"))))
	assert.Equal(t, `(t0."Id" = ? OR (t0."Id" = ? AND t0."Name" = ?))`, sql)

	sql, _ = compile(t, c, Not(Field("Id").Eq(1).Or(Field("Id").Eq(2))))
	assert.Equal(t, `NOT ((t0."Id" = ? OR t0."Id" = ?))`, sql)

	sql, _ = compile(t, c, And(Field("Id").Gt(1), Field("Id").Lt(9), Field("Active")))
	assert.Equal(t, `((t0."Id" > ? AND t0."Id" < ?) AND t0."Active" = ?)`, sql)
}

func TestCompile_Nulls(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	sql, args := compile(t, c, Field("Name").IsNull())
	assert.Equal(t, `t0."Name" IS NULL`, sql)
	assert.Empty(t, args)

	sql, _ = compile(t, c, Value(nil).Ne(Field("Name")))
	assert.Equal(t, `t0."Name" IS NOT NULL`, sql)

	_, err := c.Compile(Field("Id").Gt(nil), NewArgs(c.Dialect()))
	assert.Error(t, err)
}

func TestCompile_BooleanMember(t *testing.T) {
	c := newCompiler(t, dialect.Postgres)

	sql, args := compile(t, c, Field("Active"))
	assert.Equal(t, `t0."Active" = $1`, sql)
	assert.Equal(t, []any{true}, args)

	sql, _ = compile(t, c, Not(Field("Active")).And(Field("Id").Eq(3)))
	assert.Equal(t, `(NOT (t0."Active" = $1) AND t0."Id" = $2)`, sql)
}

func TestCompile_Errors(t *testing.T) {
	c := newCompiler(t, dialect.SQLite)

	tests := []struct {
		name string
		expr Expr
	}{
		{"unknown member", Field("Missing").Eq(1)},
		{"non-boolean member", Field("Name")},
		{"non-boolean literal", Value(3)},
		{"non-constant pattern", Field("Name").Contains(Field("Name"))},
		{"ordering bools", Value(true).Gt(Value(false))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.expr, NewArgs(c.Dialect()))
			assert.Error(t, err)
		})
	}
}
