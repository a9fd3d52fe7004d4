package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/schema"
)

// Args accumulates positional parameters for one statement
type Args struct {
	dialect dialect.Dialect
	values  []any
}

// NewArgs creates an empty parameter list for d
func NewArgs(d dialect.Dialect) *Args {
	return &Args{dialect: d}
}

// Add appends a value and returns its placeholder
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	return a.dialect.Placeholder(len(a.values))
}

// Values returns the parameters in placeholder order
func (a *Args) Values() []any {
	return a.values
}

// Len returns the number of parameters
func (a *Args) Len() int {
	return len(a.values)
}

// ColumnRef is a member resolved to SQL
type ColumnRef struct {
	SQL  string       // qualified, quoted column expression
	Type reflect.Type // Go type of the mapped field
}

// ColumnResolver maps a member name to its column
type ColumnResolver func(member string) (ColumnRef, error)

// EntityColumns resolves members against m, qualifying columns with alias
func EntityColumns(m *schema.EntityMetadata, d dialect.Dialect, alias string) ColumnResolver {
	return func(member string) (ColumnRef, error) {
		c, ok := m.Column(member)
		if !ok {
			return ColumnRef{}, fmt.Errorf("type %s has no mapped member %q", m.TypeName, member)
		}
		return ColumnRef{SQL: Qualify(d, alias, c.Name), Type: c.Type}, nil
	}
}

// Qualify renders alias."column", or just the quoted column without alias
func Qualify(d dialect.Dialect, alias, column string) string {
	if alias == "" {
		return d.Quote(column)
	}
	return alias + "." + d.Quote(column)
}

// Compiler turns predicate trees and query options into SQL fragments
type Compiler struct {
	dialect dialect.Dialect
	columns ColumnResolver
}

// NewCompiler creates a compiler for one entity and dialect
func NewCompiler(d dialect.Dialect, columns ColumnResolver) *Compiler {
	return &Compiler{dialect: d, columns: columns}
}

// Dialect returns the compiler's dialect
func (c *Compiler) Dialect() dialect.Dialect {
	return c.dialect
}

// Compile renders e as a boolean SQL condition, appending its parameters to
// args. Literal values are always bound as parameters.
func (c *Compiler) Compile(e Expr, args *Args) (string, error) {
	if e == nil {
		return "1=1", nil
	}
	folded, err := Fold(unwrap(e))
	if err != nil {
		return "", err
	}
	return c.predicate(folded, args)
}

// predicate renders an expression in boolean position
func (c *Compiler) predicate(e Expr, args *Args) (string, error) {
	switch n := e.(type) {
	case *Literal:
		b, ok := n.Value.(bool)
		if !ok {
			return "", fmt.Errorf("literal %v of type %T is not a predicate", n.Value, n.Value)
		}
		if b {
			return "1=1", nil
		}
		return "1=0", nil

	case *Member:
		ref, err := c.columns(n.Name)
		if err != nil {
			return "", err
		}
		if ref.Type != nil && indirect(ref.Type).Kind() != reflect.Bool {
			return "", fmt.Errorf("member %s of type %s is not a predicate", n.Name, ref.Type)
		}
		return ref.SQL + " = " + args.Add(true), nil

	case *Unary:
		inner, err := c.predicate(n.Operand, args)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil

	case *Binary:
		if n.Op.IsLogical() {
			left, err := c.predicate(n.Left, args)
			if err != nil {
				return "", err
			}
			right, err := c.predicate(n.Right, args)
			if err != nil {
				return "", err
			}
			return "(" + left + " " + n.Op.String() + " " + right + ")", nil
		}
		return c.comparison(n, args)

	case *Call:
		return c.call(n, args)

	default:
		return "", fmt.Errorf("unsupported predicate node %T", e)
	}
}

// comparison renders a comparison with literals on the right and, between
// two members, the lexically smaller member on the left
func (c *Compiler) comparison(n *Binary, args *Args) (string, error) {
	left, right, op := n.Left, n.Right, n.Op
	if shouldSwap(left, right) {
		left, right, op = right, left, op.Mirror()
	}

	if lit, ok := right.(*Literal); ok && lit.Value == nil {
		l, err := c.value(left, args)
		if err != nil {
			return "", err
		}
		switch op {
		case OpEqual:
			return l + " IS NULL", nil
		case OpNotEqual:
			return l + " IS NOT NULL", nil
		default:
			return "", fmt.Errorf("operator %s cannot compare with null", op)
		}
	}

	l, err := c.value(left, args)
	if err != nil {
		return "", err
	}
	r, err := c.value(right, args)
	if err != nil {
		return "", err
	}
	return l + " " + op.String() + " " + r, nil
}

func shouldSwap(left, right Expr) bool {
	_, leftLit := left.(*Literal)
	_, rightLit := right.(*Literal)
	if leftLit && !rightLit {
		return true
	}
	lm, lok := left.(*Member)
	rm, rok := right.(*Member)
	return lok && rok && rm.Name < lm.Name
}

// value renders an expression in value position
func (c *Compiler) value(e Expr, args *Args) (string, error) {
	switch n := e.(type) {
	case *Literal:
		return args.Add(n.Value), nil
	case *Member:
		ref, err := c.columns(n.Name)
		if err != nil {
			return "", err
		}
		return ref.SQL, nil
	case *Call:
		if n.Method != MethodToString {
			return "", fmt.Errorf("%s yields a predicate, not a value", n.Method)
		}
		return c.toText(n.Target, args)
	default:
		return "", fmt.Errorf("node %T cannot be used as a value", e)
	}
}

// toText renders target as text, casting non-string members
func (c *Compiler) toText(target Expr, args *Args) (string, error) {
	if m, ok := target.(*Member); ok {
		ref, err := c.columns(m.Name)
		if err != nil {
			return "", err
		}
		if ref.Type != nil && indirect(ref.Type).Kind() == reflect.String {
			return ref.SQL, nil
		}
		return c.dialect.CastToText(ref.SQL), nil
	}
	inner, err := c.value(target, args)
	if err != nil {
		return "", err
	}
	return c.dialect.CastToText(inner), nil
}

func (c *Compiler) call(n *Call, args *Args) (string, error) {
	if n.Method == MethodToString {
		return "", fmt.Errorf("ToString yields a value, not a predicate")
	}

	target, err := c.textOperand(n.Target, args)
	if err != nil {
		return "", err
	}

	if n.Method == MethodEquals {
		if lit, ok := n.Arg.(*Literal); ok && lit.Value == nil {
			return target + " IS NULL", nil
		}
		arg, err := c.value(n.Arg, args)
		if err != nil {
			return "", err
		}
		return target + " = " + arg, nil
	}

	lit, ok := n.Arg.(*Literal)
	if !ok {
		return "", fmt.Errorf("%s needs a constant argument", n.Method)
	}
	s, ok := lit.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s needs a string argument, got %T", n.Method, lit.Value)
	}

	var pattern string
	switch n.Method {
	case MethodStartsWith:
		pattern = EscapeLike(s) + "%"
	case MethodEndsWith:
		pattern = "%" + EscapeLike(s)
	case MethodContains:
		pattern = "%" + EscapeLike(s) + "%"
	default:
		return "", fmt.Errorf("unsupported method %s", n.Method)
	}
	return target + " LIKE " + args.Add(pattern) + c.dialect.EscapeClause(), nil
}

// textOperand renders the target of a string method
func (c *Compiler) textOperand(e Expr, args *Args) (string, error) {
	if call, ok := e.(*Call); ok && call.Method == MethodToString {
		return c.toText(call.Target, args)
	}
	return c.value(e, args)
}

// EscapeLike escapes LIKE wildcards with a backslash
func EscapeLike(s string) string {
	if !strings.ContainsAny(s, `\%_`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
