// Package query provides the predicate AST, its SQL compiler, and the
// sort/page/group options of repository reads.
package query

// Operator represents a binary operator of the predicate tree
type Operator int

const (
	OpAnd Operator = iota
	OpOr
	OpEqual
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
)

// String returns the SQL spelling of the operator
func (o Operator) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	default:
		return "UNKNOWN"
	}
}

// IsLogical reports whether the operator combines two predicates
func (o Operator) IsLogical() bool {
	return o == OpAnd || o == OpOr
}

// Mirror returns the operator that yields the same result with swapped operands
func (o Operator) Mirror() Operator {
	switch o {
	case OpGreaterThan:
		return OpLessThan
	case OpGreaterThanOrEqual:
		return OpLessThanOrEqual
	case OpLessThan:
		return OpGreaterThan
	case OpLessThanOrEqual:
		return OpGreaterThanOrEqual
	default:
		return o
	}
}

// Method is a string method call of the predicate tree
type Method int

const (
	MethodStartsWith Method = iota
	MethodEndsWith
	MethodContains
	MethodEquals
	MethodToString
)

// String returns the method name
func (m Method) String() string {
	switch m {
	case MethodStartsWith:
		return "StartsWith"
	case MethodEndsWith:
		return "EndsWith"
	case MethodContains:
		return "Contains"
	case MethodEquals:
		return "Equals"
	case MethodToString:
		return "ToString"
	default:
		return "Unknown"
	}
}

// Expr is a node of the predicate tree
type Expr interface {
	isExpr()
}

// Literal is a constant value. It is always sent as a parameter, except
// for booleans in predicate position.
type Literal struct {
	Value any
}

// Member accesses a mapped field of the queried entity by field or column name
type Member struct {
	Name string
}

// Binary combines two expressions with a logical or comparison operator
type Binary struct {
	Op    Operator
	Left  Expr
	Right Expr
}

// Unary negates a predicate
type Unary struct {
	Operand Expr
}

// Call invokes a string method on Target. Arg is nil for ToString.
type Call struct {
	Method Method
	Target Expr
	Arg    Expr
}

func (*Literal) isExpr() {}
func (*Member) isExpr() {}
func (*Binary) isExpr() {}
func (*Unary) isExpr() {}
func (*Call) isExpr() {}

// Operand is a value-producing expression with comparison builders
type Operand struct {
	Expr
}

// Predicate is a boolean expression with logical builders
type Predicate struct {
	Expr
}

// Field refers to a member of the queried entity
func Field(name string) Operand {
	return Operand{&Member{Name: name}}
}

// Value wraps a constant
func Value(v any) Operand {
	return Operand{&Literal{Value: v}}
}

// True is the predicate that matches every row
func True() Predicate {
	return Predicate{&Literal{Value: true}}
}

// False is the predicate that matches no row
func False() Predicate {
	return Predicate{&Literal{Value: false}}
}

// Compare builds left op right. Operands that are not expressions become literals.
func Compare(op Operator, left, right any) Predicate {
	return Predicate{&Binary{Op: op, Left: toExpr(left), Right: toExpr(right)}}
}

func (o Operand) Eq(v any) Predicate { return Compare(OpEqual, o, v) }
func (o Operand) Ne(v any) Predicate { return Compare(OpNotEqual, o, v) }
func (o Operand) Gt(v any) Predicate { return Compare(OpGreaterThan, o, v) }
func (o Operand) Ge(v any) Predicate { return Compare(OpGreaterThanOrEqual, o, v) }
func (o Operand) Lt(v any) Predicate { return Compare(OpLessThan, o, v) }
func (o Operand) Le(v any) Predicate { return Compare(OpLessThanOrEqual, o, v) }

// IsNull matches rows where the operand is NULL
func (o Operand) IsNull() Predicate { return Compare(OpEqual, o, nil) }

// IsNotNull matches rows where the operand is not NULL
func (o Operand) IsNotNull() Predicate { return Compare(OpNotEqual, o, nil) }

func (o Operand) StartsWith(v any) Predicate { return o.call(MethodStartsWith, v) }
func (o Operand) EndsWith(v any) Predicate { return o.call(MethodEndsWith, v) }
func (o Operand) Contains(v any) Predicate { return o.call(MethodContains, v) }
func (o Operand) Equals(v any) Predicate { return o.call(MethodEquals, v) }

// ToString coerces the operand to text
func (o Operand) ToString() Operand {
	return Operand{&Call{Method: MethodToString, Target: o.Expr}}
}

func (o Operand) call(m Method, v any) Predicate {
	return Predicate{&Call{Method: m, Target: o.Expr, Arg: toExpr(v)}}
}

// And combines p and q; both must hold
func (p Predicate) And(q Expr) Predicate {
	return Predicate{&Binary{Op: OpAnd, Left: p.Expr, Right: unwrap(q)}}
}

// Or combines p and q; either must hold
func (p Predicate) Or(q Expr) Predicate {
	return Predicate{&Binary{Op: OpOr, Left: p.Expr, Right: unwrap(q)}}
}

// Not negates p
func (p Predicate) Not() Predicate {
	return Not(p)
}

// Not negates e
func Not(e Expr) Predicate {
	return Predicate{&Unary{Operand: unwrap(e)}}
}

// And folds exprs left to right: ((a AND b) AND c). No exprs yields True.
func And(exprs ...Expr) Predicate {
	return fold(OpAnd, True(), exprs)
}

// Or folds exprs left to right. No exprs yields False.
func Or(exprs ...Expr) Predicate {
	return fold(OpOr, False(), exprs)
}

func fold(op Operator, empty Predicate, exprs []Expr) Predicate {
	var out Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if out == nil {
			out = unwrap(e)
			continue
		}
		out = &Binary{Op: op, Left: out, Right: unwrap(e)}
	}
	if out == nil {
		return empty
	}
	return Predicate{out}
}

func toExpr(v any) Expr {
	if e, ok := v.(Expr); ok && e != nil {
		return unwrap(e)
	}
	return &Literal{Value: v}
}

// unwrap strips builder wrappers down to AST nodes
func unwrap(e Expr) Expr {
	for {
		switch w := e.(type) {
		case Operand:
			e = w.Expr
		case Predicate:
			e = w.Expr
		default:
			return e
		}
	}
}
