package query

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Fold evaluates constant sub-trees: comparisons and string methods between
// literals, ToString of literals, negated boolean literals, and logical
// operators with a boolean literal operand.
func Fold(e Expr) (Expr, error) {
	switch n := e.(type) {
	case Operand, Predicate:
		return Fold(unwrap(n))

	case *Literal, *Member:
		return n, nil

	case *Unary:
		inner, err := Fold(n.Operand)
		if err != nil {
			return nil, err
		}
		if b, ok := boolLiteral(inner); ok {
			return &Literal{Value: !b}, nil
		}
		return &Unary{Operand: inner}, nil

	case *Binary:
		left, err := Fold(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Fold(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op.IsLogical() {
			return foldLogical(n.Op, left, right), nil
		}
		l, lok := left.(*Literal)
		r, rok := right.(*Literal)
		if lok && rok {
			v, err := evalComparison(n.Op, l.Value, r.Value)
			if err != nil {
				return nil, err
			}
			return &Literal{Value: v}, nil
		}
		return &Binary{Op: n.Op, Left: left, Right: right}, nil

	case *Call:
		target, err := Fold(n.Target)
		if err != nil {
			return nil, err
		}
		var arg Expr
		if n.Arg != nil {
			if arg, err = Fold(n.Arg); err != nil {
				return nil, err
			}
		}
		t, tok := target.(*Literal)
		if !tok {
			return &Call{Method: n.Method, Target: target, Arg: arg}, nil
		}
		if n.Method == MethodToString {
			return &Literal{Value: toText(t.Value)}, nil
		}
		a, aok := arg.(*Literal)
		if !aok {
			return &Call{Method: n.Method, Target: target, Arg: arg}, nil
		}
		v, err := evalMethod(n.Method, t.Value, a.Value)
		if err != nil {
			return nil, err
		}
		return &Literal{Value: v}, nil

	case nil:
		return nil, fmt.Errorf("empty predicate node")

	default:
		return nil, fmt.Errorf("unsupported predicate node %T", e)
	}
}

func foldLogical(op Operator, left, right Expr) Expr {
	if b, ok := boolLiteral(left); ok {
		return shortCircuit(op, b, right)
	}
	if b, ok := boolLiteral(right); ok {
		return shortCircuit(op, b, left)
	}
	return &Binary{Op: op, Left: left, Right: right}
}

// shortCircuit combines a known boolean with the other operand
func shortCircuit(op Operator, known bool, other Expr) Expr {
	switch {
	case op == OpAnd && !known:
		return &Literal{Value: false}
	case op == OpOr && known:
		return &Literal{Value: true}
	default:
		return other
	}
}

func boolLiteral(e Expr) (bool, bool) {
	lit, ok := e.(*Literal)
	if !ok {
		return false, false
	}
	b, ok := lit.Value.(bool)
	return b, ok
}

func evalComparison(op Operator, a, b any) (bool, error) {
	if a == nil || b == nil {
		switch op {
		case OpEqual:
			return a == nil && b == nil, nil
		case OpNotEqual:
			return !(a == nil && b == nil), nil
		default:
			return false, fmt.Errorf("operator %s cannot compare with null", op)
		}
	}

	cmp, ordered, err := compareValues(a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case OpEqual:
		return cmp == 0, nil
	case OpNotEqual:
		return cmp != 0, nil
	}
	if !ordered {
		return false, fmt.Errorf("operator %s cannot order values of type %T", op, a)
	}
	switch op {
	case OpGreaterThan:
		return cmp > 0, nil
	case OpGreaterThanOrEqual:
		return cmp >= 0, nil
	case OpLessThan:
		return cmp < 0, nil
	case OpLessThanOrEqual:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("operator %s is not a comparison", op)
	}
}

// compareValues compares two constants. ordered is false for values that
// only support equality.
func compareValues(a, b any) (cmp int, ordered bool, err error) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		return ta.Compare(tb), true, nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case isInt(va) && isInt(vb):
		x, y := va.Int(), vb.Int()
		switch {
		case x < y:
			return -1, true, nil
		case x > y:
			return 1, true, nil
		}
		return 0, true, nil
	case isNumber(va) && isNumber(vb):
		x, y := toFloat(va), toFloat(vb)
		return sign(x - y), true, nil
	case va.Kind() == reflect.String && vb.Kind() == reflect.String:
		return strings.Compare(va.String(), vb.String()), true, nil
	case va.Kind() == reflect.Bool && vb.Kind() == reflect.Bool:
		if va.Bool() == vb.Bool() {
			return 0, false, nil
		}
		return 1, false, nil
	}

	if va.Type() != vb.Type() {
		return 0, false, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	if reflect.DeepEqual(a, b) {
		return 0, false, nil
	}
	return 1, false, nil
}

func evalMethod(m Method, target, arg any) (any, error) {
	if m == MethodEquals {
		return evalComparison(OpEqual, target, arg)
	}
	s, ok := target.(string)
	if !ok {
		return nil, fmt.Errorf("%s needs a string target, got %T", m, target)
	}
	x, ok := arg.(string)
	if !ok {
		return nil, fmt.Errorf("%s needs a string argument, got %T", m, arg)
	}
	switch m {
	case MethodStartsWith:
		return strings.HasPrefix(s, x), nil
	case MethodEndsWith:
		return strings.HasSuffix(s, x), nil
	case MethodContains:
		return strings.Contains(s, x), nil
	default:
		return nil, fmt.Errorf("unsupported method %s", m)
	}
}

func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isNumber(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func sign(d float64) int {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}
