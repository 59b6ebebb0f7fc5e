// Package condition compiles effect conditions of the form
// `<path> <op> <literal>` into a small closed AST that is evaluated against a
// runtime context. Evaluation fails closed: a missing field, a type mismatch
// or a malformed expression never grants a bonus.
package condition

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Parse for expressions outside the grammar.
var ErrMalformed = errors.New("malformed condition")

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Context is the runtime data a condition is evaluated against, e.g.
// {"question": {"category": "dosimetry"}}.
type Context map[string]any

// Expr is a compiled condition. The set of implementations is closed.
type Expr interface {
	Eval(ctx Context) bool
	String() string
	isExpr()
}

// Path is a dot separated field lookup.
type Path []string

func (p Path) String() string { return strings.Join(p, ".") }

// Lookup walks ctx along the path. Nested maps may be Context,
// map[string]any or map[string]string.
func (p Path) Lookup(ctx Context) (any, bool) {
	var cur any = map[string]any(ctx)
	for _, key := range p {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		case Context:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// LiteralKind tags the coerced type of a literal.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
)

// Literal is the right-hand side of a comparison, coerced at parse time.
type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Bool bool
}

func (l Literal) String() string {
	switch l.Kind {
	case LiteralNumber:
		return strconv.FormatFloat(l.Num, 'g', -1, 64)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	default:
		return "'" + l.Str + "'"
	}
}

// parseLiteral coerces raw text to number, boolean or string, in that order
// of preference. Quoted text is always a string.
func parseLiteral(raw string) (Literal, error) {
	if raw == "" {
		return Literal{}, fmt.Errorf("%w: missing literal", ErrMalformed)
	}
	if q := raw[0]; q == '\'' || q == '"' {
		if len(raw) < 2 || raw[len(raw)-1] != q {
			return Literal{}, fmt.Errorf("%w: unterminated string literal %s", ErrMalformed, raw)
		}
		return Literal{Kind: LiteralString, Str: raw[1 : len(raw)-1]}, nil
	}
	switch raw {
	case "true", "false":
		return Literal{Kind: LiteralBool, Bool: raw == "true"}, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Literal{Kind: LiteralNumber, Num: f}, nil
	}
	if strings.ContainsAny(raw, " \t'\"=!<>") {
		return Literal{}, fmt.Errorf("%w: invalid literal %s", ErrMalformed, raw)
	}
	return Literal{Kind: LiteralString, Str: raw}, nil
}

// Comparison holds the operands shared by every operator node.
type Comparison struct {
	Path    Path
	Literal Literal
}

type (
	Eq  struct{ Comparison }
	Neq struct{ Comparison }
	Gte struct{ Comparison }
	Lte struct{ Comparison }
	Gt  struct{ Comparison }
	Lt  struct{ Comparison }
)

func (Eq) isExpr()  {}
func (Neq) isExpr() {}
func (Gte) isExpr() {}
func (Lte) isExpr() {}
func (Gt) isExpr()  {}
func (Lt) isExpr()  {}

func (e Eq) String() string  { return e.Path.String() + " == " + e.Literal.String() }
func (e Neq) String() string { return e.Path.String() + " != " + e.Literal.String() }
func (e Gte) String() string { return e.Path.String() + " >= " + e.Literal.String() }
func (e Lte) String() string { return e.Path.String() + " <= " + e.Literal.String() }
func (e Gt) String() string  { return e.Path.String() + " > " + e.Literal.String() }
func (e Lt) String() string  { return e.Path.String() + " < " + e.Literal.String() }

func (e Eq) Eval(ctx Context) bool {
	eq, ok := e.equal(ctx)
	return ok && eq
}

func (e Neq) Eval(ctx Context) bool {
	eq, ok := e.equal(ctx)
	return ok && !eq
}

func (e Gte) Eval(ctx Context) bool {
	c, ok := e.order(ctx)
	return ok && c >= 0
}

func (e Lte) Eval(ctx Context) bool {
	c, ok := e.order(ctx)
	return ok && c <= 0
}

func (e Gt) Eval(ctx Context) bool {
	c, ok := e.order(ctx)
	return ok && c > 0
}

func (e Lt) Eval(ctx Context) bool {
	c, ok := e.order(ctx)
	return ok && c < 0
}

// Always is the expression of an effect without a condition.
type Always struct{}

func (Always) isExpr()           {}
func (Always) Eval(Context) bool { return true }
func (Always) String() string    { return "" }

// Never is substituted for conditions that failed to compile.
type Never struct{ Source string }

func (Never) isExpr()           {}
func (Never) Eval(Context) bool { return false }
func (n Never) String() string  { return n.Source }

// equal compares the context value with the literal. ok is false when the
// field is missing or the types cannot be compared.
func (c Comparison) equal(ctx Context) (eq bool, ok bool) {
	v, found := c.Path.Lookup(ctx)
	if !found {
		return false, false
	}
	switch c.Literal.Kind {
	case LiteralNumber:
		n, isNum := toFloat(v)
		if !isNum {
			return false, false
		}
		return n == c.Literal.Num, true
	case LiteralBool:
		b, isBool := v.(bool)
		if !isBool {
			return false, false
		}
		return b == c.Literal.Bool, true
	default:
		s, isStr := toString(v)
		if !isStr {
			return false, false
		}
		return s == c.Literal.Str, true
	}
}

// order returns -1, 0 or 1 comparing the context value to the literal.
// Only numbers and strings are ordered.
func (c Comparison) order(ctx Context) (int, bool) {
	v, found := c.Path.Lookup(ctx)
	if !found {
		return 0, false
	}
	switch c.Literal.Kind {
	case LiteralNumber:
		n, isNum := toFloat(v)
		if !isNum {
			return 0, false
		}
		switch {
		case n < c.Literal.Num:
			return -1, true
		case n > c.Literal.Num:
			return 1, true
		default:
			return 0, true
		}
	case LiteralString:
		s, isStr := v.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(s, c.Literal.Str), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}

// Parse compiles a condition. The empty string compiles to Always.
func Parse(expr string) (Expr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Always{}, nil
	}

	idx, op := findOperator(expr)
	if idx < 0 {
		return nil, fmt.Errorf("%w: no comparison operator in %q", ErrMalformed, expr)
	}

	left := strings.TrimSpace(expr[:idx])
	right := strings.TrimSpace(expr[idx+len(op):])
	if !pathPattern.MatchString(left) {
		return nil, fmt.Errorf("%w: invalid field path %q", ErrMalformed, left)
	}
	lit, err := parseLiteral(right)
	if err != nil {
		return nil, err
	}

	cmp := Comparison{Path: Path(strings.Split(left, ".")), Literal: lit}
	switch op {
	case "==":
		return Eq{cmp}, nil
	case "!=":
		return Neq{cmp}, nil
	case ">=":
		return Gte{cmp}, nil
	case "<=":
		return Lte{cmp}, nil
	case ">":
		return Gt{cmp}, nil
	default:
		return Lt{cmp}, nil
	}
}

// Compile is Parse for callers that prefer a usable expression over an
// error: malformed input yields Never.
func Compile(expr string) (Expr, error) {
	e, err := Parse(expr)
	if err != nil {
		return Never{Source: expr}, err
	}
	return e, nil
}

// findOperator returns the index and text of the first operator outside
// quotes, or -1.
func findOperator(expr string) (int, string) {
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '=', '!':
			if i+1 < len(expr) && expr[i+1] == '=' {
				return i, expr[i : i+2]
			}
			return -1, ""
		case '<', '>':
			if i+1 < len(expr) && expr[i+1] == '=' {
				return i, expr[i : i+2]
			}
			return i, expr[i : i+1]
		}
	}
	return -1, ""
}
