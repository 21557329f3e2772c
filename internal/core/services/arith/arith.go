// Package arith evaluates numeric expressions over + - * / and parentheses.
//
// Expressions are parsed with go/parser and walked directly, so nothing
// beyond arithmetic on literals and bound names can run.
package arith

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Errors returned by Eval.
var (
	ErrSyntax         = errors.New("invalid expression")
	ErrUnsupported    = errors.New("unsupported expression")
	ErrUnbound        = errors.New("unbound variable")
	ErrDivisionByZero = errors.New("division by zero")
)

// Eval evaluates expr. Identifiers are looked up in vars.
func Eval(expr string, vars map[string]float64) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("%w: empty", ErrSyntax)
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	v, err := eval(node, vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: result is not finite", ErrUnsupported)
	}
	return v, nil
}

func eval(n ast.Expr, vars map[string]float64) (float64, error) {
	switch e := n.(type) {
	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return 0, fmt.Errorf("%w: literal %s", ErrUnsupported, e.Value)
		}
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrSyntax, e.Value)
		}
		return v, nil

	case *ast.Ident:
		v, ok := vars[e.Name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnbound, e.Name)
		}
		return v, nil

	case *ast.ParenExpr:
		return eval(e.X, vars)

	case *ast.UnaryExpr:
		x, err := eval(e.X, vars)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return -x, nil
		default:
			return 0, fmt.Errorf("%w: operator %s", ErrUnsupported, e.Op)
		}

	case *ast.BinaryExpr:
		x, err := eval(e.X, vars)
		if err != nil {
			return 0, err
		}
		y, err := eval(e.Y, vars)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return x / y, nil
		default:
			return 0, fmt.Errorf("%w: operator %s", ErrUnsupported, e.Op)
		}

	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupported, n)
	}
}

// Substitute replaces each whole-word occurrence of a bound name in
// formula with its value. Longer names are replaced first so that a name
// is never clobbered by one of its prefixes. Negative values are wrapped
// in parentheses.
func Substitute(formula string, vars map[string]float64) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	out := formula
	for _, name := range names {
		val := strconv.FormatFloat(vars[name], 'g', -1, 64)
		if vars[name] < 0 {
			val = "(" + val + ")"
		}
		out = replaceWord(out, name, val)
	}
	return out
}

func replaceWord(s, name, val string) string {
	pattern := regexp.QuoteMeta(name)
	if isWordByte(name[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(name[len(name)-1]) {
		pattern += `\b`
	}
	re := regexp.MustCompile(pattern)
	return re.ReplaceAllLiteralString(s, val)
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
