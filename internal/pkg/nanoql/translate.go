package nanoql

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/coffersTech/nanofilter/value"
)

// ErrUnsupported is wrapped when a query parses but has no filter-document
// equivalent.
var ErrUnsupported = errors.New("nanoql construct not supported")

var comparisonOps = map[string]string{
	"=":  "$eq",
	"!=": "$ne",
	">":  "$gt",
	">=": "$gte",
	"<":  "$lt",
	"<=": "$lte",
}

// Translate parses a NanoQL query and returns the equivalent filter
// document. Blank input translates to null, which matches everything.
//
//	status:active AND age >= 21        {"$and":[{"status":"active"},{"age":{"$gte":21}}]}
//	NOT tags IN (a, b)                 {"tags":{"$nin":["a","b"]}}
func Translate(input string) (value.Value, error) {
	node, err := Parse(input)
	if err != nil {
		return value.Null(), err
	}
	if node == nil {
		return value.Null(), nil
	}
	return toFilter(node)
}

func toFilter(node Node) (value.Value, error) {
	switch n := node.(type) {
	case BinaryExpr:
		if n.Op != "AND" {
			return value.Null(), fmt.Errorf("%w: %s", ErrUnsupported, n.Op)
		}
		var clauses []value.Value
		if err := collectAnd(n, &clauses); err != nil {
			return value.Null(), err
		}
		return value.ObjectOf(value.F("$and", value.ArrayOf(clauses...))), nil
	case MatchExpr:
		return matchFilter(n, false)
	case InExpr:
		return inFilter(n, false)
	case NotExpr:
		return notFilter(n.Expr)
	}
	return value.Null(), fmt.Errorf("%w: %T", ErrUnsupported, node)
}

// collectAnd flattens nested AND nodes into one clause list.
func collectAnd(node Node, out *[]value.Value) error {
	if b, ok := node.(BinaryExpr); ok && b.Op == "AND" {
		if err := collectAnd(b.Left, out); err != nil {
			return err
		}
		return collectAnd(b.Right, out)
	}
	f, err := toFilter(node)
	if err != nil {
		return err
	}
	*out = append(*out, f)
	return nil
}

func notFilter(inner Node) (value.Value, error) {
	switch n := inner.(type) {
	case NotExpr:
		return toFilter(n.Expr)
	case MatchExpr:
		return matchFilter(n, true)
	case InExpr:
		return inFilter(n, true)
	}
	return value.Null(), fmt.Errorf("%w: NOT applies only to a single comparison", ErrUnsupported)
}

func matchFilter(m MatchExpr, negate bool) (value.Value, error) {
	if m.Key == "" {
		return value.Null(), fmt.Errorf("%w: full-text term %q, use key:value", ErrUnsupported, m.Value.Text)
	}
	if err := checkKey(m.Key); err != nil {
		return value.Null(), err
	}

	op := m.Op
	if negate {
		switch op {
		case "=":
			op = "!="
		case "!=":
			op = "="
		default:
			return value.Null(), fmt.Errorf("%w: NOT %s %s", ErrUnsupported, m.Key, m.Op)
		}
	}

	lit := literalValue(m.Value)
	if op == "=" {
		return value.ObjectOf(value.F(m.Key, lit)), nil
	}
	return value.ObjectOf(value.F(m.Key, value.ObjectOf(value.F(comparisonOps[op], lit)))), nil
}

func inFilter(in InExpr, negate bool) (value.Value, error) {
	if err := checkKey(in.Key); err != nil {
		return value.Null(), err
	}
	elems := make([]value.Value, len(in.Values))
	for i, lit := range in.Values {
		elems[i] = literalValue(lit)
	}
	op := "$in"
	if negate {
		op = "$nin"
	}
	return value.ObjectOf(value.F(in.Key, value.ObjectOf(value.F(op, value.ArrayOf(elems...))))), nil
}

func checkKey(key string) error {
	for _, seg := range strings.Split(key, ".") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in field %q", ErrSyntax, key)
		}
	}
	return nil
}

// literalValue reads bare literals as null, booleans or finite numbers when
// they spell one, and as strings otherwise.
func literalValue(lit Literal) value.Value {
	if lit.Quoted {
		return value.String(lit.Text)
	}
	switch lit.Text {
	case "null":
		return value.Null()
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	if c := lit.Text[0]; c == '-' || c == '.' || (c >= '0' && c <= '9') {
		if n, err := strconv.ParseFloat(lit.Text, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
			return value.Number(n)
		}
	}
	return value.String(lit.Text)
}
