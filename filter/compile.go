// Package filter compiles MongoDB-style document filters into reusable
// predicates.
//
// A filter is an object mapping field paths to literal values or to operator
// expressions:
//
//	{"status": "active", "age": {"$gte": 18}, "tags": {"$in": ["a", "b"]}}
//
// Compile walks the filter once and returns an immutable *Predicate whose
// Match method tests documents without looking at the filter again. A
// Predicate is safe for concurrent use.
package filter

import (
	"errors"
	"strings"

	"github.com/coffersTech/nanofilter/value"
)

// Compile converts spec with value.FromAny and compiles it. A nil spec
// compiles to a predicate that matches every document.
func Compile(spec any) (*Predicate, error) {
	v, err := specValue(spec)
	if err != nil {
		return nil, err
	}
	return CompileValue(v)
}

// CompileJSON parses data as a JSON object and compiles it. Key order in the
// text is kept, which matters for embedded document literals.
func CompileJSON(data []byte) (*Predicate, error) {
	v, err := value.ParseJSON(data)
	if err != nil {
		return nil, &ConfigurationError{Code: CodeInvalidJSON, Message: "invalid filter JSON", Cause: err}
	}
	return CompileValue(v)
}

// MustCompile is like Compile but panics if the filter cannot be compiled.
func MustCompile(spec any) *Predicate {
	p, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileValue compiles a filter already in document form.
func CompileValue(spec value.Value) (*Predicate, error) {
	switch spec.Kind() {
	case value.KindNull:
		return &Predicate{root: &Conjunction{}, source: "{}", size: 1}, nil
	case value.KindObject:
	default:
		return nil, configErr(CodeInvalidSpec, "", "", "filter must be an object, got %s", spec.Kind())
	}

	b := &builder{}
	nodes, err := b.level(spec.Object(), nil, OpEq)
	if err != nil {
		return nil, err
	}
	return &Predicate{
		root:   b.conjunction(nodes),
		source: value.Canonical(spec),
		size:   b.nodes,
	}, nil
}

func specValue(spec any) (value.Value, error) {
	v, err := value.FromAny(spec)
	if err == nil {
		return v, nil
	}
	var ue *value.UnsupportedError
	if errors.As(err, &ue) {
		msg := "unsupported operand"
		switch {
		case ue.IsCallable():
			msg = "functions are not supported as operands"
		case ue.Cyclic:
			msg = "cyclic values are not supported as operands"
		}
		return value.Value{}, &ConfigurationError{Code: CodeUnsupportedOperand, Path: ue.Path, Message: msg, Cause: err}
	}
	return value.Value{}, &ConfigurationError{Code: CodeInvalidSpec, Message: "invalid filter", Cause: err}
}

// builder holds the state of a single compilation. Nothing in it outlives the
// Compile call, so concurrent compilations share nothing.
type builder struct {
	nodes int
}

// level compiles every key of spec under prefix, one node per key, to be
// conjoined by the caller.
func (b *builder) level(spec *value.Object, prefix value.Path, mode Operator) ([]Node, error) {
	out := make([]Node, 0, spec.Len())
	for i := 0; i < spec.Len(); i++ {
		key, val := spec.At(i)

		if op, ok := ParseOperator(key); ok {
			n, err := b.operator(op, val, prefix)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
			continue
		}
		if IsUnsupported(key) {
			return nil, configErr(CodeUnsupportedOperator, prefix.String(), key, "operator is not supported")
		}
		if strings.HasPrefix(key, "$") {
			return nil, configErr(CodeUnknownOperator, prefix.String(), key, "unknown operator")
		}

		n, err := b.operand(prefix.Join(splitKey(key)), val, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// operator compiles a reserved key found under prefix.
func (b *builder) operator(op Operator, val value.Value, prefix value.Path) (Node, error) {
	if op == OpAnd {
		return b.and(val, prefix)
	}
	if len(prefix) == 0 {
		return nil, configErr(CodeMisplacedOperator, "", op.String(), "operator must be applied to a field")
	}

	switch op {
	case OpIn, OpNin:
		if val.Kind() != value.KindArray {
			return nil, configErr(CodeMalformedOperand, prefix.String(), op.String(), "operand must be an array, got %s", val.Kind())
		}
		elemMode := OpEq
		if op == OpNin {
			elemMode = OpNe
		}
		elems := val.Array()
		candidates := make([]Node, 0, len(elems))
		for _, e := range elems {
			if isOperatorObject(e) {
				return nil, configErr(CodeMisplacedOperator, prefix.String(), op.String(), "operator expressions are not allowed inside the operand")
			}
			n, err := b.operand(prefix, e, elemMode)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, n)
		}
		if op == OpNin {
			return b.conjunction(candidates), nil
		}
		b.nodes++
		return &Membership{Path: prefix, Candidates: candidates}, nil
	}

	return b.operand(prefix, val, op)
}

// and compiles each branch of $and with a fresh prefix.
func (b *builder) and(val value.Value, prefix value.Path) (Node, error) {
	if len(prefix) > 0 {
		return nil, configErr(CodeMisplacedOperator, prefix.String(), "$and", "operator must be used at the top level of a filter")
	}
	if val.Kind() != value.KindArray || len(val.Array()) == 0 {
		return nil, configErr(CodeMalformedOperand, "", "$and", "operand must be a non-empty array of filters")
	}

	branches := make([]Node, 0, len(val.Array()))
	for _, e := range val.Array() {
		if e.Kind() != value.KindObject {
			return nil, configErr(CodeMalformedOperand, "", "$and", "array elements must be objects, got %s", e.Kind())
		}
		nodes, err := b.level(e.Object(), nil, OpEq)
		if err != nil {
			return nil, err
		}
		branches = append(branches, b.conjunction(nodes))
	}
	return b.conjunction(branches), nil
}

// operand compiles the value found at path under mode.
func (b *builder) operand(path value.Path, val value.Value, mode Operator) (Node, error) {
	switch val.Kind() {
	case value.KindObject:
		if isOperatorObject(val) {
			nodes, err := b.level(val.Object(), path, OpEq)
			if err != nil {
				return nil, err
			}
			if len(nodes) == 1 {
				return nodes[0], nil
			}
			return b.conjunction(nodes), nil
		}
		return b.literal(path, val, mode), nil
	case value.KindArray:
		return b.literal(path, val, mode), nil
	}

	b.nodes++
	return &Compare{Path: path, Op: mode, Value: val}, nil
}

// literal compiles an embedded document or array. Ordering operators keep a
// Compare leaf, which never matches since structured values are incomparable.
func (b *builder) literal(path value.Path, val value.Value, mode Operator) Node {
	b.nodes++
	switch mode {
	case OpEq:
		return &EqualObject{Path: path, Value: val}
	case OpNe:
		return &EqualObject{Path: path, Value: val, Negate: true}
	}
	return &Compare{Path: path, Op: mode, Value: val}
}

func (b *builder) conjunction(children []Node) *Conjunction {
	b.nodes++
	return &Conjunction{Children: children}
}

// isOperatorObject reports whether v is an object with at least one
// $-prefixed key, which makes it an operator expression instead of a document
// literal. Unknown operators are then rejected by level.
func isOperatorObject(v value.Value) bool {
	if v.Kind() != value.KindObject {
		return false
	}
	for _, k := range v.Object().Keys() {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func splitKey(key string) value.Path {
	return value.Path(strings.Split(key, "."))
}
