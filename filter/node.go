package filter

import (
	"github.com/coffersTech/nanofilter/value"
)

// Node is an element of a compiled predicate tree. The set of node types is
// closed; evaluation dispatches on the concrete type.
type Node interface {
	node()
}

// Compare is a leaf testing the value at Path against Value with Op.
type Compare struct {
	Path  value.Path
	Op    Operator
	Value value.Value
}

// EqualObject is a leaf testing the value at Path for structural equality
// with an embedded document or array literal.
type EqualObject struct {
	Path   value.Path
	Value  value.Value
	Negate bool
}

// Conjunction is true iff every child is true. It holds sibling keys, the
// branches of $and, and the per-element leaves of $nin.
type Conjunction struct {
	Children []Node
}

// Membership is true iff any candidate is true. Candidates are compiled with
// equality semantics, one per $in element.
type Membership struct {
	Path       value.Path
	Candidates []Node
}

func (*Compare) node()     {}
func (*EqualObject) node() {}
func (*Conjunction) node() {}
func (*Membership) node()  {}

// eval evaluates n against doc. It never panics and never allocates.
func eval(n Node, doc value.Value) bool {
	switch n := n.(type) {
	case *Conjunction:
		for _, c := range n.Children {
			if !eval(c, doc) {
				return false
			}
		}
		return true
	case *Membership:
		for _, c := range n.Candidates {
			if eval(c, doc) {
				return true
			}
		}
		return false
	case *Compare:
		return n.match(doc)
	case *EqualObject:
		return n.match(doc)
	default:
		return false
	}
}

func (n *Compare) match(doc value.Value) bool {
	got, ok := value.Resolve(doc, n.Path)
	nullish := !ok || got.IsNull()

	switch n.Op {
	case OpEq:
		if n.Value.IsNull() {
			return nullish
		}
		if !ok {
			return false
		}
		if value.Equal(got, n.Value) {
			return true
		}
		return got.Kind() == value.KindArray && contains(got.Array(), n.Value)
	case OpNe:
		if n.Value.IsNull() {
			return !nullish
		}
		return !ok || !value.Equal(got, n.Value)
	}

	if !n.Op.IsOrdering() {
		return false
	}
	if n.Value.IsNull() {
		// null behaves as equal to a nullish value and orders against nothing.
		return nullish && (n.Op == OpGte || n.Op == OpLte)
	}
	if nullish {
		return false
	}
	if got.Kind() == value.KindArray {
		for _, e := range got.Array() {
			if satisfies(n.Op, value.Compare(e, n.Value)) {
				return true
			}
		}
		return false
	}
	return satisfies(n.Op, value.Compare(got, n.Value))
}

func (n *EqualObject) match(doc value.Value) bool {
	got, ok := value.Resolve(doc, n.Path)
	if n.Negate {
		return !ok || !value.Equal(got, n.Value)
	}
	if !ok {
		return false
	}
	if value.Equal(got, n.Value) {
		return true
	}
	return got.Kind() == value.KindArray && contains(got.Array(), n.Value)
}

func contains(elems []value.Value, want value.Value) bool {
	for _, e := range elems {
		if value.Equal(e, want) {
			return true
		}
	}
	return false
}

func satisfies(op Operator, ord value.Order) bool {
	switch op {
	case OpGt:
		return ord == value.Greater
	case OpGte:
		return ord == value.Greater || ord == value.Same
	case OpLt:
		return ord == value.Less
	case OpLte:
		return ord == value.Less || ord == value.Same
	}
	return false
}
