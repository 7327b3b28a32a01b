package filter

import (
	"fmt"
	"strings"

	"github.com/coffersTech/nanofilter/value"
)

// Predicate is a compiled filter. It is immutable and safe for concurrent use.
// A nil *Predicate matches every document.
type Predicate struct {
	root   *Conjunction
	source string
	size   int
}

// Match reports whether doc satisfies the filter. It never panics; values
// that cannot be compared simply do not match.
func (p *Predicate) Match(doc value.Value) bool {
	if p == nil || p.root == nil {
		return true
	}
	return eval(p.root, doc)
}

// MatchAny converts doc with value.FromAny and matches it. Documents that
// cannot be converted never match.
func (p *Predicate) MatchAny(doc any) bool {
	v, err := value.FromAny(doc)
	if err != nil {
		return false
	}
	return p.Match(v)
}

// Filter returns the matching documents in their original order.
func (p *Predicate) Filter(docs []value.Value) []value.Value {
	var out []value.Value
	for _, d := range docs {
		if p.Match(d) {
			out = append(out, d)
		}
	}
	return out
}

// Root returns the top-level conjunction.
func (p *Predicate) Root() *Conjunction {
	if p == nil || p.root == nil {
		return &Conjunction{}
	}
	return p.root
}

// Size returns the number of nodes in the compiled tree.
func (p *Predicate) Size() int {
	if p == nil {
		return 1
	}
	return p.size
}

// Source returns the canonical encoding of the filter p was compiled from.
func (p *Predicate) Source() string {
	if p == nil {
		return "{}"
	}
	return p.source
}

// String renders the node tree, one node per line.
func (p *Predicate) String() string {
	var sb strings.Builder
	render(&sb, p.Root(), 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

func render(sb *strings.Builder, n Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	switch n := n.(type) {
	case *Conjunction:
		fmt.Fprintf(sb, "and (%d)\n", len(n.Children))
		for _, c := range n.Children {
			render(sb, c, depth+1)
		}
	case *Membership:
		fmt.Fprintf(sb, "any %s (%d)\n", n.Path, len(n.Candidates))
		for _, c := range n.Candidates {
			render(sb, c, depth+1)
		}
	case *Compare:
		fmt.Fprintf(sb, "%s %s %s\n", n.Path, n.Op, value.Canonical(n.Value))
	case *EqualObject:
		op := OpEq
		if n.Negate {
			op = OpNe
		}
		fmt.Fprintf(sb, "%s %s doc %s\n", n.Path, op, value.Canonical(n.Value))
	}
}
