package value

import (
	"strconv"
	"strings"
)

// Path is a parsed dot-separated field path such as "legal.citizenship".
type Path []string

// ParsePath splits s on dots. The empty string yields an empty path.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "."))
}

// String joins the segments with dots.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new path with seg appended. p is never modified, so paths
// can be shared between sibling nodes.
func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Join returns a new path with the segments of q appended.
func (p Path) Join(q Path) Path {
	out := make(Path, 0, len(p)+len(q))
	out = append(out, p...)
	return append(out, q...)
}

// Resolve walks p through doc. It returns ok == false as soon as a segment
// cannot be followed: the current value is not an object holding the key, or
// not an array and the segment is not a valid index into it. Resolution never
// fails with an error; a missing intermediate segment is simply absent.
func Resolve(doc Value, p Path) (Value, bool) {
	cur := doc
	for _, seg := range p {
		switch cur.kind {
		case KindObject:
			next, ok := cur.obj.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindArray:
			i, ok := arrayIndex(seg)
			if !ok || i >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[i]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// arrayIndex parses seg as a non-negative decimal index without sign or
// leading zeros.
func arrayIndex(seg string) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}
