package value

// Order is the result of ordering two values.
type Order int8

const (
	Incomparable Order = iota
	Less
	Same
	Greater
)

func (o Order) String() string {
	switch o {
	case Less:
		return "less"
	case Same:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "incomparable"
	}
}

// Equal reports literal equality between a and b.
//
// Scalars are equal only when kind and value both match; there is no coercion
// between numbers, strings and booleans, and NaN equals nothing. Arrays and
// objects are equal iff their canonical encodings are identical, which makes
// object key order significant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	default:
		return canonicalEqual(a, b)
	}
}

// canonicalEqual compares two values the way comparing Canonical(a) and
// Canonical(b) would, without building the strings. Non-finite numbers encode
// as null, so they are equal to null and to each other here.
func canonicalEqual(a, b Value) bool {
	ak, bk := canonicalKind(a), canonicalKind(b)
	if ak != bk {
		return false
	}
	switch ak {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !canonicalEqual(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for i, k := range a.obj.keys {
			if b.obj.keys[i] != k || !canonicalEqual(a.obj.values[i], b.obj.values[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// canonicalKind maps non-finite numbers to null, mirroring the encoder.
func canonicalKind(v Value) Kind {
	if v.kind == KindNumber && !isFinite(v.n) {
		return KindNull
	}
	return v.kind
}

// Compare orders a against b. Only two numbers or two strings are comparable;
// strings compare byte-wise, which for UTF-8 is code point order. That differs
// from UTF-16 code unit order only when a supplementary character (U+10000 and
// up) meets one in U+E000..U+FFFF. Every other pairing, including NaN, nulls,
// booleans, arrays and objects, is Incomparable.
func Compare(a, b Value) Order {
	if a.kind != b.kind {
		return Incomparable
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.n < b.n:
			return Less
		case a.n > b.n:
			return Greater
		case a.n == b.n:
			return Same
		}
		return Incomparable
	case KindString:
		switch {
		case a.s < b.s:
			return Less
		case a.s > b.s:
			return Greater
		}
		return Same
	}
	return Incomparable
}
