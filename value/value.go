// Package value implements the document model shared by filters and documents.
//
// A Value is a tagged variant over the JSON data model: null, boolean, number,
// string, array and object. Objects keep their keys in insertion order so that
// canonical encodings are deterministic and match the order a document was
// written in.
//
// Values are immutable once shared. Arrays and objects built by this package
// must not be modified after they are handed to a compiled filter or to
// another goroutine.
package value

import "math"

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a single document value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *Object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// ArrayOf returns an array value holding vs. The slice is not copied.
func ArrayOf(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindArray, arr: vs}
}

// ObjectValue wraps o as a Value. A nil object is treated as empty.
func ObjectValue(o *Object) Value {
	if o == nil {
		o = NewObject(0)
	}
	return Value{kind: KindObject, obj: o}
}

// ObjectOf builds an object value from fields in order.
func ObjectOf(fields ...Field) Value {
	o := NewObject(len(fields))
	for _, f := range fields {
		o.Set(f.Key, f.Value)
	}
	return ObjectValue(o)
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsStructured reports whether v is an array or an object.
func (v Value) IsStructured() bool { return v.kind == KindArray || v.kind == KindObject }

// AsBool returns the boolean held by v, or false.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the number held by v, or 0.
func (v Value) AsNumber() float64 { return v.n }

// AsString returns the string held by v, or "".
func (v Value) AsString() string { return v.s }

// Array returns the elements of an array value, or nil.
func (v Value) Array() []Value { return v.arr }

// Object returns the object held by v, or nil.
func (v Value) Object() *Object { return v.obj }

// Interface converts v into plain Go values: nil, bool, float64, string,
// []any and map[string]any. Object key order is lost.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, v.obj.Len())
		v.obj.Range(func(key string, e Value) bool {
			out[key] = e.Interface()
			return true
		})
		return out
	default:
		return nil
	}
}

// String implements fmt.Stringer with the canonical encoding.
func (v Value) String() string { return Canonical(v) }

// Field is a single key/value pair of an object.
type Field struct {
	Key   string
	Value Value
}

// F is shorthand for a Field literal.
func F(key string, v Value) Field { return Field{Key: key, Value: v} }

// indexThreshold is the object size above which lookups use a map.
const indexThreshold = 8

// Object is an ordered string-keyed mapping.
type Object struct {
	keys   []string
	values []Value
	index  map[string]int
}

// NewObject returns an empty object with room for n fields.
func NewObject(n int) *Object {
	return &Object{
		keys:   make([]string, 0, n),
		values: make([]Value, 0, n),
	}
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in order. The returned slice must not be modified.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// At returns the i-th field in order.
func (o *Object) At(i int) (string, Value) {
	return o.keys[i], o.values[i]
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	if o.index != nil {
		i, ok := o.index[key]
		if !ok {
			return Value{}, false
		}
		return o.values[i], true
	}
	for i, k := range o.keys {
		if k == key {
			return o.values[i], true
		}
	}
	return Value{}, false
}

// Set stores v under key. An existing key keeps its position, matching the
// last-one-wins behaviour of JSON decoders.
func (o *Object) Set(key string, v Value) {
	if o.index != nil {
		if i, ok := o.index[key]; ok {
			o.values[i] = v
			return
		}
	} else {
		for i, k := range o.keys {
			if k == key {
				o.values[i] = v
				return
			}
		}
	}

	o.keys = append(o.keys, key)
	o.values = append(o.values, v)

	if o.index != nil {
		o.index[key] = len(o.keys) - 1
	} else if len(o.keys) > indexThreshold {
		o.index = make(map[string]int, len(o.keys)*2)
		for i, k := range o.keys {
			o.index[k] = i
		}
	}
}

// Range calls fn for each field in order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for i, k := range o.keys {
		if !fn(k, o.values[i]) {
			return
		}
	}
}

// isFinite reports whether n is neither NaN nor infinite.
func isFinite(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0)
}
