package value

import (
	"fmt"

	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// ParseJSON decodes a single JSON document. Object key order is preserved.
func ParseJSON(data []byte) (Value, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	fv, err := p.ParseBytes(data)
	if err != nil {
		return Value{}, fmt.Errorf("value: parse json: %w", err)
	}
	// The parsed tree belongs to p, so it is copied out before p is returned.
	return FromFastJSON(fv), nil
}

// MustParseJSON is like ParseJSON but panics on error. Intended for tests and
// package-level literals.
func MustParseJSON(s string) Value {
	v, err := ParseJSON([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// FromFastJSON copies a fastjson value into a Value. The result does not
// reference fv, so the parser that produced fv may be reused afterwards.
func FromFastJSON(fv *fastjson.Value) Value {
	if fv == nil {
		return Value{}
	}
	switch fv.Type() {
	case fastjson.TypeTrue:
		return Bool(true)
	case fastjson.TypeFalse:
		return Bool(false)
	case fastjson.TypeNumber:
		return Number(fv.GetFloat64())
	case fastjson.TypeString:
		return String(string(fv.GetStringBytes()))
	case fastjson.TypeArray:
		elems := fv.GetArray()
		out := make([]Value, len(elems))
		for i, e := range elems {
			out[i] = FromFastJSON(e)
		}
		return ArrayOf(out...)
	case fastjson.TypeObject:
		fo := fv.GetObject()
		o := NewObject(fo.Len())
		fo.Visit(func(key []byte, e *fastjson.Value) {
			o.Set(string(key), FromFastJSON(e))
		})
		return ObjectValue(o)
	default:
		return Value{}
	}
}

// ParseJSONLines decodes a stream of whitespace separated JSON documents, as
// found in NDJSON files and request bodies.
func ParseJSONLines(data []byte) ([]Value, error) {
	var sc fastjson.Scanner
	sc.InitBytes(data)

	var out []Value
	for sc.Next() {
		out = append(out, FromFastJSON(sc.Value()))
	}
	if err := sc.Error(); err != nil {
		return out, fmt.Errorf("value: parse json lines (document %d): %w", len(out)+1, err)
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler with the canonical encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	return AppendCanonical(nil, v), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
