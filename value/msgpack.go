package value

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// ParseMsgpack decodes a single MessagePack document. Map key order is kept.
func ParseMsgpack(data []byte) (Value, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	v, err := decodeMsgpack(dec, "")
	if err != nil {
		return Value{}, fmt.Errorf("value: parse msgpack: %w", err)
	}
	return v, nil
}

// ParseMsgpackStream decodes consecutive MessagePack documents until EOF.
func ParseMsgpackStream(r io.Reader) ([]Value, error) {
	dec := msgpack.NewDecoder(r)
	var out []Value
	for {
		v, err := decodeMsgpack(dec, "")
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("value: parse msgpack (document %d): %w", len(out)+1, err)
		}
		out = append(out, v)
	}
}

func decodeMsgpack(dec *msgpack.Decoder, path string) (Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}

	switch {
	case c == msgpcode.Nil:
		return Value{}, dec.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		return Bool(b), err
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		return String(s), err
	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		return String(string(b)), err
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, err
		}
		if n < 0 {
			return Value{}, nil
		}
		o := NewObject(n)
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return Value{}, fmt.Errorf("map key at %q: %w", path, err)
			}
			e, err := decodeMsgpack(dec, childPath(path, key))
			if err != nil {
				return Value{}, err
			}
			o.Set(key, e)
		}
		return ObjectValue(o), nil
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		if n < 0 {
			return Value{}, nil
		}
		out := make([]Value, n)
		for i := range out {
			if out[i], err = decodeMsgpack(dec, childPath(path, fmt.Sprint(i))); err != nil {
				return Value{}, err
			}
		}
		return ArrayOf(out...), nil
	}

	// Numbers and extension types.
	x, err := dec.DecodeInterface()
	if err != nil {
		return Value{}, err
	}
	return new(converter).fromAny(x, path)
}

// EncodeMsgpack writes v as MessagePack, keeping object key order. Integral
// numbers are written as integers.
func EncodeMsgpack(w io.Writer, v Value) error {
	return encodeMsgpack(msgpack.NewEncoder(w), v)
}

// MarshalMsgpack returns the MessagePack encoding of v.
func MarshalMsgpack(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeMsgpack(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeMsgpack(enc *msgpack.Encoder, v Value) error {
	switch v.kind {
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindNumber:
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53 {
			return enc.EncodeInt(int64(v.n))
		}
		return enc.EncodeFloat64(v.n)
	case KindString:
		return enc.EncodeString(v.s)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := encodeMsgpack(enc, e); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		if err := enc.EncodeMapLen(v.obj.Len()); err != nil {
			return err
		}
		for i, k := range v.obj.keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := encodeMsgpack(enc, v.obj.values[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.EncodeNil()
	}
}
