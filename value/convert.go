package value

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// UnsupportedError is returned by FromAny when a Go value has no document
// representation, such as a func or a channel.
type UnsupportedError struct {
	Path   string
	GoType string
	Kind   reflect.Kind
	Cyclic bool // the value contains itself
}

func (e *UnsupportedError) Error() string {
	if e.Cyclic {
		if e.Path == "" {
			return fmt.Sprintf("value: cyclic %s", e.GoType)
		}
		return fmt.Sprintf("value: cyclic %s at %q", e.GoType, e.Path)
	}
	if e.Path == "" {
		return fmt.Sprintf("value: unsupported Go type %s", e.GoType)
	}
	return fmt.Sprintf("value: unsupported Go type %s at %q", e.GoType, e.Path)
}

// IsCallable reports whether the rejected value was a function.
func (e *UnsupportedError) IsCallable() bool {
	return e.Kind == reflect.Func
}

// FromAny converts a plain Go value into a Value.
//
// Accepted inputs are nil, Value, *Object, bool, every integer and float type,
// json.Number, string, []byte (as a string), slices and arrays, and maps with
// string keys. Pointers are followed, and a nil pointer is null. Maps are
// unordered, so their keys are visited in sorted order. A map, slice or
// pointer that contains itself is an *UnsupportedError.
func FromAny(x any) (Value, error) {
	var c converter
	return c.fromAny(x, "")
}

// MustFromAny is like FromAny but panics on error.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// converter holds the containers on the path being converted.
type converter struct {
	seen map[container]struct{}
}

type container struct {
	ptr uintptr
	len int
	typ reflect.Type
}

// enter marks rv as being converted. It fails if rv is already on the path.
func (c *converter) enter(rv reflect.Value, path string) (container, error) {
	key := container{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		key.len = rv.Len()
	}
	if _, ok := c.seen[key]; ok {
		return key, &UnsupportedError{Path: path, GoType: rv.Type().String(), Kind: rv.Kind(), Cyclic: true}
	}
	if c.seen == nil {
		c.seen = make(map[container]struct{})
	}
	c.seen[key] = struct{}{}
	return key, nil
}

func (c *converter) leave(key container) {
	delete(c.seen, key)
}

func (c *converter) fromAny(x any, path string) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Value{}, nil
		}
		return *t, nil
	case *Object:
		return ObjectValue(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid number %q at %q: %w", t, path, err)
		}
		return Number(n), nil
	case []any:
		if len(t) == 0 {
			return ArrayOf(), nil
		}
		key, err := c.enter(reflect.ValueOf(t), path)
		if err != nil {
			return Value{}, err
		}
		defer c.leave(key)
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := c.fromAny(e, childPath(path, strconv.Itoa(i)))
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return ArrayOf(out...), nil
	case map[string]any:
		if t == nil {
			return ObjectValue(NewObject(0)), nil
		}
		key, err := c.enter(reflect.ValueOf(t), path)
		if err != nil {
			return Value{}, err
		}
		defer c.leave(key)
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := NewObject(len(keys))
		for _, k := range keys {
			v, err := c.fromAny(t[k], childPath(path, k))
			if err != nil {
				return Value{}, err
			}
			o.Set(k, v)
		}
		return ObjectValue(o), nil
	}
	return c.fromReflect(reflect.ValueOf(x), path)
}

func (c *converter) fromReflect(rv reflect.Value, path string) (Value, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return Value{}, nil
	case reflect.Interface:
		if rv.IsNil() {
			return Value{}, nil
		}
		return c.fromAny(rv.Elem().Interface(), path)
	case reflect.Pointer:
		if rv.IsNil() {
			return Value{}, nil
		}
		key, err := c.enter(rv, path)
		if err != nil {
			return Value{}, err
		}
		defer c.leave(key)
		return c.fromAny(rv.Elem().Interface(), path)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return Value{}, nil
		}
		if rv.Len() > 0 {
			key, err := c.enter(rv, path)
			if err != nil {
				return Value{}, err
			}
			defer c.leave(key)
		}
		return c.elems(rv, path)
	case reflect.Array:
		return c.elems(rv, path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return Value{}, nil
		}
		key, err := c.enter(rv, path)
		if err != nil {
			return Value{}, err
		}
		defer c.leave(key)
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		o := NewObject(len(keys))
		for _, k := range keys {
			v, err := c.fromAny(rv.MapIndex(k).Interface(), childPath(path, k.String()))
			if err != nil {
				return Value{}, err
			}
			o.Set(k.String(), v)
		}
		return ObjectValue(o), nil
	}
	return Value{}, &UnsupportedError{Path: path, GoType: rv.Type().String(), Kind: rv.Kind()}
}

func (c *converter) elems(rv reflect.Value, path string) (Value, error) {
	out := make([]Value, rv.Len())
	for i := range out {
		v, err := c.fromAny(rv.Index(i).Interface(), childPath(path, strconv.Itoa(i)))
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return ArrayOf(out...), nil
}

func childPath(parent, seg string) string {
	if parent == "" {
		return seg
	}
	return parent + "." + seg
}
