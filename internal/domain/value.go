package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the variant tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a shape-varying record value: Null | Bool | Int | Float | String |
// Object | Array. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	obj  map[string]Value
	arr  []Value
}

func Null() Value                     { return Value{} }
func Bool(b bool) Value               { return Value{kind: KindBool, b: b} }
func Int(i int64) Value               { return Value{kind: KindInt, i: i} }
func Float(f float64) Value           { return Value{kind: KindFloat, f: f} }
func String(s string) Value           { return Value{kind: KindString, s: s} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }
func Array(items []Value) Value       { return Value{kind: KindArray, arr: items} }

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsContainer() bool { return v.kind == KindObject || v.kind == KindArray }

func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsFloat returns the numeric value for Int and Float variants.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }
func (v Value) AsArray() ([]Value, bool)           { return v.arr, v.kind == KindArray }

// Any converts v back into plain Go values (nil, bool, int64, float64,
// string, map[string]any, []any).
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindObject:
		m := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			m[k] = item.Any()
		}
		return m
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// Key returns a canonical string used for set membership and deduplication.
// Equal values produce equal keys.
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "n:"
	case KindBool:
		return "b:" + strconv.FormatBool(v.b)
	case KindInt:
		return "i:" + strconv.FormatInt(v.i, 10)
	case KindFloat:
		return "f:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return "s:" + v.s
	default:
		b, _ := json.Marshal(v)
		return string(v.kind.String()[0]) + ":" + string(b)
	}
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool { return v.Key() == o.Key() }

// Text renders v the way it would print in a report: strings unquoted,
// containers as JSON, null as "null".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNull:
		return "null"
	case KindObject, KindArray:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return fmt.Sprint(v.Any())
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return []byte("null"), nil
		}
	case KindObject:
		// Stable key order for deterministic output.
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			vb, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts decoded JSON/YAML/BSON/driver values into a Value.
// json.Number becomes Int when it parses as an integer, Float otherwise.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil && !strings.ContainsAny(t.String(), ".eE") {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano)), nil
	case map[string]Value:
		return Object(t), nil
	case []Value:
		return Array(t), nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			obj[k] = v
		}
		return Object(obj), nil
	case []any:
		arr := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = v
		}
		return Array(arr), nil
	case map[any]any:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %v: %w", k, err)
			}
			obj[fmt.Sprint(k)] = v
		}
		return Object(obj), nil
	case interface{ Hex() string }:
		return String(t.Hex()), nil
	}
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer:
		return fromReflect(rv)
	}
	if s, ok := x.(fmt.Stringer); ok {
		return String(s.String()), nil
	}
	return fromReflect(rv)
}

// fromReflect handles named map/slice types such as bson.M, bson.A and bson.D.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Map:
		obj := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			obj[fmt.Sprint(iter.Key().Interface())] = v
		}
		return Object(obj), nil
	case reflect.Slice, reflect.Array:
		if isKeyValueSlice(rv) {
			obj := make(map[string]Value, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				el := rv.Index(i)
				v, err := FromAny(el.FieldByName("Value").Interface())
				if err != nil {
					return Value{}, err
				}
				obj[el.FieldByName("Key").String()] = v
			}
			return Object(obj), nil
		}
		arr := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Array(arr), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromAny(rv.Elem().Interface())
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", rv.Interface())
}

// isKeyValueSlice matches ordered documents (e.g. bson.D) whose elements are
// structs with a string Key and a Value.
func isKeyValueSlice(rv reflect.Value) bool {
	et := rv.Type().Elem()
	if et.Kind() != reflect.Struct {
		return false
	}
	k, ok := et.FieldByName("Key")
	if !ok || k.Type.Kind() != reflect.String {
		return false
	}
	_, ok = et.FieldByName("Value")
	return ok
}

// MustFromAny is FromAny for literals known to be valid (tests, constants).
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// ObjectFromMap converts a plain map into an object's field map.
func ObjectFromMap(m map[string]any) (map[string]Value, error) {
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, _ := v.AsObject()
	if obj == nil {
		obj = map[string]Value{}
	}
	return obj, nil
}

// ToMap converts an object's field map back into plain Go values.
func ToMap(fields map[string]Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v.Any()
	}
	return out
}
