package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"unicode/utf8"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single metadata value. The zero Value is Null.
//
// Values are immutable once built: Sequence and Mapping copy their inputs,
// and the accessors return copies.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	seq  []Value
	m    map[string]Value
}

// Metadata is the typed metadata attached to a document.
type Metadata map[string]Value

func String(s string) Value { return Value{kind: KindString, s: s} }

func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

func Null() Value { return Value{} }

// Sequence builds an ordered sequence value.
func Sequence(items ...Value) Value {
	seq := make([]Value, len(items))
	copy(seq, items)
	return Value{kind: KindSequence, seq: seq}
}

// Mapping builds a nested mapping value.
func Mapping(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMapping, m: cp}
}

// ValueOf converts a native Go value into a Value.
// Supported: nil, string, bool, every int/uint width, float32/64, Value,
// Metadata, []Value, []any, []string, map[string]any, map[string]string and
// map[string]Value. Anything else fails with ErrSerialization.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: unsigned integer %d overflows int64", ErrSerialization, v)
		}
		return Int(int64(v)), nil
	case uint64:
		if v > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: unsigned integer %d overflows int64", ErrSerialization, v)
		}
		return Int(int64(v)), nil
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case json.Number:
		return numberValue(v), nil
	case []Value:
		return Sequence(v...), nil
	case []string:
		seq := make([]Value, len(v))
		for i, s := range v {
			seq[i] = String(s)
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case []any:
		seq := make([]Value, len(v))
		for i, item := range v {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			seq[i] = iv
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case Metadata:
		return Mapping(v), nil
	case map[string]Value:
		return Mapping(v), nil
	case map[string]string:
		m := make(map[string]Value, len(v))
		for k, s := range v {
			m[k] = String(s)
		}
		return Value{kind: KindMapping, m: m}, nil
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, item := range v {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = iv
		}
		return Value{kind: KindMapping, m: m}, nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %s", ErrSerialization, reflect.TypeOf(x))
	}
}

// MustValueOf is ValueOf for literals known to be valid. It panics on error.
func MustValueOf(x any) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic(err)
	}
	return v
}

// MetadataOf converts a native map into Metadata.
func MetadataOf(m map[string]any) (Metadata, error) {
	md := make(Metadata, len(m))
	for k, x := range m {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		md[k] = v
	}
	return md, nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInteger }

func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBoolean }

// Seq returns a copy of the items of a sequence.
func (v Value) Seq() ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	out := make([]Value, len(v.seq))
	copy(out, v.seq)
	return out, true
}

// Map returns a copy of the entries of a mapping.
func (v Value) Map() (map[string]Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	out := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		out[k] = item
	}
	return out, true
}

// Interface converts the value back to plain Go types: nil, string, int64,
// float64, bool, []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and content.
// Floats compare by value, so NaN is never equal to itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBoolean:
		return v.b == o.b
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, item := range v.m {
			other, ok := o.m[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes the value as plain JSON. Mapping keys are sorted,
// which keeps the encoding canonical. Non-finite floats are rejected.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		if !utf8.ValidString(v.s) {
			return fmt.Errorf("%w: string is not valid UTF-8", ErrSerialization)
		}
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindInteger:
		buf.WriteString(formatInt(v.i))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("%w: non-finite float %v", ErrSerialization, v.f)
		}
		buf.WriteString(formatFloat(v.f))
	case KindBoolean:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if !utf8.ValidString(k) {
				return fmt.Errorf("%w: mapping key is not valid UTF-8", ErrSerialization)
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.m[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrSerialization, int(v.kind))
	}
	return nil
}

// UnmarshalJSON decodes a single JSON document. Numbers without a fraction
// or exponent that fit in int64 become integers, all other numbers floats.
// Anything but whitespace after the document is an error.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON value", ErrSerialization)
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindSequence, KindMapping:
		b, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("<%s: %v>", v.kind, err)
		}
		return string(b)
	default:
		return encodeScalar(v)
	}
}

// Equal reports whether both maps hold the same keys with equal values.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Interface converts the metadata to a plain map.
func (m Metadata) Interface() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return Mapping(m).MarshalJSON()
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.kind == KindNull {
		*m = nil
		return nil
	}
	if v.kind != KindMapping {
		return fmt.Errorf("%w: metadata must be a JSON object, got %s", ErrSerialization, v.kind)
	}
	*m = Metadata(v.m)
	return nil
}

func numberValue(n json.Number) Value {
	if i, err := n.Int64(); err == nil && isIntegerLiteral(string(n)) {
		return Int(i)
	}
	f, err := n.Float64()
	if err != nil {
		// Out-of-range literals keep their text.
		return String(string(n))
	}
	return Float(f)
}
