package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// Value is an immutable, untyped metadata tree node. Transaction metadata
// arrives as an arbitrary JSON-like structure; Value gives it a closed set of
// shapes so extraction code can pattern-match instead of type-asserting
// interface{} everywhere.
type Value struct {
	kind ValueKind
	b    bool
	n    json.Number
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value                     { return Value{kind: KindNull} }
func Bool(b bool) Value               { return Value{kind: KindBool, b: b} }
func String(s string) Value           { return Value{kind: KindString, s: s} }
func Number(n json.Number) Value      { return Value{kind: KindNumber, n: n} }
func Int(i int64) Value               { return Value{kind: KindNumber, n: json.Number(fmt.Sprintf("%d", i))} }
func Sequence(items ...Value) Value   { return Value{kind: KindSequence, seq: items} }
func Mapping(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMapping, m: m}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean value if this is a bool variant.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsString returns the string value if this is a string variant.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsInt64 returns the numeric value as int64 if this is a number variant that
// fits in an int64.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := v.n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// AsSequence returns the element slice if this is a sequence variant.
func (v Value) AsSequence() ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	return v.seq, true
}

// AsMapping returns the key/value map if this is a mapping variant.
func (v Value) AsMapping() (map[string]Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	return v.m, true
}

// Get returns the child under key if this is a mapping variant holding it.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	child, ok := v.m[key]
	return child, ok
}

// Has reports whether this is a mapping variant containing key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// FromJSON parses raw JSON into a Value tree. Numbers are kept as
// json.Number so large on-chain integers survive without precision loss.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("failed to parse value tree: %w", err)
	}
	return FromInterface(raw), nil
}

// FromInterface converts a decoded JSON-like structure (as produced by
// encoding/json into interface{}) into a Value tree.
func FromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return Number(t)
	case float64:
		// encoding/json default without UseNumber
		n, _ := json.Marshal(t)
		return Number(json.Number(n))
	case int64:
		return Int(t)
	case int:
		return Int(int64(t))
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromInterface(item))
		}
		return Sequence(items...)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromInterface(item)
		}
		return Mapping(m)
	default:
		// Unknown shapes degrade to their string rendering rather than
		// failing the whole tree.
		return String(fmt.Sprintf("%v", t))
	}
}

// LabelsFromRaw converts a metadata label map (label -> arbitrary payload)
// into label -> Value form for the decoder.
func LabelsFromRaw(raw map[string]interface{}) map[string]Value {
	labels := make(map[string]Value, len(raw))
	for k, v := range raw {
		labels[k] = FromInterface(v)
	}
	return labels
}

// MarshalJSON renders the value back to JSON, with mapping keys sorted for
// stable output.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return []byte(v.n), nil
	case KindString:
		return json.Marshal(v.s)
	case KindSequence:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMapping:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.m[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind: %d", v.kind)
	}
}

// UnmarshalJSON parses JSON into the value, preserving number precision.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
