// Package value implements a recursive, dynamically-typed value suitable for
// representing untyped tool-call arguments. It supports redaction and a
// canonical (sorted-key, whitespace-free) JSON serialization used everywhere
// the audit log and argument-pattern matcher need a byte-stable encoding of
// an argument map.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// Value is a tagged union over the JSON data model. Exactly one of the
// underlying fields is meaningful, selected by Kind.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value             { return Value{kind: KindNull} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Number(n float64) Value  { return Value{kind: KindNumber, n: n} }
func String(s string) Value   { return Value{kind: KindString, s: s} }
func List(vs []Value) Value   { return Value{kind: KindList, list: vs} }
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool)  { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsList() ([]Value, bool)    { return v.list, v.kind == KindList }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// FromJSON decodes arbitrary JSON bytes (an object, typically) into a Value.
func FromJSON(raw []byte) (Value, error) {
	var x interface{}
	if len(raw) == 0 {
		return Map(nil), nil
	}
	if err := json.Unmarshal(raw, &x); err != nil {
		return Value{}, fmt.Errorf("value: decode json: %w", err)
	}
	return fromAny(x), nil
}

// FromMap builds a Value from a decoded map[string]interface{}, the shape
// encoding/json produces for a JSON object by default.
func FromMap(m map[string]interface{}) Value {
	return fromAny(m)
}

func fromAny(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = fromAny(e)
		}
		return List(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = fromAny(e)
		}
		return Map(out)
	default:
		// Unreachable for encoding/json-produced values.
		return String(fmt.Sprintf("%v", t))
	}
}

// Canonical returns the canonical JSON encoding of v: object keys sorted
// lexicographically at every level, no insignificant whitespace. This is the
// exact representation the audit hash chain and argument_pattern regex match
// against, so any change here changes what every existing rule matches.
func Canonical(v Value) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		enc, _ := json.Marshal(v.n)
		buf.Write(enc)
	case KindString:
		enc, _ := json.Marshal(v.s)
		buf.Write(enc)
	case KindList:
		buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	case KindMap:
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
			kenc, _ := json.Marshal(k)
			buf.Write(kenc)
			buf.WriteByte(':')
			writeCanonical(buf, v.m[k])
		}
		buf.WriteByte('}')
	}
}

// Redact returns a copy of v with any map value keyed by a name judged
// sensitive (per isSensitiveKey) replaced by the string "[REDACTED]". Redaction
// is a pure function: it never mutates v and recurses into nested maps/lists.
func Redact(v Value) Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.list))
		for i, e := range v.list {
			out[i] = Redact(e)
		}
		return List(out)
	case KindMap:
		out := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			if isSensitiveKey(k) {
				out[k] = String("[REDACTED]")
				continue
			}
			out[k] = Redact(e)
		}
		return Map(out)
	default:
		return v
	}
}

// sensitiveKeySubstrings are matched case-insensitively against map keys.
// Any key containing one of these is treated as carrying a secret.
var sensitiveKeySubstrings = []string{
	"password", "passwd", "secret", "token",
	"api_key", "api-key", "apikey",
	"access_key", "access-key",
	"private_key", "private-key",
	"credential", "auth", "bearer", "jwt",
}

func isSensitiveKey(key string) bool {
	lower := toLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if contains(lower, sub) {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func contains(s, sub string) bool {
	return bytes.Contains([]byte(s), []byte(sub))
}
