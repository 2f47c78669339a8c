// Package payload navigates loosely shaped provider JSON.
//
// Provider documents arrive as decoded JSON objects whose nesting and value
// types vary between webhook pushes and polled documents. Payload wraps such a
// map with nil-safe accessors; every accessor on a missing or mistyped path
// returns the zero value instead of failing.
package payload

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is a decoded JSON object.
type Payload map[string]any

// Parse decodes a JSON object. Any other JSON value is rejected.
func Parse(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &json.UnmarshalTypeError{Value: "null", Field: ""}
	}
	return p, nil
}

// Map returns the nested object at key, or nil.
func (p Payload) Map(key string) Payload {
	if p == nil {
		return nil
	}
	return asMap(p[key])
}

// Dig walks nested objects along keys and returns the final object, or nil.
func (p Payload) Dig(keys ...string) Payload {
	cur := p
	for _, k := range keys {
		cur = cur.Map(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Slice returns the array at key, or nil.
func (p Payload) Slice(key string) []any {
	if p == nil {
		return nil
	}
	if s, ok := p[key].([]any); ok {
		return s
	}
	return nil
}

// String returns the trimmed scalar at key, or "" when absent or blank.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	return Scalar(p[key])
}

// FirstString returns the first non-empty String among keys.
func (p Payload) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := p.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Has reports whether key is present with a non-nil value.
func (p Payload) Has(key string) bool {
	if p == nil {
		return false
	}
	v, ok := p[key]
	return ok && v != nil
}

// Int returns the integer at key. Numeric strings are accepted.
func (p Payload) Int(key string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return Integer(p[key])
}

// Clone returns a shallow copy so callers can add keys without mutating the source.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Scalar renders a JSON scalar as a trimmed string. Objects, arrays and nulls
// yield "".
func Scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// Integer converts numbers and numeric strings to int64.
func Integer(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func asMap(v any) Payload {
	switch t := v.(type) {
	case map[string]any:
		return Payload(t)
	case Payload:
		return t
	default:
		return nil
	}
}
