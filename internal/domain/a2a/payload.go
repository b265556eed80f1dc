package a2a

import (
	"encoding/json"
	"math"
)

// Payload is an opaque JSON object stored in the JSONB columns of the A2A
// tables (task_context, progress_data, metadata, ...). The store treats it
// as a black box; callers use the typed accessors to read known keys.
type Payload map[string]any

// String returns the string stored under key.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Int returns the integral number stored under key. JSON decoding yields
// float64 for numbers, so whole floats are accepted.
func (p Payload) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// Float returns the number stored under key.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the boolean stored under key.
func (p Payload) Bool(key string) (value, ok bool) {
	value, ok = p[key].(bool)
	return value, ok
}

// Map returns the nested object stored under key.
func (p Payload) Map(key string) (Payload, bool) {
	switch v := p[key].(type) {
	case Payload:
		return v, true
	case map[string]any:
		return Payload(v), true
	default:
		return nil, false
	}
}

// Archived reports whether cleanup has flagged the owning record as archived.
func (p Payload) Archived() bool {
	v, _ := p.Bool(KeyArchived)
	return v
}

// OrEmpty returns p, or an empty payload when p is nil, so that JSON
// encoding produces {} instead of null.
func (p Payload) OrEmpty() Payload {
	if p == nil {
		return Payload{}
	}
	return p
}

// Merge returns a copy of p with the keys of other layered on top.
func (p Payload) Merge(other Payload) Payload {
	out := p.Clone()
	if out == nil {
		out = Payload{}
	}
	for k, v := range other {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of p. Nested maps and slices are copied so the
// result can be mutated without touching the original.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]any:
		return map[string]any(Payload(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// KeyArchived is the metadata key set on tasks archived by cleanup.
const KeyArchived = "archived"
