package thing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Data is the property tree of a thing. Values are nil, bool, string,
// int64, float64, []any, or map[string]any (Data).
type Data map[string]any

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Data:
		return val.Clone()
	case map[string]any:
		return map[string]any(Data(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}

// Ref builds a reference value pointing at key.
func Ref(key string) map[string]any {
	return map[string]any{"key": key}
}

// RefKey extracts the key of a reference. A bare string is accepted as a
// reference too, which is how type fields are commonly written.
func RefKey(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case map[string]any:
		k, ok := val["key"].(string)
		return k, ok && k != ""
	case Data:
		k, ok := val["key"].(string)
		return k, ok && k != ""
	default:
		return "", false
	}
}

// IsRef reports whether v is an object consisting of nothing but a key.
func IsRef(v any) bool {
	m, ok := asMap(v)
	if !ok || len(m) != 1 {
		return false
	}
	_, ok = m["key"].(string)
	return ok
}

// DecodeData parses a JSON object into Data. Numbers become int64 when
// they are integral and float64 otherwise.
func DecodeData(raw []byte) (Data, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode data: expected object, got %T", v)
	}
	return Data(Normalize(m).(map[string]any)), nil
}

// DecodeValue parses any JSON value with the same number rules as DecodeData.
func DecodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return Normalize(v), nil
}

// Normalize converts decoder and literal output into the value set Data
// documents: json.Number and Go integer kinds collapse to int64 or float64,
// maps with string keys to map[string]any.
func Normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil && !strings.ContainsAny(val.String(), ".eE") {
			return i
		}
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case Data:
		return Normalize(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Normalize(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = Normalize(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Normalize(elem)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = elem
		}
		return out
	default:
		return val
	}
}

func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case Data:
		return val, true
	default:
		return nil, false
	}
}
