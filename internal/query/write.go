package query

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/roach88/infobase/internal/thing"
)

// WriteProcessor expands write queries into item mutations.
//
// A write query is one object or a list of objects. Each object names a
// key and optionally a type; its other properties are merged over the
// current state of the key, with null deleting a property. Nested objects
// that carry more than a key are written as things of their own, emitted
// before the object referencing them.
type WriteProcessor struct {
	reader Reader
	perm   PermissionChecker
}

// NewWriteProcessor returns a processor reading current state from r.
// A nil perm skips permission checks.
func NewWriteProcessor(r Reader, perm PermissionChecker) *WriteProcessor {
	return &WriteProcessor{reader: r, perm: perm}
}

// Process returns the ordered items raw expands to. Keys written more than
// once in a query collapse into one item at the position of the first write.
func (p *WriteProcessor) Process(ctx context.Context, raw any) ([]thing.Item, error) {
	objects, err := writeObjects(raw)
	if err != nil {
		return nil, err
	}

	w := &writer{proc: p, o: newOverlay(p.reader)}
	for _, obj := range objects {
		if _, err := w.object(ctx, obj); err != nil {
			return nil, err
		}
	}
	return w.o.items(), nil
}

// writeObjects normalizes the accepted query shapes to a list of objects.
func writeObjects(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case []byte:
		decoded, err := thing.DecodeValue(v)
		if err != nil {
			return nil, newError(ErrCodeInvalidQuery, "", "%v", err)
		}
		return writeObjects(decoded)
	case json.RawMessage:
		return writeObjects([]byte(v))
	case []thing.Data:
		out := make([]map[string]any, len(v))
		for i, d := range v {
			out[i] = map[string]any(d)
		}
		return writeObjects(toAnySlice(out))
	case []map[string]any:
		return writeObjects(toAnySlice(v))
	}

	switch v := thing.Normalize(raw).(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, elem := range v {
			m, ok := elem.(map[string]any)
			if !ok {
				return nil, newError(ErrCodeInvalidQuery, "", "write query elements must be objects, got %T", elem)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, newError(ErrCodeInvalidQuery, "", "write query must be an object or a list of objects, got %T", raw)
	}
}

func toAnySlice(ms []map[string]any) []any {
	out := make([]any, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

type writer struct {
	proc *WriteProcessor
	o    *overlay
}

// object writes one query object and returns its key.
func (w *writer) object(ctx context.Context, obj map[string]any) (string, error) {
	key, _ := obj["key"].(string)
	if !validKey(key) {
		return "", newError(ErrCodeInvalidKey, key, "key must be a string starting with /")
	}

	cur, fromStore, err := w.o.latest(ctx, key)
	if err != nil {
		return "", err
	}

	if mode, ok := obj["create"]; ok {
		if mode != "unless_exists" {
			return "", newError(ErrCodeInvalidQuery, key, "unsupported create mode %v", mode)
		}
		if cur != nil {
			return key, nil
		}
	}

	var typeKey string
	if tv, ok := obj["type"]; ok {
		if typeKey, err = typeOf(key, tv); err != nil {
			return "", err
		}
	} else if cur != nil {
		typeKey = cur.Type
	} else {
		return "", newError(ErrCodeInvalidType, key, "type is required for new things")
	}

	// Nested objects are written first so their type checks and
	// permission checks run before the referencing object's.
	names := make([]string, 0, len(obj))
	for name := range obj {
		if !reserved[name] && name != "create" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	props := make(map[string]any, len(names))
	for _, name := range names {
		v, err := w.value(ctx, obj[name])
		if err != nil {
			return "", err
		}
		props[name] = v
	}

	if err := w.o.checkType(ctx, key, typeKey); err != nil {
		return "", err
	}

	var data thing.Data
	if cur != nil {
		data = cur.Data.Clone()
	}
	if data == nil {
		data = thing.Data{}
	}
	for name, v := range props {
		if v == nil {
			delete(data, name)
		} else {
			data[name] = v
		}
	}

	if fromStore {
		same, err := unchanged(cur, typeKey, data)
		if err != nil {
			return "", err
		}
		if same {
			return key, nil
		}
	}

	if err := checkPermission(ctx, w.proc.perm, key); err != nil {
		return "", err
	}

	w.o.put(thing.Item{Key: key, Type: typeKey, Data: data})
	return key, nil
}

// value resolves nested objects to references.
func (w *writer) value(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if _, ok := val["key"]; !ok || thing.IsRef(val) {
			return val, nil
		}
		key, err := w.object(ctx, val)
		if err != nil {
			return nil, err
		}
		return thing.Ref(key), nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := w.value(ctx, elem)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return val, nil
	}
}
