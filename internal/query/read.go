package query

import (
	"sort"
	"strings"

	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// Limits applied to read queries.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// MakeThingsQuery compiles a things query of the form
//
//	{"type": "/type/page", "title": "Home", "sort": "-created", "limit": 10}
//
// Keys other than type, sort, limit and offset are property equality
// conditions.
func MakeThingsQuery(q map[string]any) (store.ThingsQuery, error) {
	out := store.ThingsQuery{Limit: DefaultLimit}
	for name, raw := range q {
		v := thing.Normalize(raw)
		switch name {
		case "type":
			typeKey, err := typeOf("", v)
			if err != nil {
				return store.ThingsQuery{}, err
			}
			out.Type = typeKey
		case "limit":
			n, err := intParam(name, v)
			if err != nil {
				return store.ThingsQuery{}, err
			}
			out.Limit = n
		case "offset":
			n, err := intParam(name, v)
			if err != nil {
				return store.ThingsQuery{}, err
			}
			out.Offset = n
		case "sort":
			sf, err := sortParam(v)
			if err != nil {
				return store.ThingsQuery{}, err
			}
			out.Sort = sf
		default:
			if m, ok := v.(map[string]any); ok && !thing.IsRef(m) {
				return store.ThingsQuery{}, newError(ErrCodeInvalidQuery, "", "nested condition on %q is not supported", name)
			}
			if _, ok := v.([]any); ok {
				return store.ThingsQuery{}, newError(ErrCodeInvalidQuery, "", "list condition on %q is not supported", name)
			}
			out.Conditions = append(out.Conditions, store.Condition{Property: name, Value: v})
		}
	}
	if out.Limit > MaxLimit {
		out.Limit = MaxLimit
	}
	sortConditions(out.Conditions)
	return out, nil
}

// MakeVersionsQuery compiles a history query with optional key, author and
// ip filters. The default order is newest first.
func MakeVersionsQuery(q map[string]any) (store.VersionsQuery, error) {
	out := store.VersionsQuery{Limit: DefaultLimit}
	for name, raw := range q {
		v := thing.Normalize(raw)
		switch name {
		case "key", "author", "ip":
			s, ok := v.(string)
			if !ok {
				if ref, isRef := thing.RefKey(v); isRef && thing.IsRef(v) {
					s, ok = ref, true
				}
			}
			if !ok {
				return store.VersionsQuery{}, newError(ErrCodeInvalidQuery, "", "%s must be a string", name)
			}
			switch name {
			case "key":
				out.Key = s
			case "author":
				out.Author = s
			default:
				out.IP = s
			}
		case "limit":
			n, err := intParam(name, v)
			if err != nil {
				return store.VersionsQuery{}, err
			}
			out.Limit = n
		case "offset":
			n, err := intParam(name, v)
			if err != nil {
				return store.VersionsQuery{}, err
			}
			out.Offset = n
		case "sort":
			sf, err := sortParam(v)
			if err != nil {
				return store.VersionsQuery{}, err
			}
			out.Sort = sf
		default:
			return store.VersionsQuery{}, newError(ErrCodeInvalidQuery, "", "unknown versions filter %q", name)
		}
	}
	if out.Limit > MaxLimit {
		out.Limit = MaxLimit
	}
	if len(out.Sort) == 0 {
		out.Sort = []store.SortField{{Field: "created", Desc: true}}
	}
	return out, nil
}

func intParam(name string, v any) (int, error) {
	n, ok := v.(int64)
	if !ok || n < 0 {
		return 0, newError(ErrCodeInvalidQuery, "", "%s must be a non-negative integer", name)
	}
	return int(n), nil
}

// sortParam accepts "field", "-field" or a list of those.
func sortParam(v any) ([]store.SortField, error) {
	var names []any
	switch val := v.(type) {
	case string:
		names = []any{val}
	case []any:
		names = val
	default:
		return nil, newError(ErrCodeInvalidQuery, "", "sort must be a string or list of strings")
	}

	out := make([]store.SortField, 0, len(names))
	for _, n := range names {
		s, ok := n.(string)
		if !ok || s == "" || s == "-" {
			return nil, newError(ErrCodeInvalidQuery, "", "invalid sort field %v", n)
		}
		desc := strings.HasPrefix(s, "-")
		out = append(out, store.SortField{Field: strings.TrimPrefix(s, "-"), Desc: desc})
	}
	return out, nil
}

// sortConditions orders conditions by property so compiled SQL is stable
// regardless of map iteration order.
func sortConditions(cs []store.Condition) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Property < cs[j].Property })
}
