package sqlite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// propertyPattern restricts property names that may appear in a JSON path.
// Paths are bound as parameters, never interpolated, but a strict name
// keeps "$.a.b" style traversal out of user control.
var propertyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// thingColumns maps sortable metadata fields of the things table.
var thingColumns = map[string]string{
	"key":           "t.key",
	"type":          "t.type",
	"created":       "t.created",
	"last_modified": "t.last_modified",
	"revision":      "t.latest_revision",
}

// versionColumns maps sortable fields of the versions table.
var versionColumns = map[string]string{
	"key":      "key",
	"revision": "revision",
	"created":  "created",
	"author":   "author",
	"ip":       "ip",
}

// compileThings converts a ThingsQuery to parameterized SQL.
//
// MANDATORY: every query ends in a key tiebreaker so ordering is total.
// MANDATORY: all values are parameterized, never interpolated.
func compileThings(q store.ThingsQuery) (string, []any, error) {
	var (
		where  []string
		params []any
	)

	if q.Type != "" {
		where = append(where, "t.type = ?")
		params = append(params, q.Type)
	}

	for _, c := range q.Conditions {
		if !propertyPattern.MatchString(c.Property) {
			return "", nil, fmt.Errorf("invalid property name %q", c.Property)
		}
		clause, args, err := compileCondition(c)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
		params = append(params, args...)
	}

	var order []string
	for _, f := range q.Sort {
		expr, args, err := thingSortExpr(f.Field)
		if err != nil {
			return "", nil, err
		}
		order = append(order, expr+direction(f.Desc))
		params = append(params, args...)
	}
	order = append(order, "t.key ASC")

	var b strings.Builder
	b.WriteString("SELECT t.key FROM things t JOIN versions v ON v.key = t.key AND v.revision = t.latest_revision")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))
	params = appendPage(&b, params, q.Limit, q.Offset)

	return b.String(), params, nil
}

// compileVersions converts a VersionsQuery to parameterized SQL.
// Without an explicit sort, newest revisions come first.
func compileVersions(q store.VersionsQuery) (string, []any, error) {
	var (
		where  []string
		params []any
	)
	if q.Key != "" {
		where = append(where, "key = ?")
		params = append(params, q.Key)
	}
	if q.Author != "" {
		where = append(where, "author = ?")
		params = append(params, q.Author)
	}
	if q.IP != "" {
		where = append(where, "ip = ?")
		params = append(params, q.IP)
	}

	sortFields := q.Sort
	if len(sortFields) == 0 {
		sortFields = []store.SortField{{Field: "created", Desc: true}}
	}
	var order []string
	for _, f := range sortFields {
		col, ok := versionColumns[f.Field]
		if !ok {
			return "", nil, fmt.Errorf("cannot sort versions by %q", f.Field)
		}
		order = append(order, col+direction(f.Desc))
	}
	order = append(order, "key ASC", "revision DESC")

	var b strings.Builder
	b.WriteString("SELECT key, revision, type, created, comment, machine_comment, ip, author FROM versions")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))
	params = appendPage(&b, params, q.Limit, q.Offset)

	return b.String(), params, nil
}

// compileCondition renders one property predicate against the latest
// revision's data. References compare on their key.
func compileCondition(c store.Condition) (string, []any, error) {
	path := "$." + c.Property
	switch v := c.Value.(type) {
	case nil:
		return "json_extract(v.data, ?) IS NULL", []any{path}, nil
	case string, int64, float64:
		return "json_extract(v.data, ?) = ?", []any{path, v}, nil
	case int:
		return "json_extract(v.data, ?) = ?", []any{path, int64(v)}, nil
	case bool:
		n := 0
		if v {
			n = 1
		}
		return "json_extract(v.data, ?) = ?", []any{path, n}, nil
	default:
		if key, ok := thing.RefKey(v); ok && thing.IsRef(v) {
			return "json_extract(v.data, ?) = ?", []any{path + ".key", key}, nil
		}
		return "", nil, fmt.Errorf("unsupported value for property %q: %T", c.Property, c.Value)
	}
}

func thingSortExpr(field string) (string, []any, error) {
	if col, ok := thingColumns[field]; ok {
		return col, nil, nil
	}
	if !propertyPattern.MatchString(field) {
		return "", nil, fmt.Errorf("cannot sort things by %q", field)
	}
	return "json_extract(v.data, ?)", []any{"$." + field}, nil
}

func appendPage(b *strings.Builder, params []any, limit, offset int) []any {
	switch {
	case limit > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, limit, offset)
	case offset > 0:
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, offset)
	}
	return params
}

func direction(desc bool) string {
	if desc {
		return " DESC"
	}
	return " ASC"
}
