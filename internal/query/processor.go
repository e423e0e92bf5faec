// Package query turns raw write, save and read queries into the concrete
// operations storage executes.
//
// Write and save processors validate keys and types, merge with current
// state, drop mutations with no effective change and check permissions.
// Their errors are *Error values and reach writers unchanged.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/infobase/internal/thing"
)

// Reader is the read side of a store the processors consult.
type Reader interface {
	Get(ctx context.Context, key string, revision int) (*thing.Thing, error)
}

// PermissionChecker reports whether the acting account may write key.
type PermissionChecker interface {
	CanWrite(ctx context.Context, key string) (bool, error)
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func(ctx context.Context, key string) (bool, error)

func (f PermissionFunc) CanWrite(ctx context.Context, key string) (bool, error) {
	return f(ctx, key)
}

// reserved properties are owned by storage and never written by queries.
var reserved = map[string]bool{
	"key":             true,
	"type":            true,
	"revision":        true,
	"latest_revision": true,
	"created":         true,
	"last_modified":   true,
}

// overlay resolves keys against items produced earlier in the same query
// before falling back to storage.
type overlay struct {
	reader  Reader
	pending map[string]*thing.Item
	order   []string
}

func newOverlay(r Reader) *overlay {
	return &overlay{reader: r, pending: map[string]*thing.Item{}}
}

// latest returns the type and data key currently resolves to, and whether
// that state came from storage.
func (o *overlay) latest(ctx context.Context, key string) (*thing.Item, bool, error) {
	if it, ok := o.pending[key]; ok {
		return it, false, nil
	}
	t, err := o.reader.Get(ctx, key, 0)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	if t == nil {
		return nil, false, nil
	}
	return &thing.Item{Key: t.Key, Type: t.Type, Data: t.Data}, true, nil
}

func (o *overlay) put(it thing.Item) {
	if _, ok := o.pending[it.Key]; !ok {
		o.order = append(o.order, it.Key)
	}
	o.pending[it.Key] = &it
}

func (o *overlay) items() []thing.Item {
	out := make([]thing.Item, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, *o.pending[k])
	}
	return out
}

// checkType verifies typeKey names a /type/type thing. A thing may be its
// own type only when it is /type/type itself.
func (o *overlay) checkType(ctx context.Context, key, typeKey string) error {
	if typeKey == thing.TypeType && key == thing.TypeType {
		return nil
	}
	t, _, err := o.latest(ctx, typeKey)
	if err != nil {
		return err
	}
	if t == nil || t.Type != thing.TypeType {
		return newError(ErrCodeUnknownType, key, "type %s is not defined", typeKey)
	}
	return nil
}

func validKey(key string) bool {
	return strings.HasPrefix(key, "/") && len(key) > 1 && !strings.ContainsAny(key, " \t\n")
}

// typeOf extracts the type key of a document property.
func typeOf(key string, v any) (string, error) {
	typeKey, ok := thing.RefKey(v)
	if !ok || !validKey(typeKey) {
		return "", newError(ErrCodeInvalidType, key, "type must be a key or {\"key\": ...} reference")
	}
	return typeKey, nil
}

func checkPermission(ctx context.Context, perm PermissionChecker, key string) error {
	if perm == nil {
		return nil
	}
	ok, err := perm.CanWrite(ctx, key)
	if err != nil {
		return fmt.Errorf("check permission %s: %w", key, err)
	}
	if !ok {
		return newError(ErrCodePermissionDenied, key, "permission denied")
	}
	return nil
}

// unchanged reports whether writing typeKey/data over cur changes nothing.
func unchanged(cur *thing.Item, typeKey string, data thing.Data) (bool, error) {
	if cur == nil || cur.Type != typeKey {
		return false, nil
	}
	a, err := thing.ItemDigest(cur.Type, cur.Data)
	if err != nil {
		return false, err
	}
	b, err := thing.ItemDigest(typeKey, data)
	if err != nil {
		return false, err
	}
	return a == b, nil
}
