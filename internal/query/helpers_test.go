package query

import (
	"context"

	"github.com/roach88/infobase/internal/thing"
)

// memReader is a map-backed Reader.
type memReader map[string]*thing.Thing

func (m memReader) Get(_ context.Context, key string, revision int) (*thing.Thing, error) {
	t, ok := m[key]
	if !ok || (revision != 0 && revision != t.Revision) {
		return nil, nil
	}
	return t.Clone(), nil
}

func (m memReader) add(key, typeKey string, data thing.Data) {
	m[key] = &thing.Thing{Key: key, Type: typeKey, Revision: 1, LatestRevision: 1, Data: data}
}

func baseReader() memReader {
	r := memReader{}
	r.add(thing.TypeType, thing.TypeType, thing.Data{})
	r.add("/type/page", thing.TypeType, thing.Data{})
	r.add("/type/author", thing.TypeType, thing.Data{})
	return r
}

func denyKeys(keys ...string) PermissionFunc {
	deny := map[string]bool{}
	for _, k := range keys {
		deny[k] = true
	}
	return func(_ context.Context, key string) (bool, error) {
		return !deny[key], nil
	}
}
