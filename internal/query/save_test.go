package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/infobase/internal/thing"
)

func TestSave_ReplacesDocument(t *testing.T) {
	r := baseReader()
	r.add("/home", "/type/page", thing.Data{"title": "Home", "body": "old"})
	p := NewSaveProcessor(r, nil)

	it, err := p.Process(context.Background(), "/home", thing.Data{
		"key":             "/home",
		"type":            map[string]any{"key": "/type/page"},
		"title":           "Home 2",
		"revision":        int64(7),
		"last_modified":   "2020-01-01",
		"latest_revision": int64(7),
	})
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, thing.Item{Key: "/home", Type: "/type/page", Data: thing.Data{"title": "Home 2"}}, *it)
}

func TestSave_Unchanged(t *testing.T) {
	r := baseReader()
	r.add("/home", "/type/page", thing.Data{"title": "Home"})
	p := NewSaveProcessor(r, denyKeys("/home"))

	it, err := p.Process(context.Background(), "/home", thing.Data{"title": "Home", "revision": int64(1)})
	require.NoError(t, err)
	assert.Nil(t, it)
}

func TestSave_TypeChangeIsAChange(t *testing.T) {
	r := baseReader()
	r.add("/home", "/type/page", thing.Data{"title": "Home"})
	p := NewSaveProcessor(r, nil)

	it, err := p.Process(context.Background(), "/home", thing.Data{"type": "/type/author", "title": "Home"})
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, "/type/author", it.Type)
}

func TestSave_Errors(t *testing.T) {
	p := NewSaveProcessor(baseReader(), denyKeys("/denied"))
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		doc  thing.Data
		code ErrorCode
	}{
		{"bad key", "nope", thing.Data{"type": "/type/page"}, ErrCodeInvalidKey},
		{"mismatched key", "/a", thing.Data{"key": "/b", "type": "/type/page"}, ErrCodeInvalidKey},
		{"no type", "/a", thing.Data{}, ErrCodeInvalidType},
		{"unknown type", "/a", thing.Data{"type": "/type/zzz"}, ErrCodeUnknownType},
		{"denied", "/denied", thing.Data{"type": "/type/page"}, ErrCodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(ctx, tt.key, tt.doc)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestSaveMany_FiltersNoOpsAndSeesEarlierTypes(t *testing.T) {
	r := baseReader()
	r.add("/same", "/type/page", thing.Data{"title": "x"})
	p := NewSaveProcessor(r, nil)

	items, err := p.ProcessMany(context.Background(), []thing.Data{
		{"key": "/type/note", "type": thing.TypeType},
		{"key": "/same", "type": "/type/page", "title": "x"},
		{"key": "/n/1", "type": "/type/note", "text": "hello"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/type/note", items[0].Key)
	assert.Equal(t, "/n/1", items[1].Key)
}

func TestSaveMany_CollapsesRepeatedKeys(t *testing.T) {
	p := NewSaveProcessor(baseReader(), nil)

	items, err := p.ProcessMany(context.Background(), []thing.Data{
		{"key": "/d", "type": "/type/page", "a": int64(1)},
		{"key": "/e", "type": "/type/page"},
		{"key": "/d", "type": "/type/page", "a": int64(2)},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/d", items[0].Key)
	assert.Equal(t, int64(2), items[0].Data["a"])
	assert.Equal(t, "/e", items[1].Key)
}

func TestSaveMany_RequiresKeys(t *testing.T) {
	p := NewSaveProcessor(baseReader(), nil)

	_, err := p.ProcessMany(context.Background(), []thing.Data{{"type": "/type/page"}})
	assert.Equal(t, ErrCodeInvalidKey, CodeOf(err))
}

func TestSave_BootstrapTypeType(t *testing.T) {
	p := NewSaveProcessor(memReader{}, nil)

	it, err := p.Process(context.Background(), thing.TypeType, thing.Data{"type": thing.TypeType})
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, thing.TypeType, it.Type)
}
