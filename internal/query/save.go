package query

import (
	"context"

	"github.com/roach88/infobase/internal/thing"
)

// SaveProcessor normalizes whole-document saves. Unlike a write, a save
// replaces the stored data entirely.
type SaveProcessor struct {
	reader Reader
	perm   PermissionChecker
}

// NewSaveProcessor returns a processor reading current state from r.
// A nil perm skips permission checks.
func NewSaveProcessor(r Reader, perm PermissionChecker) *SaveProcessor {
	return &SaveProcessor{reader: r, perm: perm}
}

// Process returns the item saving doc under key would persist, or nil when
// the save would change nothing.
func (p *SaveProcessor) Process(ctx context.Context, key string, doc thing.Data) (*thing.Item, error) {
	return p.process(ctx, newOverlay(p.reader), key, doc)
}

// ProcessMany normalizes each document on its own and drops the no-ops.
// Types defined by earlier documents are visible to later ones, so a batch
// may introduce a type and its first instances together. A key given more
// than once is saved once, with its last document, at its first position.
func (p *SaveProcessor) ProcessMany(ctx context.Context, docs []thing.Data) ([]thing.Item, error) {
	keys := make([]string, 0, len(docs))
	last := make(map[string]thing.Data, len(docs))
	for i, doc := range docs {
		key, _ := doc["key"].(string)
		if key == "" {
			return nil, newError(ErrCodeInvalidKey, "", "document %d has no key", i)
		}
		if _, seen := last[key]; !seen {
			keys = append(keys, key)
		}
		last[key] = doc
	}

	o := newOverlay(p.reader)
	items := make([]thing.Item, 0, len(keys))
	for _, key := range keys {
		it, err := p.process(ctx, o, key, last[key])
		if err != nil {
			return nil, err
		}
		if it == nil {
			continue
		}
		o.put(*it)
		items = append(items, *it)
	}
	return items, nil
}

func (p *SaveProcessor) process(ctx context.Context, o *overlay, key string, doc thing.Data) (*thing.Item, error) {
	if !validKey(key) {
		return nil, newError(ErrCodeInvalidKey, key, "key must be a string starting with /")
	}
	if k, ok := doc["key"]; ok && k != key {
		return nil, newError(ErrCodeInvalidKey, key, "document key %v does not match %s", k, key)
	}

	cur, err := storedItem(ctx, p.reader, key)
	if err != nil {
		return nil, err
	}

	var typeKey string
	if tv, ok := doc["type"]; ok {
		if typeKey, err = typeOf(key, tv); err != nil {
			return nil, err
		}
	} else if cur != nil {
		typeKey = cur.Type
	} else {
		return nil, newError(ErrCodeInvalidType, key, "type is required for new things")
	}
	if err := o.checkType(ctx, key, typeKey); err != nil {
		return nil, err
	}

	data := thing.Data{}
	for name, v := range doc {
		if reserved[name] || v == nil {
			continue
		}
		data[name] = thing.Normalize(v)
	}

	same, err := unchanged(cur, typeKey, data)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, nil
	}

	if err := checkPermission(ctx, p.perm, key); err != nil {
		return nil, err
	}
	return &thing.Item{Key: key, Type: typeKey, Data: data}, nil
}

func storedItem(ctx context.Context, r Reader, key string) (*thing.Item, error) {
	o := overlay{reader: r}
	it, _, err := o.latest(ctx, key)
	return it, err
}
