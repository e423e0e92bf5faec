package infobase

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/query"
	"github.com/roach88/infobase/internal/request"
	"github.com/roach88/infobase/internal/thing"
)

// WriteOptions carries the metadata of a write. Zero fields are resolved
// from the context and the Infobase clock.
type WriteOptions struct {
	// Timestamp defaults to the Infobase clock.
	Timestamp time.Time

	Comment        string
	MachineComment string

	// IP defaults to request.IP(ctx).
	IP string

	// Author defaults to the account acting in ctx.
	Author *account.Account

	// Internal skips permission checks. Used for bootstrap and account
	// registration.
	Internal bool
}

// WriteResult lists the keys a write created and updated, in persisted
// order.
type WriteResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

// Write applies a write query. Processor errors are returned unchanged;
// persistence errors are wrapped. Nothing is emitted unless persistence
// succeeds.
func (s *Site) Write(ctx context.Context, q any, opts WriteOptions) (res WriteResult, err error) {
	defer s.observe("write", time.Now(), &err)

	w, err := s.resolve(ctx, opts)
	if err != nil {
		return WriteResult{}, err
	}

	items, err := query.NewWriteProcessor(s.store, w.perm).Process(ctx, q)
	if err != nil {
		return WriteResult{}, err
	}

	res, _, err = s.commit(ctx, items, w)
	return res, err
}

// Save replaces the document of key. It returns nil when the document is
// unchanged; nothing is persisted or emitted then.
func (s *Site) Save(ctx context.Context, key string, data thing.Data, opts WriteOptions) (_ *thing.SaveResult, err error) {
	defer s.observe("save", time.Now(), &err)

	w, err := s.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	item, err := query.NewSaveProcessor(s.store, w.perm).Process(ctx, key, data)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	_, results, err := s.commit(ctx, []thing.Item{*item}, w)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// SaveMany replaces several documents atomically. Unchanged documents are
// dropped; the remaining list drives persistence, events and triggers.
func (s *Site) SaveMany(ctx context.Context, docs []thing.Data, opts WriteOptions) (_ []thing.SaveResult, err error) {
	defer s.observe("save_many", time.Now(), &err)

	w, err := s.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	items, err := query.NewSaveProcessor(s.store, w.perm).ProcessMany(ctx, docs)
	if err != nil {
		return nil, err
	}

	_, results, err := s.commit(ctx, items, w)
	return results, err
}

// resolvedWrite is WriteOptions with defaults applied.
type resolvedWrite struct {
	meta   thing.Meta
	author *account.Account
	perm   query.PermissionChecker
}

func (s *Site) resolve(ctx context.Context, opts WriteOptions) (resolvedWrite, error) {
	author := opts.Author
	if author == nil {
		var err error
		if author, err = s.accounts.CurrentUser(ctx); err != nil {
			return resolvedWrite{}, err
		}
	}

	w := resolvedWrite{
		meta: thing.Meta{
			Timestamp:      opts.Timestamp,
			Comment:        opts.Comment,
			MachineComment: opts.MachineComment,
			IP:             opts.IP,
		},
		author: author,
	}
	if w.meta.Timestamp.IsZero() {
		w.meta.Timestamp = s.ib.now()
	}
	if w.meta.IP == "" {
		w.meta.IP = request.IP(ctx)
	}
	if author != nil {
		w.meta.AuthorKey = author.Key
	}
	if !opts.Internal {
		w.perm = query.PermissionFunc(func(ctx context.Context, key string) (bool, error) {
			return s.ib.decider.HasPermission(ctx, s.store, author, key)
		})
	}
	return w, nil
}

// commit persists items, emits one save event per item in persisted order
// and fires triggers.
func (s *Site) commit(ctx context.Context, items []thing.Item, w resolvedWrite) (WriteResult, []thing.SaveResult, error) {
	res := WriteResult{Created: []string{}, Updated: []string{}}
	if len(items) == 0 {
		return res, []thing.SaveResult{}, nil
	}

	results, err := s.store.SaveMany(ctx, items, w.meta)
	if err != nil {
		return WriteResult{}, nil, fmt.Errorf("persist %d items on %s: %w", len(items), s.name, err)
	}

	eventIDs := make(map[string]string, len(items))
	for _, it := range items {
		ev := event.New(s.ib.ids.Generate(), s.name, event.NameSave, w.meta.Timestamp, w.meta.IP, w.meta.AuthorKey, it.Document())
		eventIDs[it.Key] = ev.ID()
		s.ib.FireEvent(ctx, ev)
	}

	for _, r := range results {
		if r.Created() {
			res.Created = append(res.Created, r.Key)
		} else {
			res.Updated = append(res.Updated, r.Key)
		}
	}
	s.ib.metrics.ItemsPersisted(len(res.Created), len(res.Updated))

	s.fireTriggers(ctx, results, eventIDs)
	return res, results, nil
}

func (s *Site) observe(op string, start time.Time, err *error) {
	s.ib.metrics.ObserveWrite(op, *err, time.Since(start))
}
