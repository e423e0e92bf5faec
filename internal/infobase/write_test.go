package infobase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/query"
	"github.com/roach88/infobase/internal/request"
	"github.com/roach88/infobase/internal/store/sqlite"
	"github.com/roach88/infobase/internal/testutil"
	"github.com/roach88/infobase/internal/thing"
)

func TestWrite_CreateThenUpdate(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)
	rec.Reset()

	res, err := site.Write(adminCtx(), map[string]any{"key": "/k1", "type": noteType, "title": "one"}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/k1"}, res.Created)
	assert.Empty(t, res.Updated)

	events := rec.Filter(testutil.KindEvent)
	require.Len(t, events, 1)
	assert.Equal(t, "save", events[0].Name)
	assert.Equal(t, "/k1", events[0].Key)
	assert.Equal(t, noteType, events[0].Type)
	assert.Empty(t, rec.Filter(testutil.KindTrigger))

	site.AddTrigger(noteType, recordingTrigger(rec, "note"))
	rec.Reset()

	res, err = site.Write(adminCtx(), map[string]any{"key": "/k1", "type": noteType, "title": "two"}, WriteOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"/k1"}, res.Updated)

	triggers := rec.Filter(testutil.KindTrigger)
	require.Len(t, triggers, 1)
	assert.Equal(t, 1, triggers[0].OldRev)
	assert.Equal(t, 2, triggers[0].NewRev)

	// Events precede triggers.
	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, testutil.KindEvent, entries[0].Kind)
	assert.Equal(t, testutil.KindTrigger, entries[1].Kind)
}

func TestWrite_TypeChangeFiresOldTypeThenNewType(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, "/type/t1")
	defineType(t, site, "/type/t2")

	_, err := site.Write(adminCtx(), map[string]any{"key": "/k1", "type": "/type/t1", "n": 1}, WriteOptions{})
	require.NoError(t, err)
	_, err = site.Write(adminCtx(), map[string]any{"key": "/k1", "type": "/type/t1", "n": 2}, WriteOptions{})
	require.NoError(t, err)

	site.AddTrigger("/type/t1", recordingTrigger(rec, "t1"))
	site.AddTrigger("/type/t2", recordingTrigger(rec, "t2"))
	rec.Reset()

	res, err := site.Write(adminCtx(), map[string]any{"key": "/k1", "type": "/type/t2"}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/k1"}, res.Updated)

	triggers := rec.Filter(testutil.KindTrigger)
	require.Len(t, triggers, 2)
	assert.Equal(t, "t1", triggers[0].Name)
	assert.Equal(t, "t2", triggers[1].Name)
	for _, tr := range triggers {
		assert.Equal(t, 2, tr.OldRev)
		assert.Equal(t, "/type/t1", tr.OldType)
		assert.Equal(t, 3, tr.NewRev)
		assert.Equal(t, "/type/t2", tr.NewType)
	}
}

func TestWrite_AnonymousIsDenied(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)
	rec.Reset()

	_, err := site.Write(context.Background(), map[string]any{"key": "/k1", "type": noteType}, WriteOptions{})
	require.Error(t, err)
	assert.True(t, query.IsPermissionDenied(err))
	assert.Empty(t, rec.Entries())

	th, err := site.Get(context.Background(), "/k1", 0)
	require.NoError(t, err)
	assert.Nil(t, th)
}

func TestWrite_UnknownTypeEmitsNothing(t *testing.T) {
	site, rec := newTestSite(t)

	_, err := site.Write(adminCtx(), map[string]any{"key": "/k1", "type": "/type/missing"}, WriteOptions{})
	require.Error(t, err)
	assert.Equal(t, query.ErrCodeUnknownType, query.CodeOf(err))
	assert.Empty(t, rec.Entries())
}

func TestWrite_UnchangedIsEmpty(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)
	site.AddTrigger(noteType, recordingTrigger(rec, "note"))

	doc := map[string]any{"key": "/k1", "type": noteType, "title": "same"}
	_, err := site.Write(adminCtx(), doc, WriteOptions{})
	require.NoError(t, err)
	rec.Reset()

	res, err := site.Write(adminCtx(), doc, WriteOptions{})
	require.NoError(t, err)
	assert.NotNil(t, res.Created)
	assert.NotNil(t, res.Updated)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Updated)
	assert.Empty(t, rec.Entries())

	th, err := site.Get(context.Background(), "/k1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, th.Revision)
}

func TestWrite_NestedItemsEmitInPersistedOrder(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)
	rec.Reset()

	res, err := site.Write(adminCtx(), map[string]any{
		"key":   "/k1",
		"type":  noteType,
		"child": map[string]any{"key": "/k2", "type": noteType},
	}, WriteOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/k1", "/k2"}, res.Created)

	events := rec.Filter(testutil.KindEvent)
	require.Len(t, events, 2)
	assert.Equal(t, res.Created[0], events[0].Key)
	assert.Equal(t, res.Created[1], events[1].Key)

	parent, err := site.Get(context.Background(), "/k1", 0)
	require.NoError(t, err)
	ref, ok := thing.RefKey(parent.Data["child"])
	require.True(t, ok)
	assert.Equal(t, "/k2", ref)
}

func TestWrite_PersistenceFailureEmitsNothing(t *testing.T) {
	var fail atomic.Bool
	p, err := sqlite.NewProvider(t.TempDir())
	require.NoError(t, err)
	ib := New(faultyProvider{Provider: p, fail: &fail}, "test-secret", testOptions()...)
	t.Cleanup(func() { ib.Close() })

	site, err := ib.Create(context.Background(), "t1")
	require.NoError(t, err)
	defineType(t, site, noteType)

	rec := testutil.NewRecorder()
	ib.AddEventListener(rec.Listener())
	site.AddTrigger(noteType, recordingTrigger(rec, "note"))

	fail.Store(true)
	_, err = site.Write(adminCtx(), map[string]any{"key": "/k1", "type": noteType}, WriteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.False(t, query.IsValidation(err))
	assert.Empty(t, rec.Entries())
}

func TestWrite_ExplicitOptionsOverrideDefaults(t *testing.T) {
	site, _ := newTestSite(t)
	defineType(t, site, noteType)

	alice, err := site.AccountManager().Register(context.Background(), "alice", "alice@example.com", "pw", nil)
	require.NoError(t, err)

	ts := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	ctx := request.WithIP(adminCtx(), "198.51.100.1")
	_, err = site.Write(ctx, map[string]any{"key": "/k1", "type": noteType}, WriteOptions{
		Timestamp: ts,
		Comment:   "first",
		IP:        "203.0.113.9",
		Author:    alice,
	})
	require.NoError(t, err)

	versions, err := site.Versions(context.Background(), map[string]any{"key": "/k1"})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	v := versions[0]
	assert.True(t, ts.Equal(v.Created))
	assert.Equal(t, "first", v.Comment)
	assert.Equal(t, "203.0.113.9", v.IP)
	assert.Equal(t, alice.Key, v.Author)
}

func TestWrite_DefaultsFromContext(t *testing.T) {
	site, _ := newTestSite(t)
	defineType(t, site, noteType)

	ctx := request.WithIP(adminCtx(), "198.51.100.1")
	_, err := site.Write(ctx, map[string]any{"key": "/k1", "type": noteType}, WriteOptions{})
	require.NoError(t, err)

	versions, err := site.Versions(context.Background(), map[string]any{"key": "/k1"})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "198.51.100.1", versions[0].IP)
	assert.Equal(t, adminKey, versions[0].Author)
	assert.False(t, versions[0].Created.IsZero())
}

func TestWrite_AuthorFromUsername(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)

	_, err := site.AccountManager().Register(context.Background(), "alice", "alice@example.com", "pw", nil)
	require.NoError(t, err)
	rec.Reset()

	ctx := request.WithUser(context.Background(), "alice")
	_, err = site.Write(ctx, map[string]any{"key": "/k1", "type": noteType}, WriteOptions{})
	require.NoError(t, err)

	events := rec.Filter(testutil.KindEvent)
	require.Len(t, events, 1)
	assert.Equal(t, account.UserKey("alice"), events[0].Author)
}

func TestSave_CreateUpdateAndNoOp(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)
	site.AddTrigger(noteType, recordingTrigger(rec, "note"))
	rec.Reset()

	doc := thing.Data{"type": thing.Ref(noteType), "title": "a"}
	r, err := site.Save(adminCtx(), "/k1", doc, WriteOptions{})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, thing.SaveResult{Key: "/k1", Revision: 1}, *r)

	r, err = site.Save(adminCtx(), "/k1", thing.Data{"type": thing.Ref(noteType), "title": "b"}, WriteOptions{})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.Revision)

	assert.Len(t, rec.Filter(testutil.KindEvent), 2)
	triggers := rec.Filter(testutil.KindTrigger)
	require.Len(t, triggers, 2)
	assert.Zero(t, triggers[0].OldRev)
	assert.Equal(t, 1, triggers[0].NewRev)
	assert.Equal(t, 1, triggers[1].OldRev)
	assert.Equal(t, 2, triggers[1].NewRev)
	rec.Reset()

	r, err = site.Save(adminCtx(), "/k1", thing.Data{"type": thing.Ref(noteType), "title": "b"}, WriteOptions{})
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, rec.Entries())
}

func TestSave_ReplacesWholeDocument(t *testing.T) {
	site, _ := newTestSite(t)
	defineType(t, site, noteType)

	_, err := site.Save(adminCtx(), "/k1", thing.Data{"type": thing.Ref(noteType), "a": "1", "b": "2"}, WriteOptions{})
	require.NoError(t, err)
	_, err = site.Save(adminCtx(), "/k1", thing.Data{"type": thing.Ref(noteType), "a": "1"}, WriteOptions{})
	require.NoError(t, err)

	th, err := site.Get(context.Background(), "/k1", 0)
	require.NoError(t, err)
	assert.Equal(t, "1", th.Data["a"])
	assert.NotContains(t, th.Data, "b")
}

func TestSaveMany_FiltersUnchanged(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)

	_, err := site.Save(adminCtx(), "/a", thing.Data{"type": thing.Ref(noteType), "v": "1"}, WriteOptions{})
	require.NoError(t, err)
	site.AddTrigger(noteType, recordingTrigger(rec, "note"))
	rec.Reset()

	results, err := site.SaveMany(adminCtx(), []thing.Data{
		{"key": "/a", "type": thing.Ref(noteType), "v": "1"},
		{"key": "/b", "type": thing.Ref(noteType), "v": "1"},
		{"key": "/c", "type": thing.Ref(noteType), "v": "1"},
	}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []thing.SaveResult{{Key: "/b", Revision: 1}, {Key: "/c", Revision: 1}}, results)

	events := rec.Filter(testutil.KindEvent)
	require.Len(t, events, 2)
	assert.Equal(t, "/b", events[0].Key)
	assert.Equal(t, "/c", events[1].Key)
	assert.Len(t, rec.Filter(testutil.KindTrigger), 2)
}

func TestSaveMany_RepeatedKeySavedOnce(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)
	site.AddTrigger(noteType, recordingTrigger(rec, "note"))
	rec.Reset()

	results, err := site.SaveMany(adminCtx(), []thing.Data{
		{"key": "/d", "type": thing.Ref(noteType), "a": int64(1)},
		{"key": "/d", "type": thing.Ref(noteType), "a": int64(2)},
	}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []thing.SaveResult{{Key: "/d", Revision: 1}}, results)

	fired := rec.Filter(testutil.KindTrigger)
	require.Len(t, fired, 1)
	assert.Equal(t, 0, fired[0].OldRev)
	assert.Equal(t, 1, fired[0].NewRev)

	got, err := site.Get(adminCtx(), "/d", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Data["a"])
}

func TestSaveMany_CreatedTriggersBeforeUpdated(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)

	_, err := site.Save(adminCtx(), "/old", thing.Data{"type": thing.Ref(noteType), "v": "1"}, WriteOptions{})
	require.NoError(t, err)
	site.AddTrigger(noteType, recordingTrigger(rec, "note"))
	rec.Reset()

	_, err = site.SaveMany(adminCtx(), []thing.Data{
		{"key": "/old", "type": thing.Ref(noteType), "v": "2"},
		{"key": "/new", "type": thing.Ref(noteType), "v": "1"},
	}, WriteOptions{})
	require.NoError(t, err)

	events := rec.Filter(testutil.KindEvent)
	require.Len(t, events, 2)
	assert.Equal(t, "/old", events[0].Key)
	assert.Equal(t, "/new", events[1].Key)

	triggers := rec.Filter(testutil.KindTrigger)
	require.Len(t, triggers, 2)
	assert.Equal(t, "/new", triggers[0].Key)
	assert.Equal(t, "/old", triggers[1].Key)
}

func TestSaveMany_AllUnchanged(t *testing.T) {
	site, rec := newTestSite(t)
	defineType(t, site, noteType)
	rec.Reset()

	results, err := site.SaveMany(adminCtx(), []thing.Data{
		{"key": noteType, "type": thing.Ref(thing.TypeType)},
	}, WriteOptions{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, rec.Entries())
}

func TestSaveMany_TypeAndInstanceTogether(t *testing.T) {
	site, _ := newTestSite(t)

	results, err := site.SaveMany(adminCtx(), []thing.Data{
		{"key": "/type/book", "type": thing.Ref(thing.TypeType)},
		{"key": "/b1", "type": thing.Ref("/type/book"), "title": "Go"},
	}, WriteOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	th, err := site.Get(context.Background(), "/b1", 0)
	require.NoError(t, err)
	assert.Equal(t, "/type/book", th.Type)
}

func TestGetPermissions(t *testing.T) {
	site, _ := newTestSite(t)
	ctx := context.Background()

	_, err := site.AccountManager().Register(ctx, "alice", "alice@example.com", "pw", nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		user string
		key  string
		want bool
	}{
		{"admin on type", adminKey, "/type/page", true},
		{"admin on any user", adminKey, "/user/alice", true},
		{"anonymous", "", "/k1", false},
		{"user on page", "alice", "/k1", true},
		{"user on self", "alice", "/user/alice", true},
		{"user on own subpage", "alice", "/user/alice/notes", true},
		{"user on other user", "alice", "/user/bob", false},
		{"user on type", "alice", "/type/page", false},
		{"user on usergroup", "alice", "/usergroup/admin", false},
		{"useradmin on user", "useradmin", "/user/alice", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := request.WithUser(context.Background(), tt.user)
			got, err := site.GetPermissions(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, Permissions{Write: tt.want, Admin: tt.want}, got)
		})
	}
}
