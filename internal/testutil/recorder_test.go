package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/thing"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	ev := event.New("id", "wiki", event.NameSave, time.Time{}, "127.0.0.1", "/user/a", thing.Data{
		"key":  "/k",
		"type": thing.Ref("/type/page"),
	})
	require.NoError(t, r.Listener().HandleEvent(context.Background(), ev))

	prev := &thing.Thing{Key: "/k", Type: "/type/a", Revision: 1}
	cur := &thing.Thing{Key: "/k", Type: "/type/b", Revision: 2}
	r.RecordTrigger("t1", prev, cur)
	r.RecordTrigger("t2", nil, cur)

	assert.Equal(t, []Entry{
		{Seq: 1, Kind: KindEvent, Site: "wiki", Name: "save", Key: "/k", Type: "/type/page", Author: "/user/a"},
		{Seq: 2, Kind: KindTrigger, Name: "t1", Key: "/k", OldRev: 1, OldType: "/type/a", NewRev: 2, NewType: "/type/b"},
		{Seq: 3, Kind: KindTrigger, Name: "t2", Key: "/k", NewRev: 2, NewType: "/type/b"},
	}, r.Entries())
	assert.Len(t, r.Filter(KindTrigger), 2)

	r.Reset()
	assert.Empty(t, r.Entries())
	r.RecordTrigger("again", nil, cur)
	assert.Equal(t, int64(1), r.Entries()[0].Seq)
}
