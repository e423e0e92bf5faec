package eventlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/thing"
)

var ts = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ev(id, site, key string) event.Event {
	return event.New(id, site, event.NameSave, ts, "127.0.0.1", "/user/admin", thing.Data{
		"key":  key,
		"type": thing.Ref("/type/page"),
	})
}

func openLog(t *testing.T, path string) *Log {
	t.Helper()
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLog_AppendRead(t *testing.T) {
	l := openLog(t, filepath.Join(t.TempDir(), "events.db"))
	ctx := context.Background()

	for i, e := range []event.Event{ev("1", "a", "/x"), ev("2", "b", "/y"), ev("3", "a", "/z")} {
		seq, err := l.Append(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}

	recs, err := l.Read(ctx, "a", 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0].Seq)
	assert.Equal(t, ev("1", "a", "/x"), recs[0].Event)
	assert.Equal(t, int64(3), recs[1].Seq)

	recs, err = l.Read(ctx, "a", 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/z", recs[0].Event.Key())

	recs, err = l.Read(ctx, "a", 0, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestLog_ResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.Append(ctx, ev("1", "a", "/x"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2 := openLog(t, path)
	seq, err := l2.Append(ctx, ev("2", "a", "/y"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestLog_AsListener(t *testing.T) {
	l := openLog(t, filepath.Join(t.TempDir(), "events.db"))
	bus := event.NewBus()
	bus.Add(l)

	failures := bus.Fire(context.Background(), ev("1", "a", "/x"))
	assert.Empty(t, failures)

	failures = bus.Fire(context.Background(), ev("1", "a", "/x"))
	require.Len(t, failures, 1, "duplicate ids are rejected")
	assert.Equal(t, "eventlog", failures[0].Listener)
}

func TestClock(t *testing.T) {
	c := NewClockAt(5)
	assert.Equal(t, int64(5), c.Current())
	assert.Equal(t, int64(6), c.Next())
	assert.Equal(t, int64(6), c.Current())
}
