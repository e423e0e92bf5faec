package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedListener struct {
	name string
	fn   ListenerFunc
}

func (n namedListener) Name() string { return n.name }
func (n namedListener) HandleEvent(ctx context.Context, ev Event) error {
	return n.fn(ctx, ev)
}

func TestBus_DeliversInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		b.Add(ListenerFunc(func(context.Context, Event) error {
			got = append(got, name)
			return nil
		}))
	}

	failures := b.Fire(context.Background(), sampleEvent())
	assert.Empty(t, failures)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBus_IsolatesFailures(t *testing.T) {
	b := NewBus()
	var reached []string
	boom := errors.New("boom")

	b.Add(namedListener{name: "erroring", fn: func(context.Context, Event) error {
		reached = append(reached, "erroring")
		return boom
	}})
	panicID := b.Add(ListenerFunc(func(context.Context, Event) error {
		reached = append(reached, "panicking")
		panic("kaboom")
	}))
	b.Add(ListenerFunc(func(context.Context, Event) error {
		reached = append(reached, "last")
		return nil
	}))

	failures := b.Fire(context.Background(), sampleEvent())

	assert.Equal(t, []string{"erroring", "panicking", "last"}, reached)
	require.Len(t, failures, 2)

	assert.Equal(t, "erroring", failures[0].Listener)
	assert.ErrorIs(t, failures[0].Err, boom)
	assert.False(t, failures[0].Panicked)

	assert.Equal(t, panicID, failures[1].ListenerID)
	assert.Equal(t, string(panicID), failures[1].Listener)
	assert.True(t, failures[1].Panicked)
	assert.Contains(t, failures[1].Err.Error(), "kaboom")
	assert.NotEmpty(t, failures[1].Stack)
}

func TestBus_Remove(t *testing.T) {
	b := NewBus()
	calls := 0
	id := b.Add(ListenerFunc(func(context.Context, Event) error {
		calls++
		return nil
	}))

	assert.True(t, b.Remove(id))
	assert.False(t, b.Remove(id), "second removal is a no-op")
	assert.False(t, b.Remove("unknown"))

	b.Fire(context.Background(), sampleEvent())
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, b.Len())
}

func TestBus_RemoveDuringFire(t *testing.T) {
	b := NewBus()
	var second ListenerID
	calls := 0
	b.Add(ListenerFunc(func(context.Context, Event) error {
		b.Remove(second)
		return nil
	}))
	second = b.Add(ListenerFunc(func(context.Context, Event) error {
		calls++
		return nil
	}))

	b.Fire(context.Background(), sampleEvent())
	assert.Equal(t, 1, calls, "snapshot taken at fire time")

	b.Fire(context.Background(), sampleEvent())
	assert.Equal(t, 1, calls)
}

func TestBus_Concurrent(t *testing.T) {
	b := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := b.Add(ListenerFunc(func(context.Context, Event) error { return nil }))
			b.Remove(id)
		}()
		go func() {
			defer wg.Done()
			b.Fire(context.Background(), sampleEvent())
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Len())
}
