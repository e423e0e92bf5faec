package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Listener receives events.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

func (f ListenerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Named is implemented by listeners that want a readable name in
// failure reports.
type Named interface {
	Name() string
}

// ListenerID identifies a registration. Functions are not comparable, so
// removal goes through the handle returned by Add.
type ListenerID string

// Failure is the captured outcome of one listener that did not succeed.
type Failure struct {
	ListenerID ListenerID
	Listener   string
	Err        error
	Panicked   bool
	Stack      []byte
}

type entry struct {
	id ListenerID
	l  Listener
}

// Bus is an ordered, concurrency-safe listener list.
type Bus struct {
	mu      sync.RWMutex
	entries []entry
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Add appends l and returns its handle. Registration order is delivery order.
func (b *Bus) Add(l Listener) ListenerID {
	id := ListenerID(uuid.Must(uuid.NewV7()).String())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry{id: id, l: l})
	return id
}

// Remove unregisters id. Unknown ids are ignored; the result reports
// whether anything was removed.
func (b *Bus) Remove(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id == id {
			// Copy so snapshots held by in-flight Fire calls stay intact.
			next := make([]entry, 0, len(b.entries)-1)
			next = append(next, b.entries[:i]...)
			b.entries = append(next, b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Fire delivers ev to every listener registered when the call starts.
// Errors and panics are captured per listener and returned in delivery
// order; they never stop delivery.
func (b *Bus) Fire(ctx context.Context, ev Event) []Failure {
	b.mu.RLock()
	snapshot := b.entries
	b.mu.RUnlock()

	var failures []Failure
	for _, e := range snapshot {
		if f, failed := deliver(ctx, e, ev); failed {
			failures = append(failures, f)
		}
	}
	return failures
}

func deliver(ctx context.Context, e entry, ev Event) (f Failure, failed bool) {
	f = Failure{ListenerID: e.id, Listener: listenerName(e)}
	defer func() {
		if r := recover(); r != nil {
			f.Err = fmt.Errorf("listener panicked: %v", r)
			f.Panicked = true
			f.Stack = debug.Stack()
			failed = true
		}
	}()

	if err := e.l.HandleEvent(ctx, ev); err != nil {
		f.Err = err
		return f, true
	}
	return f, false
}

func listenerName(e entry) string {
	if n, ok := e.l.(Named); ok {
		return n.Name()
	}
	return string(e.id)
}
