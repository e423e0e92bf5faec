package testutil

import (
	"context"
	"sync"

	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/thing"
)

// Entry kinds.
const (
	KindEvent   = "event"
	KindTrigger = "trigger"
)

// Entry is one observed event delivery or trigger invocation. It carries
// no wall-clock time or random ids so traces compare byte for byte.
type Entry struct {
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	Site    string `json:"site,omitempty"`
	Name    string `json:"name"`
	Key     string `json:"key"`
	Type    string `json:"type,omitempty"`
	Author  string `json:"author,omitempty"`
	OldRev  int    `json:"old_revision,omitempty"`
	OldType string `json:"old_type,omitempty"`
	NewRev  int    `json:"new_revision,omitempty"`
	NewType string `json:"new_type,omitempty"`
}

// Recorder collects events and trigger invocations in one ordered trace.
// Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	clock   *DeterministicClock
	entries []Entry
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{clock: NewDeterministicClock()}
}

// Listener returns an event.Listener recording every event it receives.
func (r *Recorder) Listener() event.Listener {
	return event.ListenerFunc(func(_ context.Context, ev event.Event) error {
		r.add(Entry{
			Kind:   KindEvent,
			Site:   ev.Site(),
			Name:   ev.Name(),
			Key:    ev.Key(),
			Type:   ev.Type(),
			Author: ev.Author(),
		})
		return nil
	})
}

// RecordTrigger records one trigger invocation under name.
func (r *Recorder) RecordTrigger(name string, prev, cur *thing.Thing) {
	e := Entry{Kind: KindTrigger, Name: name}
	if cur != nil {
		e.Key = cur.Key
		e.NewRev = cur.Revision
		e.NewType = cur.Type
	}
	if prev != nil {
		e.OldRev = prev.Revision
		e.OldType = prev.Type
	}
	r.add(e)
}

// Entries returns a copy of the trace.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Filter returns the entries of one kind.
func (r *Recorder) Filter(kind string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the trace and restarts the sequence.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.clock.Reset()
}

func (r *Recorder) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Seq = r.clock.Next()
	r.entries = append(r.entries, e)
}
