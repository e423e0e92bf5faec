// Package diag keeps a bounded in-memory record of observer failures:
// event listeners and triggers that errored or panicked after a write
// committed.
package diag

import (
	"sync"
	"time"
)

// DefaultCapacity is used when a non-positive capacity is given.
const DefaultCapacity = 256

// Kind names the observer category.
type Kind string

const (
	KindListener Kind = "listener"
	KindTrigger  Kind = "trigger"
)

// Failure describes one failed observer invocation.
type Failure struct {
	Kind     Kind      `json:"kind"`
	Site     string    `json:"site"`
	Observer string    `json:"observer"`
	EventID  string    `json:"event_id,omitempty"`
	Key      string    `json:"key,omitempty"`
	Type     string    `json:"type,omitempty"`
	Error    string    `json:"error"`
	Panicked bool      `json:"panicked,omitempty"`
	Stack    string    `json:"stack,omitempty"`
	At       time.Time `json:"at"`
}

// Recorder is a fixed-size ring of the most recent failures.
type Recorder struct {
	mu    sync.Mutex
	buf   []Failure
	next  int
	full  bool
	total uint64
}

// NewRecorder returns a recorder keeping the last capacity failures.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{buf: make([]Failure, capacity)}
}

// Record stores f, overwriting the oldest entry when full.
// A nil Recorder discards everything.
func (r *Recorder) Record(f Failure) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = f
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// Failures returns the retained failures, oldest first.
func (r *Recorder) Failures() []Failure {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Failure, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Failure, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Total counts every failure ever recorded, including evicted ones.
func (r *Recorder) Total() uint64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Reset drops all retained failures and the total.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = Failure{}
	}
	r.next, r.full, r.total = 0, false, 0
}
