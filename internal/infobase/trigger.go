package infobase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/roach88/infobase/internal/diag"
	"github.com/roach88/infobase/internal/thing"
)

// Trigger runs after a write that touched a thing of the type it is
// registered for. prev is nil when the thing was created.
type Trigger func(ctx context.Context, site *Site, prev, cur *thing.Thing) error

// triggerRegistry maps type keys to handlers in registration order.
type triggerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]Trigger
}

// AddTrigger registers t for things of typeKey. Handlers of one type fire
// in registration order.
func (s *Site) AddTrigger(typeKey string, t Trigger) {
	s.triggers.mu.Lock()
	defer s.triggers.mu.Unlock()
	if s.triggers.handlers == nil {
		s.triggers.handlers = make(map[string][]Trigger)
	}
	s.triggers.handlers[typeKey] = append(s.triggers.handlers[typeKey], t)
}

// lookup returns a copy of the handlers of typeKey.
func (r *triggerRegistry) lookup(typeKey string) []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.handlers[typeKey]
	if len(hs) == 0 {
		return nil
	}
	out := make([]Trigger, len(hs))
	copy(out, hs)
	return out
}

// fireTriggers runs triggers for created keys first, then updated keys.
// Each thing is resolved at the revision its save produced. An updated thing
// whose type changed fires its previous type's triggers before its current
// type's.
func (s *Site) fireTriggers(ctx context.Context, results []thing.SaveResult, eventIDs map[string]string) {
	for _, r := range results {
		if !r.Created() {
			continue
		}
		cur, err := s.store.Get(ctx, r.Key, r.Revision)
		if err != nil || cur == nil {
			s.triggerLookupFailed(r.Key, err)
			continue
		}
		s.fireType(ctx, eventIDs[r.Key], cur.Type, nil, cur)
	}

	for _, r := range results {
		if r.Created() {
			continue
		}
		cur, err := s.store.Get(ctx, r.Key, r.Revision)
		if err != nil || cur == nil {
			s.triggerLookupFailed(r.Key, err)
			continue
		}
		prev, err := s.store.Get(ctx, r.Key, r.Revision-1)
		if err != nil || prev == nil {
			s.triggerLookupFailed(r.Key, err)
			continue
		}

		if prev.Type == cur.Type {
			s.fireType(ctx, eventIDs[r.Key], cur.Type, prev, cur)
		} else {
			s.fireType(ctx, eventIDs[r.Key], prev.Type, prev, cur)
			s.fireType(ctx, eventIDs[r.Key], cur.Type, prev, cur)
		}
	}
}

func (s *Site) fireType(ctx context.Context, eventID, typeKey string, prev, cur *thing.Thing) {
	for i, t := range s.triggers.lookup(typeKey) {
		name := fmt.Sprintf("%s#%d", typeKey, i)
		stack, err := invokeTrigger(ctx, t, s, prev.Clone(), cur.Clone())
		s.ib.metrics.TriggerFired(typeKey, err)
		if err == nil {
			continue
		}

		slog.Error("trigger failed",
			"site", s.name,
			"trigger", name,
			"type", typeKey,
			"key", cur.Key,
			"error", err,
			"stack", string(stack),
		)
		s.ib.diag.Record(diag.Failure{
			Kind:     diag.KindTrigger,
			Site:     s.name,
			Observer: name,
			EventID:  eventID,
			Key:      cur.Key,
			Type:     typeKey,
			Error:    err.Error(),
			Panicked: stack != nil,
			Stack:    string(stack),
			At:       s.ib.now(),
		})
	}
}

// invokeTrigger runs t and converts a panic into an error plus stack.
func invokeTrigger(ctx context.Context, t Trigger, s *Site, prev, cur *thing.Thing) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger panicked: %v", r)
			stack = debug.Stack()
		}
	}()
	return nil, t(ctx, s, prev, cur)
}

func (s *Site) triggerLookupFailed(key string, err error) {
	if err == nil {
		err = fmt.Errorf("thing %s not found after save", key)
	}
	slog.Error("trigger lookup failed", "site", s.name, "key", key, "error", err)
}
