package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/infobase/internal/thing"
)

// NameSave is the name of events emitted for saved items.
const NameSave = "save"

// Event is an immutable record of one completed mutation.
type Event struct {
	id        string
	site      string
	name      string
	timestamp time.Time
	ip        string
	author    string
	data      thing.Data
}

// New builds an event. data is copied.
func New(id, site, name string, timestamp time.Time, ip, author string, data thing.Data) Event {
	return Event{
		id:        id,
		site:      site,
		name:      name,
		timestamp: timestamp,
		ip:        ip,
		author:    author,
		data:      data.Clone(),
	}
}

func (e Event) ID() string           { return e.id }
func (e Event) Site() string         { return e.site }
func (e Event) Name() string         { return e.name }
func (e Event) Timestamp() time.Time { return e.timestamp }
func (e Event) IP() string           { return e.ip }

// Author is the key of the acting account, or "" when anonymous.
func (e Event) Author() string { return e.author }

// Data returns a copy of the payload.
func (e Event) Data() thing.Data { return e.data.Clone() }

// Key is the key of the saved item, taken from the payload.
func (e Event) Key() string {
	k, _ := e.data["key"].(string)
	return k
}

// Type is the type key of the saved item, taken from the payload.
func (e Event) Type() string {
	k, _ := thing.RefKey(e.data["type"])
	return k
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s", e.name, e.site, e.Key())
}

type wireEvent struct {
	ID        string     `json:"id"`
	Site      string     `json:"site"`
	Name      string     `json:"name"`
	Timestamp time.Time  `json:"timestamp"`
	IP        string     `json:"ip"`
	Author    string     `json:"author,omitempty"`
	Data      thing.Data `json:"data"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:        e.id,
		Site:      e.site,
		Name:      e.name,
		Timestamp: e.timestamp.UTC(),
		IP:        e.ip,
		Author:    e.author,
		Data:      e.data,
	})
}

// Decode parses an event produced by MarshalJSON.
func Decode(raw []byte) (Event, error) {
	var w struct {
		wireEvent
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	data, err := thing.DecodeData(w.Data)
	if err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", w.ID, err)
	}
	e := New(w.ID, w.Site, w.Name, w.Timestamp, w.IP, w.Author, data)
	return e, nil
}
