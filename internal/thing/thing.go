package thing

import "time"

// Well-known type keys the core relies on.
const (
	TypeType      = "/type/type"
	TypeUser      = "/type/user"
	TypeUsergroup = "/type/usergroup"
)

// Thing is one revision of a versioned object.
//
// Revision is the revision this value represents; LatestRevision is the
// newest revision of the key at read time. Both start at 1.
type Thing struct {
	Key            string
	Type           string
	Revision       int
	LatestRevision int
	Created        time.Time
	LastModified   time.Time
	Data           Data
}

// Clone returns a deep copy of t. A nil Thing clones to nil.
func (t *Thing) Clone() *Thing {
	if t == nil {
		return nil
	}
	c := *t
	c.Data = t.Data.Clone()
	return &c
}

// Document renders t as the JSON document exposed to readers.
func (t *Thing) Document() Data {
	doc := t.Data.Clone()
	if doc == nil {
		doc = Data{}
	}
	doc["key"] = t.Key
	doc["type"] = Ref(t.Type)
	doc["revision"] = int64(t.Revision)
	doc["latest_revision"] = int64(t.LatestRevision)
	doc["created"] = formatTime(t.Created)
	doc["last_modified"] = formatTime(t.LastModified)
	return doc
}

// Item is a single concrete mutation: the complete new state of Key.
type Item struct {
	Key  string
	Type string
	Data Data
}

// Document renders the item as key, type reference and properties.
// It is the payload carried by save events.
func (it Item) Document() Data {
	doc := it.Data.Clone()
	if doc == nil {
		doc = Data{}
	}
	doc["key"] = it.Key
	doc["type"] = Ref(it.Type)
	return doc
}

// SaveResult is what storage reports for one persisted item.
// Revision 1 always denotes the creation of Key.
type SaveResult struct {
	Key      string `json:"key"`
	Revision int    `json:"revision"`
}

// Created reports whether the save created the key.
func (r SaveResult) Created() bool {
	return r.Revision == 1
}

// Meta is the metadata recorded alongside every revision of a save call.
type Meta struct {
	Timestamp      time.Time
	Comment        string
	MachineComment string
	IP             string
	AuthorKey      string
}

// Version is one row of a key's revision history.
type Version struct {
	Key            string    `json:"key"`
	Revision       int       `json:"revision"`
	Type           string    `json:"type"`
	Created        time.Time `json:"created"`
	Comment        string    `json:"comment,omitempty"`
	MachineComment string    `json:"machine_comment,omitempty"`
	IP             string    `json:"ip,omitempty"`
	Author         string    `json:"author,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
