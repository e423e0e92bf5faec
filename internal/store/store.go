package store

import (
	"context"
	"time"

	"github.com/roach88/infobase/internal/thing"
)

// Provider creates, opens and deletes per-site storage.
// Sites are isolated: nothing written through one site's Store is visible
// through another's.
type Provider interface {
	// Create initializes storage for a new site. It returns
	// *AlreadyExistsError when the site already exists.
	Create(ctx context.Context, name string) (Store, error)

	// Get opens existing storage. It returns a nil Store and a nil error
	// when the site does not exist.
	Get(ctx context.Context, name string) (Store, error)

	// Delete removes the site's storage and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// Store is the storage handle of a single site.
type Store interface {
	// Get returns the given revision of key, or the latest revision when
	// revision is 0. Unknown keys and revisions yield (nil, nil).
	Get(ctx context.Context, key string, revision int) (*thing.Thing, error)

	// GetMany returns the latest revision of each known key in request
	// order. Unknown keys are skipped.
	GetMany(ctx context.Context, keys []string) ([]*thing.Thing, error)

	// NewKey allocates a fresh key for a thing of the given type.
	NewKey(ctx context.Context, typeKey string, attrs map[string]any) (string, error)

	// Save persists a single item. See SaveMany.
	Save(ctx context.Context, item thing.Item, meta thing.Meta) (thing.SaveResult, error)

	// SaveMany persists all items atomically and returns the assigned
	// revision of each item, in item order. Revision 1 denotes creation.
	SaveMany(ctx context.Context, items []thing.Item, meta thing.Meta) ([]thing.SaveResult, error)

	// SetCache installs the cache consulted for latest revisions. Exactly
	// one cache may be installed; a second call returns ErrCacheInstalled.
	SetCache(c Cache) error

	// Things returns the keys of things matching q.
	Things(ctx context.Context, q ThingsQuery) ([]string, error)

	// Versions returns revision history rows matching q.
	Versions(ctx context.Context, q VersionsQuery) ([]thing.Version, error)

	// RegisterAccount stores a credential record. Credentials live outside
	// the versioned thing space. A taken username yields ErrAccountExists.
	RegisterAccount(ctx context.Context, rec AccountRecord) error

	// DeleteAccount removes the credential record of username, if any.
	DeleteAccount(ctx context.Context, username string) error

	// LookupAccount returns the credential record for username, or nil.
	LookupAccount(ctx context.Context, username string) (*AccountRecord, error)

	// Close releases the handle.
	Close() error
}

// Cache holds latest revisions of things for a single Store.
type Cache interface {
	Get(key string) (*thing.Thing, bool)
	Add(t *thing.Thing)
	Remove(key string)
	Purge()
}

// Condition restricts a things query to a property value.
type Condition struct {
	Property string
	Value    any
}

// SortField orders query results.
type SortField struct {
	Field string
	Desc  bool
}

// ThingsQuery is a compiled read query over the latest revisions.
type ThingsQuery struct {
	Type       string
	Conditions []Condition
	Sort       []SortField
	Limit      int
	Offset     int
}

// VersionsQuery is a compiled read query over revision history.
type VersionsQuery struct {
	Key    string
	Author string
	IP     string
	Sort   []SortField
	Limit  int
	Offset int
}

// AccountRecord is the credential record of one account.
type AccountRecord struct {
	Username     string
	UserKey      string
	Email        string
	PasswordHash string
	Created      time.Time
}
