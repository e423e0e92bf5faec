package infobase

import (
	"context"
	"fmt"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/bootstrap"
	"github.com/roach88/infobase/internal/query"
	"github.com/roach88/infobase/internal/request"
	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// Site is one tenant: a storage handle with its bound cache, an account
// manager and a private trigger registry.
type Site struct {
	ib       *Infobase
	name     string
	store    store.Store
	accounts *account.Manager
	triggers triggerRegistry
}

// Permissions is the answer of GetPermissions. Both fields always carry
// the same decision.
type Permissions struct {
	Write bool `json:"write"`
	Admin bool `json:"admin"`
}

// Name returns the site name.
func (s *Site) Name() string {
	return s.name
}

// AccountManager returns the site's account manager.
func (s *Site) AccountManager() *account.Manager {
	return s.accounts
}

// Get returns the given revision of key, or the latest when revision is 0.
// Unknown keys yield (nil, nil).
func (s *Site) Get(ctx context.Context, key string, revision int) (*thing.Thing, error) {
	return s.store.Get(ctx, key, revision)
}

// GetMany returns the latest revision of each known key, in request order.
func (s *Site) GetMany(ctx context.Context, keys []string) ([]*thing.Thing, error) {
	return s.store.GetMany(ctx, keys)
}

// NewKey allocates an unused key for a thing of typeKey.
func (s *Site) NewKey(ctx context.Context, typeKey string, attrs map[string]any) (string, error) {
	return s.store.NewKey(ctx, typeKey, attrs)
}

// Things returns the keys matching a things query.
func (s *Site) Things(ctx context.Context, q map[string]any) ([]string, error) {
	tq, err := query.MakeThingsQuery(q)
	if err != nil {
		return nil, err
	}
	return s.store.Things(ctx, tq)
}

// Versions returns the history rows matching a versions query.
func (s *Site) Versions(ctx context.Context, q map[string]any) ([]thing.Version, error) {
	vq, err := query.MakeVersionsQuery(q)
	if err != nil {
		return nil, err
	}
	return s.store.Versions(ctx, vq)
}

// GetPermissions reports whether the account acting in ctx may modify key.
func (s *Site) GetPermissions(ctx context.Context, key string) (Permissions, error) {
	acct, err := s.accounts.CurrentUser(ctx)
	if err != nil {
		return Permissions{}, err
	}
	ok, err := s.ib.decider.HasPermission(ctx, s.store, acct, key)
	if err != nil {
		return Permissions{}, fmt.Errorf("permissions of %s: %w", key, err)
	}
	return Permissions{Write: ok, Admin: ok}, nil
}

// Bootstrap seeds the baseline types, the admin and useradmin accounts and
// their usergroups. An empty password selects the default.
func (s *Site) Bootstrap(ctx context.Context, password string) error {
	schema, err := bootstrap.Default()
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", s.name, err)
	}
	if password == "" {
		password = bootstrap.DefaultAdminPassword
	}

	ctx = request.WithIP(ctx, request.DefaultIP)
	opts := WriteOptions{Internal: true, MachineComment: "bootstrap"}

	if _, err := s.SaveMany(ctx, schema.TypeDocuments(), opts); err != nil {
		return fmt.Errorf("bootstrap %s: types: %w", s.name, err)
	}
	for _, a := range schema.Accounts {
		data := thing.Data{"displayname": a.DisplayName}
		if _, err := s.accounts.Register(ctx, a.Username, a.Email, password, data); err != nil {
			return fmt.Errorf("bootstrap %s: account %s: %w", s.name, a.Username, err)
		}
	}
	if _, err := s.SaveMany(ctx, schema.UsergroupDocuments(), opts); err != nil {
		return fmt.Errorf("bootstrap %s: usergroups: %w", s.name, err)
	}
	return nil
}

// saveInternal is the account manager's path into the versioned space.
func (s *Site) saveInternal(ctx context.Context, key string, data thing.Data) error {
	_, err := s.Save(ctx, key, data, WriteOptions{Internal: true})
	return err
}

func (s *Site) close() error {
	return s.store.Close()
}
