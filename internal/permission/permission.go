// Package permission decides whether an account may modify a key.
package permission

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// Well-known usergroups.
const (
	AdminGroup     = "/usergroup/admin"
	UserAdminGroup = "/usergroup/useradmin"
)

// Decider answers whether acct may write key on the site backed by s.
// A nil acct is an anonymous request.
type Decider interface {
	HasPermission(ctx context.Context, s store.Store, acct *account.Account, key string) (bool, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, s store.Store, acct *account.Account, key string) (bool, error)

func (f DeciderFunc) HasPermission(ctx context.Context, s store.Store, acct *account.Account, key string) (bool, error) {
	return f(ctx, s, acct, key)
}

// Policy is the default decider:
//   - anonymous requests may not write
//   - members of /usergroup/admin may write anything
//   - /type/* and /usergroup/* are reserved to admins
//   - /user/<name> and its subkeys belong to that user and /usergroup/useradmin
//   - everything else is open to any authenticated account
type Policy struct{}

var _ Decider = Policy{}

func (Policy) HasPermission(ctx context.Context, s store.Store, acct *account.Account, key string) (bool, error) {
	if acct == nil {
		return false, nil
	}

	admin, err := IsMember(ctx, s, AdminGroup, acct.Key)
	if err != nil || admin {
		return admin, err
	}

	switch {
	case strings.HasPrefix(key, "/type/"), strings.HasPrefix(key, "/usergroup/"):
		return false, nil
	case strings.HasPrefix(key, account.UserPrefix):
		if key == acct.Key || strings.HasPrefix(key, acct.Key+"/") {
			return true, nil
		}
		return IsMember(ctx, s, UserAdminGroup, acct.Key)
	default:
		return true, nil
	}
}

// IsMember reports whether userKey is listed in the members of group.
func IsMember(ctx context.Context, s store.Store, group, userKey string) (bool, error) {
	g, err := s.Get(ctx, group, 0)
	if err != nil {
		return false, fmt.Errorf("load usergroup %s: %w", group, err)
	}
	if g == nil || g.Type != thing.TypeUsergroup {
		return false, nil
	}
	members, _ := g.Data["members"].([]any)
	for _, m := range members {
		if k, ok := thing.RefKey(m); ok && k == userKey {
			return true, nil
		}
	}
	return false, nil
}
