package store

import (
	"errors"
	"fmt"
)

// ErrCacheInstalled is returned by Store.SetCache when a cache is already
// bound to the store.
var ErrCacheInstalled = errors.New("store: cache already installed")

// ErrInvalidName is returned for site names a provider cannot represent.
var ErrInvalidName = errors.New("store: invalid site name")

// ErrAccountExists is returned by Store.RegisterAccount for a username that
// already has a credential record.
var ErrAccountExists = errors.New("store: account already exists")

// AlreadyExistsError reports an attempt to create a site that exists.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("site %q already exists", e.Name)
}

// IsAlreadyExists reports whether err is, or wraps, an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	return errors.As(err, &ae)
}
