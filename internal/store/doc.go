// Package store defines the contracts between the infobase core and its
// durable storage: a Provider that opens, creates and deletes per-site
// storage, the Store handle a site exclusively owns, and the Cache a store
// consults for latest revisions.
//
// Absence is never an error in these contracts. Provider.Get returns a nil
// Store for an unknown site and Store.Get returns a nil thing for an unknown
// key or revision.
//
// Implementations:
//   - internal/store/sqlite: one SQLite database per site
package store
