// Package infobase is the multi-site core: a registry of sites, each a
// collection of typed, versioned things, and the write pipeline that
// persists mutations, emits one event per saved item and fires type-keyed
// triggers with the before and after state.
//
// Observers run synchronously after a write has committed. Listener and
// trigger failures are logged, counted and recorded in diagnostics; they
// never fail the write and never stop the observers after them.
package infobase
