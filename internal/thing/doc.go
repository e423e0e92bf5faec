// Package thing defines the versioned object model shared by every layer of
// infobase: things, the item mutations that produce new revisions, save
// results and version history rows.
//
// Property data is kept as a plain JSON-shaped tree (Data). Two pieces of
// data are equal when their canonical encodings are equal; MarshalCanonical
// produces that encoding and Digest hashes it. The storage layer persists the
// canonical encoding and the save path compares digests to detect writes
// that carry no effective change.
//
// # Canonical encoding
//
//   - Object keys sorted by UTF-16 code units
//   - Strings NFC normalized, no HTML escaping
//   - Integers as decimal, floats in shortest round-trip form
//   - null is allowed (property deletion is expressed at the query layer)
package thing
