// Package event defines the record emitted for every persisted mutation
// and the bus that delivers it to listeners.
//
// Delivery is synchronous and ordered by registration. A listener that
// returns an error or panics is reported back to the caller of Fire and
// never prevents delivery to the listeners after it.
package event
