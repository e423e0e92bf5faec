// Package request carries the acting user and client address of an
// operation through a context.Context.
package request

import "context"

// DefaultIP is reported when no client address is known.
const DefaultIP = "127.0.0.1"

type ctxKey int

const (
	userKey ctxKey = iota
	ipKey
)

// WithUser returns a context in which userKey (e.g. "/user/alice") is the
// acting user.
func WithUser(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, userKey, key)
}

// User returns the acting user's key, or "" for anonymous requests.
func User(ctx context.Context) string {
	key, _ := ctx.Value(userKey).(string)
	return key
}

// WithIP returns a context carrying the client address.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey, ip)
}

// IP returns the client address, or DefaultIP.
func IP(ctx context.Context) string {
	if ip, ok := ctx.Value(ipKey).(string); ok && ip != "" {
		return ip
	}
	return DefaultIP
}
