package infobase

import (
	"time"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/cache"
	"github.com/roach88/infobase/internal/diag"
	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/metrics"
	"github.com/roach88/infobase/internal/permission"
)

// Option configures an Infobase.
type Option func(*Infobase)

// WithStartupHook registers a function run once at the end of New.
func WithStartupHook(hook func(*Infobase)) Option {
	return func(ib *Infobase) {
		ib.startupHook = hook
	}
}

// WithClock sets the time source for default write timestamps.
func WithClock(now func() time.Time) Option {
	return func(ib *Infobase) {
		ib.now = now
	}
}

// WithIDGenerator sets the event id generator.
func WithIDGenerator(g event.IDGenerator) Option {
	return func(ib *Infobase) {
		ib.ids = g
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ib *Infobase) {
		ib.metrics = m
	}
}

// WithDiagnostics replaces the default failure recorder.
func WithDiagnostics(r *diag.Recorder) Option {
	return func(ib *Infobase) {
		ib.diag = r
	}
}

// WithAdminPassword sets the password of the accounts seeded by Create.
func WithAdminPassword(password string) Option {
	return func(ib *Infobase) {
		ib.adminPassword = password
	}
}

// WithCacheFactory sets how each site's cache is built.
func WithCacheFactory(f cache.Factory) Option {
	return func(ib *Infobase) {
		ib.cacheFactory = f
	}
}

// WithPermissionDecider replaces permission.Policy.
func WithPermissionDecider(d permission.Decider) Option {
	return func(ib *Infobase) {
		ib.decider = d
	}
}

// WithAccountOptions passes options to every site's account manager.
func WithAccountOptions(opts ...account.Option) Option {
	return func(ib *Infobase) {
		ib.accountOpts = append(ib.accountOpts, opts...)
	}
}
