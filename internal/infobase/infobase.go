package infobase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/bootstrap"
	"github.com/roach88/infobase/internal/cache"
	"github.com/roach88/infobase/internal/diag"
	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/metrics"
	"github.com/roach88/infobase/internal/permission"
	"github.com/roach88/infobase/internal/store"
)

// Infobase owns every live Site, the storage provider and the event bus.
//
// Thread-safety: all methods are safe for concurrent use. A site name maps
// to at most one live Site.
type Infobase struct {
	provider store.Provider
	secret   string
	bus      *event.Bus

	mu    sync.RWMutex
	sites map[string]*Site
	opens singleflight.Group
	// deletes counts evictions per name. An open registers its site only
	// if no eviction of the name happened since it consulted the provider.
	deletes map[string]uint64

	now           func() time.Time
	ids           event.IDGenerator
	metrics       *metrics.Metrics
	diag          *diag.Recorder
	adminPassword string
	cacheFactory  cache.Factory
	decider       permission.Decider
	accountOpts   []account.Option
	startupHook   func(*Infobase)
}

// New creates an Infobase over provider. secret signs account tokens.
// The startup hook, if any, runs before New returns.
func New(provider store.Provider, secret string, opts ...Option) *Infobase {
	ib := &Infobase{
		provider:      provider,
		secret:        secret,
		bus:           event.NewBus(),
		sites:         make(map[string]*Site),
		deletes:       make(map[string]uint64),
		now:           time.Now,
		ids:           event.UUIDv7Generator{},
		diag:          diag.NewRecorder(diag.DefaultCapacity),
		adminPassword: bootstrap.DefaultAdminPassword,
		cacheFactory:  cache.NewFactory(cache.DefaultSize, cache.DefaultTTL),
		decider:       permission.Policy{},
	}
	for _, opt := range opts {
		opt(ib)
	}

	if ib.startupHook != nil {
		ib.startupHook(ib)
	}
	return ib
}

// Create initializes storage for a new site, seeds it with the baseline
// schema and accounts, and registers it. It returns *store.AlreadyExistsError
// when the provider already has the site.
func (ib *Infobase) Create(ctx context.Context, name string) (*Site, error) {
	gen := ib.deleteGen(name)
	st, err := ib.provider.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	site, err := ib.newSite(name, st)
	if err != nil {
		st.Close()
		ib.discard(ctx, name)
		return nil, err
	}

	if err := site.Bootstrap(ctx, ib.adminPassword); err != nil {
		site.close()
		ib.discard(ctx, name)
		return nil, fmt.Errorf("create site %s: %w", name, err)
	}

	slog.Info("site created", "site", name)

	registered, ok := ib.register(name, site, gen)
	if !ok {
		return nil, fmt.Errorf("create site %s: deleted while seeding", name)
	}
	return registered, nil
}

// discard removes storage of a site whose creation failed.
func (ib *Infobase) discard(ctx context.Context, name string) {
	if _, err := ib.provider.Delete(ctx, name); err != nil {
		slog.Error("discard unseeded site", "site", name, "error", err)
	}
}

// Get returns the named site, opening it on first access. It returns
// (nil, nil) when the provider has no such site. Get never bootstraps.
func (ib *Infobase) Get(ctx context.Context, name string) (*Site, error) {
	if site := ib.cached(name); site != nil {
		return site, nil
	}

	v, err, _ := ib.opens.Do(name, func() (any, error) {
		for {
			if site := ib.cached(name); site != nil {
				return site, nil
			}

			gen := ib.deleteGen(name)
			st, err := ib.provider.Get(ctx, name)
			if err != nil {
				return nil, err
			}
			if st == nil {
				return (*Site)(nil), nil
			}

			site, err := ib.newSite(name, st)
			if err != nil {
				st.Close()
				return nil, err
			}

			if registered, ok := ib.register(name, site, gen); ok {
				return registered, nil
			}
			// Deleted while opening; ask the provider again.
		}
	})
	if err != nil {
		return nil, fmt.Errorf("get site %s: %w", name, err)
	}
	return v.(*Site), nil
}

// Delete evicts the in-memory site, if any, and deletes its storage. The
// result is the provider's report of whether the site existed. Opens that
// overlap the delete do not leave a live site behind.
func (ib *Infobase) Delete(ctx context.Context, name string) (bool, error) {
	ib.evict(name)
	existed, err := ib.provider.Delete(ctx, name)
	ib.evict(name)
	if err != nil {
		return false, err
	}
	if existed {
		slog.Info("site deleted", "site", name)
	}
	return existed, nil
}

func (ib *Infobase) evict(name string) {
	ib.mu.Lock()
	site, ok := ib.sites[name]
	delete(ib.sites, name)
	ib.deletes[name]++
	ib.mu.Unlock()

	if ok {
		site.close()
		ib.metrics.SiteClosed()
	}
}

func (ib *Infobase) deleteGen(name string) uint64 {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.deletes[name]
}

// register stores site under name unless name was evicted after gen was
// read. An already registered site wins over site, which is closed. The
// boolean is false when site was discarded because of an eviction.
func (ib *Infobase) register(name string, site *Site, gen uint64) (*Site, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if ib.deletes[name] != gen {
		site.close()
		return nil, false
	}
	if existing, ok := ib.sites[name]; ok {
		site.close()
		return existing, true
	}
	ib.sites[name] = site
	ib.metrics.SiteOpened()
	return site, true
}

// Sites returns the names of sites currently held in memory, sorted.
func (ib *Infobase) Sites() []string {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	names := make([]string, 0, len(ib.sites))
	for name := range ib.sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every live site. The Infobase must not be used afterwards.
func (ib *Infobase) Close() error {
	ib.mu.Lock()
	sites := ib.sites
	ib.sites = make(map[string]*Site)
	ib.mu.Unlock()

	var errs []error
	for _, site := range sites {
		if err := site.close(); err != nil {
			errs = append(errs, err)
		}
		ib.metrics.SiteClosed()
	}
	return errors.Join(errs...)
}

// AddEventListener registers l for every event of every site.
func (ib *Infobase) AddEventListener(l event.Listener) event.ListenerID {
	return ib.bus.Add(l)
}

// RemoveEventListener unregisters id. Unknown ids are ignored.
func (ib *Infobase) RemoveEventListener(id event.ListenerID) {
	ib.bus.Remove(id)
}

// FireEvent delivers ev to every listener in registration order. Listener
// failures are recorded and never returned.
func (ib *Infobase) FireEvent(ctx context.Context, ev event.Event) {
	failures := ib.bus.Fire(ctx, ev)
	ib.metrics.EventFired(len(failures))

	for _, f := range failures {
		slog.Error("event listener failed",
			"site", ev.Site(),
			"event_id", ev.ID(),
			"listener", f.Listener,
			"key", ev.Key(),
			"type", ev.Type(),
			"error", f.Err,
			"panicked", f.Panicked,
			"stack", string(f.Stack),
		)
		ib.diag.Record(diag.Failure{
			Kind:     diag.KindListener,
			Site:     ev.Site(),
			Observer: f.Listener,
			EventID:  ev.ID(),
			Key:      ev.Key(),
			Type:     ev.Type(),
			Error:    f.Err.Error(),
			Panicked: f.Panicked,
			Stack:    string(f.Stack),
			At:       ib.now(),
		})
	}
}

// Diagnostics returns the observer failure recorder.
func (ib *Infobase) Diagnostics() *diag.Recorder {
	return ib.diag
}

func (ib *Infobase) cached(name string) *Site {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.sites[name]
}

// newSite binds a cache to st and builds the Site around it.
func (ib *Infobase) newSite(name string, st store.Store) (*Site, error) {
	if err := st.SetCache(ib.cacheFactory(name)); err != nil {
		return nil, fmt.Errorf("open site %s: %w", name, err)
	}

	site := &Site{
		ib:    ib,
		name:  name,
		store: st,
	}
	opts := append([]account.Option{
		account.WithSecret(ib.secret),
		account.WithClock(ib.now),
	}, ib.accountOpts...)
	site.accounts = account.NewManager(name, st, site.saveInternal, opts...)
	return site, nil
}
