package infobase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/diag"
	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/request"
	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/store/sqlite"
	"github.com/roach88/infobase/internal/testutil"
	"github.com/roach88/infobase/internal/thing"
)

const (
	adminKey = "/user/admin"
	noteType = "/type/note"
)

// testOptions keeps tests deterministic and bcrypt cheap.
func testOptions() []Option {
	clock := testutil.NewStepClock(testutil.Epoch, time.Second)
	return []Option{
		WithClock(clock.Now),
		WithIDGenerator(event.NewSequenceGenerator("ev")),
		WithDiagnostics(diag.NewRecorder(32)),
		WithAccountOptions(account.WithSigner(account.Bcrypt{Cost: bcrypt.MinCost})),
	}
}

func newTestInfobase(t *testing.T, opts ...Option) (*Infobase, *sqlite.Provider) {
	t.Helper()
	p, err := sqlite.NewProvider(t.TempDir())
	require.NoError(t, err)
	ib := New(p, "test-secret", append(testOptions(), opts...)...)
	t.Cleanup(func() { ib.Close() })
	return ib, p
}

// newTestSite creates a bootstrapped site and attaches a recorder after
// bootstrap so traces start empty.
func newTestSite(t *testing.T, opts ...Option) (*Site, *testutil.Recorder) {
	t.Helper()
	ib, _ := newTestInfobase(t, opts...)
	site, err := ib.Create(context.Background(), "t1")
	require.NoError(t, err)

	rec := testutil.NewRecorder()
	ib.AddEventListener(rec.Listener())
	return site, rec
}

func adminCtx() context.Context {
	return request.WithUser(context.Background(), adminKey)
}

// defineType creates typeKey as an admin.
func defineType(t *testing.T, site *Site, typeKey string) {
	t.Helper()
	_, err := site.Write(adminCtx(), map[string]any{"key": typeKey, "type": thing.TypeType}, WriteOptions{})
	require.NoError(t, err)
}

// recordingTrigger records invocations under name.
func recordingTrigger(rec *testutil.Recorder, name string) Trigger {
	return func(_ context.Context, _ *Site, prev, cur *thing.Thing) error {
		rec.RecordTrigger(name, prev, cur)
		return nil
	}
}

// faultyProvider wraps stores so SaveMany can be made to fail.
type faultyProvider struct {
	store.Provider
	fail *atomic.Bool
}

func (p faultyProvider) Create(ctx context.Context, name string) (store.Store, error) {
	s, err := p.Provider.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return faultyStore{Store: s, fail: p.fail}, nil
}

type faultyStore struct {
	store.Store
	fail *atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s faultyStore) SaveMany(ctx context.Context, items []thing.Item, meta thing.Meta) ([]thing.SaveResult, error) {
	if s.fail.Load() {
		return nil, errDiskFull
	}
	return s.Store.SaveMany(ctx, items, meta)
}
