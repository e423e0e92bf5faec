package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/diag"
	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/infobase"
	"github.com/roach88/infobase/internal/query"
	"github.com/roach88/infobase/internal/request"
	"github.com/roach88/infobase/internal/store/sqlite"
	"github.com/roach88/infobase/internal/testutil"
	"github.com/roach88/infobase/internal/thing"
)

// errListenerDown is returned by the failing listener of a scenario.
var errListenerDown = errors.New("listener down")

// Harness executes the steps of one scenario against one site.
type Harness struct {
	ib       *infobase.Infobase
	site     *infobase.Site
	recorder *testutil.Recorder
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh site under a temporary directory that is
// removed afterwards. A non-nil error means the scenario could not be
// executed; failed expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "infobase-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	provider, err := sqlite.NewProvider(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	clock := testutil.NewStepClock(testutil.Epoch, time.Second)
	ib := infobase.New(provider, "scenario-secret",
		infobase.WithClock(clock.Now),
		infobase.WithIDGenerator(event.NewSequenceGenerator("ev")),
		infobase.WithDiagnostics(diag.NewRecorder(diag.DefaultCapacity)),
		infobase.WithAccountOptions(account.WithSigner(account.Bcrypt{Cost: bcrypt.MinCost})),
	)
	defer ib.Close()

	name := scenario.Site
	if name == "" {
		name = DefaultSite
	}
	site, err := ib.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create site: %w", err)
	}

	h := &Harness{ib: ib, site: site, recorder: testutil.NewRecorder()}
	ib.AddEventListener(h.recorder.Listener())
	if scenario.FailingListener {
		ib.AddEventListener(event.ListenerFunc(func(context.Context, event.Event) error {
			return errListenerDown
		}))
	}
	for _, typeKey := range scenario.Triggers {
		h.addTrigger(typeKey)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Op, err))
		}
	}

	result.Trace = h.recorder.Entries()
	result.Failures = ib.Diagnostics().Failures()

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, site) {
		result.AddError(msg)
	}
	return result, nil
}

// addTrigger registers a trigger that records under typeKey.
func (h *Harness) addTrigger(typeKey string) {
	h.site.AddTrigger(typeKey, func(_ context.Context, _ *infobase.Site, prev, cur *thing.Thing) error {
		h.recorder.RecordTrigger(typeKey, prev, cur)
		return nil
	})
}

// executeStep runs one step and checks its expectation.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	if step.Op == OpAddTrigger {
		h.addTrigger(step.Type)
		return nil
	}

	if step.As != "" {
		ctx = request.WithUser(ctx, step.As)
	}
	opts := infobase.WriteOptions{Comment: step.Comment}

	var (
		res       infobase.WriteResult
		unchanged bool
		err       error
	)
	switch step.Op {
	case OpWrite:
		res, err = h.site.Write(ctx, step.Query, opts)
	case OpSave:
		var r *thing.SaveResult
		r, err = h.site.Save(ctx, step.Key, thing.Data(step.Data), opts)
		unchanged = err == nil && r == nil
		if r != nil {
			res = splitResults([]thing.SaveResult{*r})
		}
	case OpSaveMany:
		docs := make([]thing.Data, len(step.Docs))
		for i, d := range step.Docs {
			docs[i] = thing.Data(d)
		}
		var rs []thing.SaveResult
		rs, err = h.site.SaveMany(ctx, docs, opts)
		unchanged = err == nil && len(rs) == 0
		res = splitResults(rs)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	return checkExpect(step.Expect, res, unchanged, err)
}

func splitResults(rs []thing.SaveResult) infobase.WriteResult {
	var res infobase.WriteResult
	for _, r := range rs {
		if r.Created() {
			res.Created = append(res.Created, r.Key)
		} else {
			res.Updated = append(res.Updated, r.Key)
		}
	}
	return res
}

func checkExpect(exp *Expect, res infobase.WriteResult, unchanged bool, err error) error {
	if exp == nil {
		return err
	}

	if exp.Error != "" {
		if err == nil {
			return fmt.Errorf("expected error %s, got success", exp.Error)
		}
		if code := query.CodeOf(err); string(code) != exp.Error {
			return fmt.Errorf("expected error %s, got %v", exp.Error, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if exp.Unchanged && !unchanged {
		return fmt.Errorf("expected no change, got created=%v updated=%v", res.Created, res.Updated)
	}
	if !slices.Equal(exp.Created, res.Created) {
		return fmt.Errorf("expected created=%v, got %v", exp.Created, res.Created)
	}
	if !slices.Equal(exp.Updated, res.Updated) {
		return fmt.Errorf("expected updated=%v, got %v", exp.Updated, res.Updated)
	}
	return nil
}
