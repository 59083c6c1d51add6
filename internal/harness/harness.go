package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/namehist/internal/config"
	"github.com/roach88/namehist/internal/freshness"
	"github.com/roach88/namehist/internal/history"
	"github.com/roach88/namehist/internal/resolver"
	"github.com/roach88/namehist/internal/store"
	"github.com/roach88/namehist/internal/testutil"
)

// Harness holds the state of one scenario run.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	clock    *testutil.ManualClock
	fetcher  *testutil.FakeFetcher
	resolver *resolver.Resolver
	accounts map[string]uuid.UUID
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh SQLite database in a temporary
// directory, removed afterwards. The returned error reports harness
// failures (unusable scenario, store errors while seeding or asserting);
// expectation mismatches are recorded in the Result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "namehist-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(store.Config{Path: filepath.Join(dir, "names.db")})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	policy, err := scenario.Policy.policy()
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]uuid.UUID, len(scenario.Accounts))
	for alias, raw := range scenario.Accounts {
		id, err := history.ParseID(raw)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", alias, err)
		}
		accounts[alias] = id
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios
	clk := testutil.NewManualClockMillis(scenario.Start)
	fetcher := testutil.NewFakeFetcher()

	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    clk,
		fetcher:  fetcher,
		resolver: resolver.New(st, fetcher,
			resolver.WithClock(clk),
			resolver.WithPolicy(policy),
			resolver.WithLogger(logger),
		),
		accounts: accounts,
		logger:   logger,
	}

	ctx := context.Background()

	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Fetcher:  fetcher,
		Accounts: accounts,
	}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// seed writes the scenario's pre-existing histories and metadata.
func (h *Harness) seed(ctx context.Context) error {
	for i, s := range h.scenario.Seed {
		id := h.accounts[s.Account]

		if len(s.Names) > 0 {
			elements := make([]history.Element, len(s.Names))
			for j, n := range s.Names {
				elements[j] = n.Element()
			}
			source := history.SourceImport
			if s.Source != nil {
				source = history.Source(*s.Source)
			}
			seeded, err := h.store.SeedHistory(ctx, id, elements, source)
			if err != nil {
				return fmt.Errorf("seed[%d]: %w", i, err)
			}
			if !seeded {
				return fmt.Errorf("seed[%d]: account %s seeded twice", i, s.Account)
			}
		}

		if s.Checked != nil {
			meta := history.Metadata{LastChecked: msTime(s.Checked.At), LastCheckChanged: s.Checked.Changed}
			if err := h.store.InsertMetadata(ctx, id, meta); err != nil {
				return fmt.Errorf("seed[%d]: %w", i, err)
			}
		}

		h.logger.Debug("seeded account", "account", s.Account, "names", len(s.Names))
	}
	return nil
}

// executeStep runs one step, records it in the trace and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	switch {
	case step.Advance != "":
		d, err := config.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		now := h.clock.Advance(d)
		result.addEvent(TraceEvent{Type: EventAdvance, At: now.UnixMilli()})

	case step.Upstream != nil:
		u := step.Upstream
		id := h.accounts[u.Account]
		status := 0
		if u.Fail == "" {
			h.fetcher.SetName(id, u.Name)
		} else {
			var err error
			status, err = upstreamFailure(u)
			h.fetcher.SetError(id, err)
		}
		result.addEvent(TraceEvent{
			Type:    EventUpstream,
			At:      h.clock.Now().UnixMilli(),
			Account: u.Account,
			Name:    u.Name,
			Fail:    u.Fail,
			Status:  status,
		})

	case step.Resolve != "":
		h.executeResolve(ctx, index, step, result)
	}
	return nil
}

// executeResolve runs one or more concurrent lookups of the same account.
// Concurrent lookups must all agree; the trace records the shared outcome.
func (h *Harness) executeResolve(ctx context.Context, index int, step Step, result *Result) {
	id := h.accounts[step.Resolve]
	callers := max(step.Concurrent, 1)

	type outcome struct {
		names []history.Element
		err   error
	}
	outcomes := make([]outcome, callers)

	before := h.fetcher.Calls(id)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			names, err := h.resolver.Resolve(ctx, id)
			outcomes[i] = outcome{names: names, err: err}
		}()
	}
	wg.Wait()
	fetches := h.fetcher.Calls(id) - before

	first := outcomes[0]
	for i, o := range outcomes[1:] {
		if !reflect.DeepEqual(o.names, first.names) || errorKind(o.err) != errorKind(first.err) {
			result.AddError(fmt.Sprintf("steps[%d]: caller %d disagrees with caller 0", index, i+1))
		}
	}

	ev := TraceEvent{
		Type:    EventResolve,
		At:      h.clock.Now().UnixMilli(),
		Account: step.Resolve,
		Fetches: fetches,
		Names:   first.names,
		Error:   errorKind(first.err),
	}
	result.addEvent(ev)

	h.logger.Info("resolve step completed",
		"step", index,
		"account", step.Resolve,
		"fetches", fetches,
		"error", ev.Error,
	)

	if step.Expect != nil {
		for _, msg := range checkExpect(*step.Expect, ev) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", index, msg))
		}
	}
}

// checkExpect compares a resolve outcome with its expect clause.
func checkExpect(want Expect, got TraceEvent) []string {
	var errs []string

	if want.Error != got.Error {
		switch {
		case want.Error == "":
			errs = append(errs, fmt.Sprintf("expected success, got %s", got.Error))
		case got.Error == "":
			errs = append(errs, fmt.Sprintf("expected %s, got success", want.Error))
		default:
			errs = append(errs, fmt.Sprintf("expected %s, got %s", want.Error, got.Error))
		}
	}

	if want.Names != nil {
		if gotNames := elementNames(got.Names); !reflect.DeepEqual(want.Names, gotNames) {
			errs = append(errs, fmt.Sprintf("expected names %v, got %v", want.Names, gotNames))
		}
	}

	if want.Fetches != nil && *want.Fetches != got.Fetches {
		errs = append(errs, fmt.Sprintf("expected %d fetches, got %d", *want.Fetches, got.Fetches))
	}

	return errs
}

// upstreamFailure builds the error an upstream step configures.
func upstreamFailure(u *UpstreamStep) (int, error) {
	switch u.Fail {
	case FailUnavailable:
		status := u.Status
		if status == 0 {
			status = 404
		}
		return status, history.NewUnavailable(status, fmt.Sprintf("profile source returned %d", status))
	case FailTransport:
		return 0, history.NewTransport("request profile", errors.New("connection refused"))
	default:
		return 0, history.NewMalformed("decode profile", errors.New("unexpected end of JSON input"))
	}
}

// errorKind renders err for the trace: its history kind, "error" for
// anything else, "" for nil.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if kind, ok := history.KindOf(err); ok {
		return string(kind)
	}
	return "error"
}

func elementNames(h []history.Element) []string {
	names := make([]string, len(h))
	for i, el := range h {
		names[i] = el.Name
	}
	return names
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// policy converts the TTL strings, defaulting unset ones.
func (p PolicySpec) policy() (freshness.Policy, error) {
	policy := freshness.DefaultPolicy()
	if p.UnchangedTTL != "" {
		d, err := config.ParseDuration(p.UnchangedTTL)
		if err != nil {
			return freshness.Policy{}, fmt.Errorf("policy.unchanged_ttl: %w", err)
		}
		policy.UnchangedTTL = d
	}
	if p.ChangedTTL != "" {
		d, err := config.ParseDuration(p.ChangedTTL)
		if err != nil {
			return freshness.Policy{}, fmt.Errorf("policy.changed_ttl: %w", err)
		}
		policy.ChangedTTL = d
	}
	return policy, nil
}
