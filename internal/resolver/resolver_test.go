package resolver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/namehist/internal/freshness"
	"github.com/roach88/namehist/internal/history"
	"github.com/roach88/namehist/internal/metrics"
	"github.com/roach88/namehist/internal/testutil"
)

var (
	u1 = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	u2 = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// scenarioPolicy uses millisecond-scale TTLs so instants read like the
// scenario descriptions.
var scenarioPolicy = freshness.Policy{UnchangedTTL: 500 * time.Millisecond, ChangedTTL: 1000 * time.Millisecond}

type fixture struct {
	store   *memStore
	fetcher *testutil.FakeFetcher
	clock   *testutil.ManualClock
	metrics *metrics.Metrics
	r       *Resolver
}

func newFixture(t *testing.T, policy freshness.Policy, startMs int64) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemStore(),
		fetcher: testutil.NewFakeFetcher(),
		clock:   testutil.NewManualClockMillis(startMs),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.r = New(f.store, f.fetcher,
		WithPolicy(policy),
		WithClock(f.clock),
		WithMetrics(f.metrics),
	)
	return f
}

func millis(h []history.Element) []int64 {
	out := make([]int64, len(h))
	for i, el := range h {
		if el.ChangedAt == nil {
			out[i] = -1
			continue
		}
		out[i] = el.ChangedAt.UnixMilli()
	}
	return out
}

func names(h []history.Element) []string {
	out := make([]string, len(h))
	for i, el := range h {
		out[i] = el.Name
	}
	return out
}

func TestResolve_FirstLookup(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 1000)
	f.fetcher.SetName(u1, "Alice")

	h, err := f.r.Resolve(context.Background(), u1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(h))
	assert.Equal(t, []int64{1000}, millis(h), "first live observation is stamped with now, never nil")

	meta, ok := f.store.metadata(u1)
	require.True(t, ok)
	assert.True(t, meta.LastCheckChanged)
	assert.Equal(t, int64(1000), meta.LastChecked.UnixMilli())
	assert.Equal(t, []bool{false}, f.store.saves, "first reconciliation takes the insert path")
	assert.Equal(t, []history.Source{history.SourceProfile}, f.store.sources)

	// Within the changed TTL a repeat lookup yields the same single-element history.
	f.clock.Advance(400 * time.Millisecond)
	h, err = f.r.Resolve(context.Background(), u1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(h))
	assert.Equal(t, 1, f.fetcher.Calls(u1))
}

func TestResolve_FreshIsNoOp(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 600)
	f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500), LastCheckChanged: true},
		history.NewElement("Bob", time.UnixMilli(500)))

	h, err := f.r.Resolve(context.Background(), u2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, names(h))
	assert.Equal(t, []int64{500}, millis(h))
	assert.Equal(t, 0, f.fetcher.TotalCalls())
	assert.Equal(t, 0, f.store.writeCount())
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.LookupOutcome.WithLabelValues(metrics.OutcomeFresh)))
}

func TestResolve_StaleAppendsChange(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 1600)
	f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500), LastCheckChanged: true},
		history.NewElement("Bob", time.UnixMilli(500)))
	f.fetcher.SetName(u2, "Carol")

	h, err := f.r.Resolve(context.Background(), u2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Carol"}, names(h))
	assert.Equal(t, []int64{500, 1600}, millis(h))
	assert.Equal(t, h, f.store.history(u2), "returned history mirrors the store")

	meta, _ := f.store.metadata(u2)
	assert.True(t, meta.LastCheckChanged)
	assert.Equal(t, int64(1600), meta.LastChecked.UnixMilli())
	assert.Equal(t, []bool{true}, f.store.saves, "existing metadata takes the update path")
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.LookupOutcome.WithLabelValues(metrics.OutcomeChanged)))
}

func TestResolve_SameNameDoesNotAppend(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 5000)
	f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500), LastCheckChanged: true},
		history.NewElement("Bob", time.UnixMilli(500)))
	f.fetcher.SetName(u2, "Bob")

	h, err := f.r.Resolve(context.Background(), u2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, names(h))

	meta, _ := f.store.metadata(u2)
	assert.False(t, meta.LastCheckChanged)
	assert.Equal(t, int64(5000), meta.LastChecked.UnixMilli(), "metadata is rewritten even without a change")
	assert.Empty(t, f.store.sources, "no element appended")
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.LookupOutcome.WithLabelValues(metrics.OutcomeUnchanged)))
}

func TestResolve_OnlyLastElementCompared(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 9000)
	f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(10), LastCheckChanged: false},
		history.NewInitialElement("Alice"),
		history.NewElement("Bob", time.UnixMilli(2000)))
	f.fetcher.SetName(u2, "Alice")

	h, err := f.r.Resolve(context.Background(), u2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Alice"}, names(h), "reverting to an earlier name is a change")
	assert.Equal(t, []int64{-1, 2000, 9000}, millis(h))
}

func TestResolve_IdempotentRecheck(t *testing.T) {
	f := newFixture(t, freshness.Policy{}, 1000)
	f.fetcher.SetName(u1, "Alice")

	first, err := f.r.Resolve(context.Background(), u1)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	second, err := f.r.Resolve(context.Background(), u1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, f.fetcher.Calls(u1), "zero TTLs make every lookup stale")

	meta, _ := f.store.metadata(u1)
	assert.Equal(t, int64(2000), meta.LastChecked.UnixMilli())
	assert.False(t, meta.LastCheckChanged)
}

func TestResolve_ClockMovedBackwardRefetches(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 400)
	f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500), LastCheckChanged: true},
		history.NewElement("Bob", time.UnixMilli(500)))
	f.fetcher.SetName(u2, "Bob")

	_, err := f.r.Resolve(context.Background(), u2)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.Calls(u2))
}

func TestResolve_ClockReadBeforeMetadata(t *testing.T) {
	t.Run("fresh at the start of the lookup", func(t *testing.T) {
		f := newFixture(t, scenarioPolicy, 1499)
		f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500), LastCheckChanged: true},
			history.NewElement("Bob", time.UnixMilli(500)))
		f.fetcher.SetName(u2, "Carol")
		f.store.onGetMetadata = func() { f.clock.Advance(time.Second) }

		h, err := f.r.Resolve(context.Background(), u2)
		require.NoError(t, err)
		assert.Equal(t, []string{"Bob"}, names(h))
		assert.Equal(t, 0, f.fetcher.TotalCalls())
	})

	t.Run("check recorded at the start of the lookup", func(t *testing.T) {
		f := newFixture(t, scenarioPolicy, 2000)
		f.fetcher.SetName(u1, "Alice")
		f.store.onGetMetadata = func() { f.clock.Advance(time.Second) }

		h, err := f.r.Resolve(context.Background(), u1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2000}, millis(h))

		meta, ok := f.store.metadata(u1)
		require.True(t, ok)
		assert.Equal(t, int64(2000), meta.LastChecked.UnixMilli())
	})
}

func TestResolve_LogsStorageFailures(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, scenarioPolicy, 1000)
	f.r = New(f.store, f.fetcher,
		WithPolicy(scenarioPolicy),
		WithClock(f.clock),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)
	f.store.saveErr = history.NewStorage("insert metadata", errors.New("database is closed"))
	f.fetcher.SetName(u1, "Alice")

	_, err := f.r.Resolve(context.Background(), u1)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `msg="reconciliation failed"`)
	assert.Contains(t, out, "database is closed")
	assert.Contains(t, out, u1.String())
}

func TestResolve_FetchFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind history.Kind
	}{
		{"unavailable", history.NewUnavailable(429, "rate limited"), history.KindFetchUnavailable},
		{"transport", history.NewTransport("request profile", errors.New("connection reset")), history.KindFetchTransport},
		{"malformed", history.NewMalformed("decode profile", errors.New("unexpected EOF")), history.KindFetchMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, scenarioPolicy, 1600)
			f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500), LastCheckChanged: true},
				history.NewElement("Bob", time.UnixMilli(500)))
			f.fetcher.SetError(u2, tt.err)

			h, err := f.r.Resolve(context.Background(), u2)
			require.Error(t, err)
			assert.Nil(t, h)
			kind, ok := history.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)

			assert.Equal(t, 0, f.store.writeCount())
			meta, _ := f.store.metadata(u2)
			assert.Equal(t, int64(500), meta.LastChecked.UnixMilli(), "metadata untouched")
			assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.LookupOutcome.WithLabelValues(metrics.OutcomeError)))
		})
	}
}

func TestResolve_StorageFailures(t *testing.T) {
	boom := history.NewStorage("query metadata", errors.New("disk I/O error"))

	t.Run("metadata read", func(t *testing.T) {
		f := newFixture(t, scenarioPolicy, 1000)
		f.store.getMetadataErr = boom
		f.fetcher.SetName(u1, "Alice")

		_, err := f.r.Resolve(context.Background(), u1)
		assert.True(t, history.IsStorageFailure(err))
		assert.Equal(t, 0, f.fetcher.TotalCalls())
	})

	t.Run("history read", func(t *testing.T) {
		f := newFixture(t, scenarioPolicy, 1000)
		f.store.getHistoryErr = boom
		f.fetcher.SetName(u1, "Alice")

		_, err := f.r.Resolve(context.Background(), u1)
		assert.True(t, history.IsStorageFailure(err))
		assert.Equal(t, 0, f.fetcher.TotalCalls())
	})

	t.Run("append", func(t *testing.T) {
		f := newFixture(t, scenarioPolicy, 1000)
		f.store.appendErr = boom
		f.fetcher.SetName(u1, "Alice")

		_, err := f.r.Resolve(context.Background(), u1)
		assert.True(t, history.IsStorageFailure(err))
		_, ok := f.store.metadata(u1)
		assert.False(t, ok, "metadata not written after a failed append")
	})

	t.Run("metadata write", func(t *testing.T) {
		f := newFixture(t, scenarioPolicy, 1000)
		f.store.saveErr = boom
		f.fetcher.SetName(u1, "Alice")

		_, err := f.r.Resolve(context.Background(), u1)
		assert.True(t, history.IsStorageFailure(err))
		assert.Equal(t, []string{"Alice"}, names(f.store.history(u1)), "appended element stays")
	})
}

func TestResolve_ReturnsCallerOwnedSlice(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 600)
	f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500), LastCheckChanged: true},
		history.NewElement("Bob", time.UnixMilli(500)))

	h, err := f.r.Resolve(context.Background(), u2)
	require.NoError(t, err)
	h[0].Name = "mutated"

	assert.Equal(t, "Bob", f.store.history(u2)[0].Name)
}

func TestResolve_EmptyHistoryIsNotNil(t *testing.T) {
	f := newFixture(t, freshness.Policy{UnchangedTTL: time.Hour, ChangedTTL: time.Hour}, 600)
	f.store.seed(u2, &history.Metadata{LastChecked: time.UnixMilli(500)})

	h, err := f.r.Resolve(context.Background(), u2)
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Empty(t, h)
}

func TestResolve_ConcurrentLookupsShareOneFetch(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 1000)
	f.fetcher.SetName(u1, "Alice")
	f.fetcher.Hold()

	const callers = 16
	results := make([][]history.Element, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.r.Resolve(context.Background(), u1)
		}(i)
	}

	require.Eventually(t, func() bool { return f.fetcher.Calls(u1) == 1 }, time.Second, time.Millisecond)
	// Let the remaining callers reach the in-flight lookup before it completes.
	time.Sleep(20 * time.Millisecond)
	f.fetcher.Release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"Alice"}, names(results[i]))
	}
	assert.Equal(t, 1, f.fetcher.Calls(u1))
	assert.Len(t, f.store.sources, 1, "exactly one append")
}

func TestResolve_DifferentIdentifiersAreIndependent(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 1000)
	f.fetcher.SetName(u1, "Alice")
	f.fetcher.SetName(u2, "Bob")

	var wg sync.WaitGroup
	for _, id := range []uuid.UUID{u1, u2} {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.r.Resolve(context.Background(), id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, f.fetcher.Calls(u1))
	assert.Equal(t, 1, f.fetcher.Calls(u2))
}

func TestResolve_CallerCancellationDoesNotAbortSharedWork(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 1000)
	f.fetcher.SetName(u1, "Alice")
	f.fetcher.Hold()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.r.Resolve(ctx, u1)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.fetcher.Calls(u1) == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	f.fetcher.Release()
	require.Eventually(t, func() bool {
		_, ok := f.store.metadata(u1)
		return ok
	}, time.Second, time.Millisecond, "detached reconciliation still completes")

	h, err := f.r.Resolve(context.Background(), u1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(h))
	assert.Equal(t, 1, f.fetcher.Calls(u1))
}

func TestWait_NoLookups(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 1000)
	assert.NoError(t, f.r.Wait(context.Background()))
}

func TestWait_BlocksOnAbandonedLookup(t *testing.T) {
	f := newFixture(t, scenarioPolicy, 1000)
	f.fetcher.SetName(u1, "Alice")
	f.fetcher.Hold()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.r.Resolve(ctx, u1)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.fetcher.Calls(u1) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	err := f.r.Wait(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.fetcher.Release()
	require.NoError(t, f.r.Wait(context.Background()))

	_, ok := f.store.metadata(u1)
	assert.True(t, ok, "metadata written before Wait returned")
	assert.Equal(t, []string{"Alice"}, names(f.store.history(u1)))
}
