package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/namehist/internal/clock"
	"github.com/roach88/namehist/internal/freshness"
	"github.com/roach88/namehist/internal/history"
	"github.com/roach88/namehist/internal/metrics"
)

// HistoryStore is the persistence the resolver needs.
// *store.Store implements it.
type HistoryStore interface {
	GetMetadata(ctx context.Context, id uuid.UUID) (*history.Metadata, error)
	GetHistory(ctx context.Context, id uuid.UUID) ([]history.Element, error)
	AppendElement(ctx context.Context, id uuid.UUID, el history.Element, source history.Source) (int64, error)
	SaveMetadata(ctx context.Context, id uuid.UUID, meta history.Metadata, existed bool) error
}

// Fetcher returns the current name of an account.
// *fetcher.Client implements it.
type Fetcher interface {
	FetchCurrentName(ctx context.Context, id uuid.UUID) (string, error)
}

// Resolver answers name-history lookups. Safe for concurrent use.
type Resolver struct {
	store   HistoryStore
	fetcher Fetcher
	policy  freshness.Policy
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	group singleflight.Group

	// inflight counts callers whose reconciliation has not finished yet,
	// including callers that stopped waiting for it.
	inflight sync.WaitGroup
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy sets the freshness policy (default freshness.DefaultPolicy).
func WithPolicy(p freshness.Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

// WithClock sets the wall clock (default clock.System).
func WithClock(c clock.Clock) Option {
	return func(r *Resolver) {
		r.clock = c
	}
}

// WithMetrics records lookup outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithLogger sets the logger (default slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver over store and fetcher.
func New(store HistoryStore, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		fetcher: fetcher,
		policy:  freshness.DefaultPolicy(),
		clock:   clock.System{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/roach88/namehist/internal/resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// outcome is the result of one reconciliation, shared by every caller that
// joined it.
type outcome struct {
	history []history.Element
	label   string
}

// Resolve returns the name history of id, refreshing it from the profile
// source when the stored data is stale.
//
// The returned slice is never nil and is owned by the caller.
// Errors are *history.Error values, except when ctx ends first, in which
// case ctx.Err() is returned wrapped.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) ([]history.Element, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(attribute.String("identifier", id.String())))
	defer span.End()

	start := time.Now()
	defer func() { r.metrics.ObserveLookupLatency(time.Since(start)) }()

	r.inflight.Add(1)
	ch := r.group.DoChan(id.String(), func() (any, error) {
		out, err := r.reconcile(context.WithoutCancel(ctx), id)
		if err != nil && !history.IsFetchFailure(err) {
			r.logger.Error("reconciliation failed", "identifier", id, "error", err)
		}
		return out, err
	})

	select {
	case <-ctx.Done():
		// The channel is buffered; the result lands there once the shared
		// work ends, and Wait keeps blocking until it does.
		go func() {
			<-ch
			r.inflight.Done()
		}()
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "context cancelled")
		r.metrics.IncrementLookup(metrics.OutcomeError)
		return nil, fmt.Errorf("resolve %s: %w", id, ctx.Err())

	case res := <-ch:
		r.inflight.Done()
		if res.Shared {
			r.metrics.IncrementShared()
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			r.metrics.IncrementLookup(metrics.OutcomeError)
			return nil, res.Err
		}
		out := res.Val.(outcome)
		span.SetAttributes(
			attribute.String("outcome", out.label),
			attribute.Int("history_length", len(out.history)),
			attribute.Bool("shared", res.Shared),
		)
		r.metrics.IncrementLookup(out.label)
		return history.Clone(out.history), nil
	}
}

// Wait blocks until every reconciliation started by Resolve has finished,
// including those whose callers already returned, or until ctx ends.
// Call it after the last Resolve call has been issued and before closing
// the store.
func (r *Resolver) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight lookups: %w", ctx.Err())
	}
}

// reconcile runs one lookup against the store and, when stale, the fetcher.
func (r *Resolver) reconcile(ctx context.Context, id uuid.UUID) (outcome, error) {
	// The lookup's instant: used for the freshness decision and recorded as
	// the check time. Stored element times have millisecond resolution.
	now := r.clock.Now().UTC().Truncate(time.Millisecond)

	meta, err := r.store.GetMetadata(ctx, id)
	if err != nil {
		return outcome{}, err
	}

	fresh := r.policy.Check(now, meta)

	h, err := r.store.GetHistory(ctx, id)
	if err != nil {
		return outcome{}, err
	}

	if fresh {
		return outcome{history: h, label: metrics.OutcomeFresh}, nil
	}

	name, err := r.fetcher.FetchCurrentName(ctx, id)
	if err != nil {
		r.logger.Warn("profile fetch failed", "identifier", id, "error", err)
		return outcome{}, err
	}
	r.logger.Debug("fetched current name", "identifier", id)

	changed := false
	if last, ok := history.Last(h); !ok || last.Name != name {
		el := history.NewElement(name, now)
		if _, err := r.store.AppendElement(ctx, id, el, history.SourceProfile); err != nil {
			return outcome{}, err
		}
		r.logger.Debug("name history updated", "identifier", id, "name", name)
		h = append(h, el)
		changed = true
	}

	check := history.Metadata{LastChecked: now, LastCheckChanged: changed}
	if err := r.store.SaveMetadata(ctx, id, check, meta != nil); err != nil {
		return outcome{}, err
	}

	label := metrics.OutcomeUnchanged
	if changed {
		label = metrics.OutcomeChanged
	}
	return outcome{history: h, label: label}, nil
}
