package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/namehist/internal/history"
)

// FakeFetcher is a scripted profile source.
//
// Each identifier answers with the name or error configured for it; an
// identifier with neither answers with an unavailable (404) error, the way
// the real source answers for unknown accounts.
//
// Thread-safety: FakeFetcher is safe for concurrent use.
type FakeFetcher struct {
	mu     sync.Mutex
	names  map[uuid.UUID]string
	errs   map[uuid.UUID]error
	calls  map[uuid.UUID]int
	total  int
	gate   chan struct{}
	before func(id uuid.UUID)
}

// NewFakeFetcher creates a fetcher with no configured identifiers.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		names: make(map[uuid.UUID]string),
		errs:  make(map[uuid.UUID]error),
		calls: make(map[uuid.UUID]int),
	}
}

// SetName makes id answer with name and clears any configured error.
func (f *FakeFetcher) SetName(id uuid.UUID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[id] = name
	delete(f.errs, id)
}

// SetError makes id answer with err.
func (f *FakeFetcher) SetError(id uuid.UUID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

// Hold makes every fetch block after it is counted until Release is called
// or the caller's context ends.
func (f *FakeFetcher) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks fetches parked by Hold.
func (f *FakeFetcher) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// OnFetch registers a hook run at the start of every fetch, before it is
// answered. Tests use it to mutate state mid-lookup.
func (f *FakeFetcher) OnFetch(hook func(id uuid.UUID)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = hook
}

// FetchCurrentName answers according to the configuration.
func (f *FakeFetcher) FetchCurrentName(ctx context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	f.calls[id]++
	f.total++
	gate := f.gate
	hook := f.before
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", history.NewTransport("request profile", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return "", err
	}
	if name, ok := f.names[id]; ok {
		return name, nil
	}
	return "", history.NewUnavailable(404, "profile source returned 404 Not Found")
}

// Calls returns how many fetches were made for id.
func (f *FakeFetcher) Calls(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// TotalCalls returns how many fetches were made for any identifier.
func (f *FakeFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}
