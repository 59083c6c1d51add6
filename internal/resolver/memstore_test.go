package resolver

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/namehist/internal/history"
)

// memStore is an in-memory HistoryStore that counts writes and can be told
// to fail.
type memStore struct {
	mu        sync.Mutex
	histories map[uuid.UUID][]history.Element
	metas     map[uuid.UUID]history.Metadata
	sources   []history.Source
	saves     []bool // existed flag of each SaveMetadata call
	writes    int

	getMetadataErr error
	getHistoryErr  error
	appendErr      error
	saveErr        error

	// onGetMetadata runs before GetMetadata answers.
	onGetMetadata func()
}

func newMemStore() *memStore {
	return &memStore{
		histories: make(map[uuid.UUID][]history.Element),
		metas:     make(map[uuid.UUID]history.Metadata),
	}
}

func (m *memStore) seed(id uuid.UUID, meta *history.Metadata, elements ...history.Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories[id] = append([]history.Element(nil), elements...)
	if meta != nil {
		m.metas[id] = *meta
	}
}

func (m *memStore) GetMetadata(ctx context.Context, id uuid.UUID) (*history.Metadata, error) {
	if m.onGetMetadata != nil {
		m.onGetMetadata()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getMetadataErr != nil {
		return nil, m.getMetadataErr
	}
	meta, ok := m.metas[id]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

func (m *memStore) GetHistory(ctx context.Context, id uuid.UUID) ([]history.Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getHistoryErr != nil {
		return nil, m.getHistoryErr
	}
	return history.Clone(m.histories[id]), nil
}

func (m *memStore) AppendElement(ctx context.Context, id uuid.UUID, el history.Element, source history.Source) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.histories[id] = append(m.histories[id], el)
	m.sources = append(m.sources, source)
	m.writes++
	return 1, nil
}

func (m *memStore) SaveMetadata(ctx context.Context, id uuid.UUID, meta history.Metadata, existed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.metas[id] = meta
	m.saves = append(m.saves, existed)
	m.writes++
	return nil
}

func (m *memStore) history(id uuid.UUID) []history.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return history.Clone(m.histories[id])
}

func (m *memStore) metadata(id uuid.UUID) (history.Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[id]
	return meta, ok
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
