package svc

import (
	"context"
	"sync"
	"time"

	"pastecap/pkg/domain"
)

// memStore is an in-process Store; its mutex makes IncrViews atomic the same
// way a conditional UPDATE does.
type memStore struct {
	mu      sync.Mutex
	pastes  map[string]domain.Paste
	creates int
	gets    int
	failOn  string
	failErr error
	// when set, Get signals getStarted and blocks until getGate closes
	getGate    chan struct{}
	getStarted chan struct{}
}

func newMemStore() *memStore {
	return &memStore{pastes: make(map[string]domain.Paste)}
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return domain.Storage(op, m.failErr)
	}
	return nil
}

func (m *memStore) Create(ctx context.Context, p *domain.Paste) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create"); err != nil {
		return err
	}
	m.creates++
	m.pastes[p.ID] = *p
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if m.getGate != nil {
		m.getStarted <- struct{}{}
		<-m.getGate
		if err := ctx.Err(); err != nil {
			return nil, domain.Storage("get", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get"); err != nil {
		return nil, err
	}
	m.gets++
	p, ok := m.pastes[id]
	if !ok {
		return nil, domain.ErrPasteNotFound
	}
	return &p, nil
}

func (m *memStore) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("exists"); err != nil {
		return false, err
	}
	_, ok := m.pastes[id]
	return ok, nil
}

func (m *memStore) IncrViews(ctx context.Context, id string, now time.Time) (*domain.Paste, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("incr"); err != nil {
		return nil, err
	}
	p, ok := m.pastes[id]
	if !ok || p.ExpiredAt(now) || p.Exhausted() {
		return nil, domain.ErrPasteNotFound
	}
	p.Views++
	m.pastes[id] = p
	return &p, nil
}

func (m *memStore) views(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pastes[id].Views
}
