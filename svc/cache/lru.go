package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"pastecap/pkg/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU holds paste snapshots. Only the immutable fields are trusted by
// readers; Views may lag behind the store but never runs ahead of it.
type LRU struct {
	c   *lru.Cache[string, item]
	mu  sync.Mutex
	now func() time.Time
}
type item struct {
	paste domain.Paste
	exp   time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c, now: time.Now}, nil
}
func (l *LRU) Get(ctx context.Context, id string) *domain.Paste {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(id)
	if !ok {
		return nil
	}
	if l.now().After(it.exp) {
		l.c.Remove(id)
		return nil
	}
	p := it.paste
	return &p
}

// Set keeps the snapshot for ttl, cut short by the paste's own expiry.
func (l *LRU) Set(p *domain.Paste, ttl time.Duration) {
	exp := l.now().Add(ttl)
	if p.ExpiresAt != nil && p.ExpiresAt.Before(exp) {
		exp = *p.ExpiresAt
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(p.ID, item{
		paste: *p,
		exp:   exp,
	})
}
func (l *LRU) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(id)
}
