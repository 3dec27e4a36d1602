package svc

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"pastecap/metrics"
	"pastecap/pkg/domain"
	"pastecap/svc/cache"
	"pastecap/svc/util"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// longest TTL whose deadline still fits in a time.Duration
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// largest view limit that stays exact as a double, which is how the redis
// consume script compares it
const maxMaxViews = 1 << 53

const defaultCacheTTL = 10 * time.Minute

// Store is the persistence contract the paste service needs. IncrViews must
// check expiry and the view limit and increment in one atomic step, returning
// domain.ErrPasteNotFound when the view is refused.
type Store interface {
	Create(ctx context.Context, p *domain.Paste) error
	Get(ctx context.Context, id string) (*domain.Paste, error)
	Exists(ctx context.Context, id string) (bool, error)
	IncrViews(ctx context.Context, id string, now time.Time) (*domain.Paste, error)
}

type Paste struct {
	store    Store
	lru      *cache.LRU
	log      zerolog.Logger
	now      func() time.Time
	cacheTTL time.Duration
	group    singleflight.Group
	mu       sync.RWMutex
	closed   bool
	opWg     sync.WaitGroup
}

type Option func(*Paste)

func WithClock(now func() time.Time) Option {
	return func(p *Paste) { p.now = now }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Paste) {
		if ttl > 0 {
			p.cacheTTL = ttl
		}
	}
}

// NewPaste wires the lifecycle manager. lru may be nil to run uncached.
func NewPaste(store Store, lru *cache.LRU, log zerolog.Logger, opts ...Option) *Paste {
	if store == nil {
		panic("paste service: nil store")
	}
	p := &Paste{
		store:    store,
		lru:      lru,
		log:      log.With().Str("component", "paste").Logger(),
		now:      time.Now,
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Paste) begin() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.ErrShuttingDown
	}
	p.opWg.Add(1)
	return nil
}

// Shutdown refuses new operations and waits for in-flight ones.
func (p *Paste) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.opWg.Wait()
	p.log.Debug().Msg("paste service shutdown complete")
}

func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()

	content := params.Content
	if strings.TrimSpace(content) == "" {
		return nil, domain.Invalid("content", "must be a non-empty string")
	}
	now := p.now().UTC().Truncate(time.Millisecond)
	paste := &domain.Paste{
		Content:   content,
		CreatedAt: now,
	}
	if params.TTLSeconds != nil {
		ttl := *params.TTLSeconds
		if ttl < 1 {
			return nil, domain.Invalid("ttl_seconds", "must be an integer >= 1")
		}
		if ttl > maxTTLSeconds {
			return nil, domain.Invalid("ttl_seconds", "is too large")
		}
		exp := now.Add(time.Duration(ttl) * time.Second)
		paste.ExpiresAt = &exp
	}
	if params.MaxViews != nil {
		if *params.MaxViews < 1 {
			return nil, domain.Invalid("max_views", "must be an integer >= 1")
		}
		if *params.MaxViews > maxMaxViews {
			return nil, domain.Invalid("max_views", "is too large")
		}
		mv := *params.MaxViews
		paste.MaxViews = &mv
	}

	id, err := util.GenID(func(id string) (bool, error) {
		return p.store.Exists(ctx, id)
	})
	if err != nil {
		if errors.Is(err, util.ErrIDCollision) {
			return nil, domain.ErrIDGenerationFailed
		}
		return nil, errors.Wrap(err, "gen id")
	}
	paste.ID = id
	if err := p.store.Create(ctx, paste); err != nil {
		return nil, errors.Wrap(err, "create paste")
	}
	if p.lru != nil {
		p.lru.Set(paste, p.cacheTTL)
	}
	metrics.PasteCreated.Inc()
	evt := p.log.Info().
		Str("paste_id", id).
		Int("content_length", len(content))
	if paste.ExpiresAt != nil {
		evt = evt.Time("expires_at", *paste.ExpiresAt)
	}
	if paste.MaxViews != nil {
		evt = evt.Int64("max_views", *paste.MaxViews)
	}
	evt.Msg("paste created")
	return paste, nil
}

// Consume spends one view of the paste. Missing, expired and exhausted pastes
// all yield domain.ErrPasteNotFound; the reason is only logged.
func (p *Paste) Consume(ctx context.Context, id string) (*domain.View, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()

	if !util.ValidID(id) {
		return nil, p.deny(id, "malformed")
	}
	now := p.now()
	snap, err := p.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			return nil, p.deny(id, "missing")
		}
		return nil, errors.Wrap(err, "lookup paste")
	}
	// Both checks are advisory: a snapshot's view count can only lag the
	// store, so a refusal here is always correct. IncrViews has the final say.
	if snap.ExpiredAt(now) {
		return nil, p.deny(id, "expired")
	}
	if snap.Exhausted() {
		return nil, p.deny(id, "exhausted")
	}
	updated, err := p.store.IncrViews(ctx, id, now)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			if p.lru != nil {
				p.lru.Delete(id)
			}
			return nil, p.deny(id, "lost_race")
		}
		return nil, errors.Wrap(err, "consume view")
	}
	if p.lru != nil {
		p.lru.Set(updated, p.cacheTTL)
	}
	view := &domain.View{
		ID:             updated.ID,
		Content:        updated.Content,
		RemainingViews: updated.RemainingViews(),
		ExpiresAt:      updated.ExpiresAt,
	}
	p.log.Debug().
		Str("paste_id", id).
		Int64("views", updated.Views).
		Msg("paste view consumed")
	return view, nil
}

// Access consumes a view and shapes it for the caller. mode never changes
// whether access is granted.
func (p *Paste) Access(ctx context.Context, id string, mode domain.RenderMode) (*domain.Rendered, error) {
	view, err := p.Consume(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := Render(view, mode)
	if err != nil {
		return nil, errors.Wrap(err, "render paste")
	}
	metrics.PasteRetrieved.WithLabelValues(mode.String()).Inc()
	return out, nil
}

func (p *Paste) lookup(ctx context.Context, id string) (*domain.Paste, error) {
	if p.lru != nil {
		if snap := p.lru.Get(ctx, id); snap != nil {
			metrics.CacheHits.Inc()
			return snap, nil
		}
		metrics.CacheMisses.Inc()
	}
	// shared by every caller waiting on id; stores apply their own timeout
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(id, func() (interface{}, error) {
		return p.store.Get(flightCtx, id)
	})
	if err != nil {
		return nil, err
	}
	paste := v.(*domain.Paste)
	if p.lru != nil {
		p.lru.Set(paste, p.cacheTTL)
	}
	return paste, nil
}

func (p *Paste) deny(id, reason string) error {
	metrics.PasteDenied.WithLabelValues(reason).Inc()
	p.log.Info().
		Str("paste_id", truncateID(id)).
		Str("reason", reason).
		Msg("paste access denied")
	return domain.ErrPasteNotFound
}

func truncateID(id string) string {
	if len(id) > 32 {
		return id[:32] + "..."
	}
	return id
}
