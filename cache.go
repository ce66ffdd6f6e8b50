package spacetraveling

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eringen/spacetraveling/logger"
	"github.com/eringen/spacetraveling/prismic"
)

// Page is a rendered response body.
type Page struct {
	Body        []byte
	ContentType string
	GeneratedAt time.Time
}

// RenderFunc produces a fresh page.
type RenderFunc func(ctx context.Context) (Page, error)

// CacheState says how a page was obtained.
type CacheState string

const (
	StateHit    CacheState = "hit"
	StateStale  CacheState = "stale"
	StateMiss   CacheState = "miss"
	StateBypass CacheState = "bypass"
)

type cachedPage struct {
	page   Page
	ttl    time.Duration
	render RenderFunc
}

// PageCache serves rendered pages with stale-while-revalidate semantics.
// Pages past their TTL are still served while one background regeneration
// per key replaces them; a failed regeneration keeps the old page.
type PageCache struct {
	mu    sync.RWMutex
	pages map[string]*cachedPage

	store   SnapshotStore
	group   singleflight.Group
	log     logger.Logger
	metrics *Metrics
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewPageCache creates a cache. store and metrics may be nil.
func NewPageCache(store SnapshotStore, regenTimeout time.Duration, log logger.Logger, metrics *Metrics) *PageCache {
	if log == nil {
		log = logger.NewNop()
	}
	if regenTimeout <= 0 {
		regenTimeout = 30 * time.Second
	}
	return &PageCache{
		pages:   make(map[string]*cachedPage),
		store:   store,
		log:     log,
		metrics: metrics,
		timeout: regenTimeout,
		now:     time.Now,
	}
}

// Get returns the page for key. A fresh page is returned as is; a stale one
// is returned immediately and regenerated in the background; a missing one
// is rendered synchronously, with concurrent callers sharing one render.
func (c *PageCache) Get(ctx context.Context, key string, ttl time.Duration, render RenderFunc) (Page, CacheState, error) {
	if entry, ok := c.lookup(ctx, key, ttl, render); ok {
		if c.fresh(entry.page, ttl) {
			c.count(StateHit)
			return entry.page, StateHit, nil
		}
		c.count(StateStale)
		c.regenerateAsync(key)
		return entry.page, StateStale, nil
	}

	c.count(StateMiss)
	v, err, _ := c.group.Do(key, func() (any, error) {
		page, err := render(ctx)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, ttl, render, page)
		return page, nil
	})
	if err != nil {
		return Page{}, StateMiss, err
	}
	return v.(Page), StateMiss, nil
}

// Peek reports whether key is cached in memory or in the snapshot store.
func (c *PageCache) Peek(ctx context.Context, key string) bool {
	c.mu.RLock()
	_, ok := c.pages[key]
	c.mu.RUnlock()
	if ok || c.store == nil {
		return ok
	}
	_, ok, err := c.store.Load(ctx, key)
	return err == nil && ok
}

// Put stores an already rendered page.
func (c *PageCache) Put(ctx context.Context, key string, ttl time.Duration, render RenderFunc, page Page) {
	c.save(ctx, key, ttl, render, page)
}

// Evict drops key from memory and the snapshot store.
func (c *PageCache) Evict(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.pages, key)
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Delete(ctx, key); err != nil {
			c.log.Warn("delete snapshot failed", logger.String("key", key), logger.Error(err))
		}
	}
}

// Keys lists the cached keys.
func (c *PageCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.pages))
	for k := range c.pages {
		keys = append(keys, k)
	}
	return keys
}

// Regenerate re-renders key now. A not-found result evicts the page; any
// other failure leaves the current page in place.
func (c *PageCache) Regenerate(ctx context.Context, key string) error {
	c.mu.RLock()
	entry, ok := c.pages[key]
	c.mu.RUnlock()
	if !ok || entry.render == nil {
		return nil
	}

	_, err, _ := c.group.Do("regenerate:"+key, func() (any, error) {
		page, err := entry.render(ctx)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, entry.ttl, entry.render, page)
		return nil, nil
	})
	switch {
	case err == nil:
		c.countRegen("ok")
		c.log.Debug("page regenerated", logger.String("key", key))
	case errors.Is(err, prismic.ErrNotFound):
		c.countRegen("not_found")
		c.Evict(ctx, key)
		c.log.Info("page no longer exists upstream, evicted", logger.String("key", key))
	default:
		c.countRegen("error")
		c.log.Warn("page regeneration failed, serving stale copy",
			logger.String("key", key), logger.Error(err))
	}
	return err
}

// RegenerateStale regenerates every stale page, one at a time. Failures
// are logged and do not stop the remaining pages. It returns how many
// pages were attempted.
func (c *PageCache) RegenerateStale(ctx context.Context) int {
	c.mu.RLock()
	var stale []string
	for key, entry := range c.pages {
		if !c.fresh(entry.page, entry.ttl) {
			stale = append(stale, key)
		}
	}
	c.mu.RUnlock()

	for _, key := range stale {
		if ctx.Err() != nil {
			break
		}
		_ = c.Regenerate(ctx, key)
	}
	return len(stale)
}

// Wait blocks until background regenerations have finished.
func (c *PageCache) Wait() {
	c.wg.Wait()
}

func (c *PageCache) regenerateAsync(key string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		_ = c.Regenerate(ctx, key)
	}()
}

// lookup finds key in memory, then in the snapshot store. The render
// function and TTL of the caller are recorded for later regeneration.
func (c *PageCache) lookup(ctx context.Context, key string, ttl time.Duration, render RenderFunc) (*cachedPage, bool) {
	c.mu.Lock()
	entry, ok := c.pages[key]
	if ok {
		entry.ttl, entry.render = ttl, render
		snapshot := *entry
		c.mu.Unlock()
		return &snapshot, true
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil, false
	}
	page, ok, err := c.store.Load(ctx, key)
	if err != nil {
		c.log.Warn("load snapshot failed", logger.String("key", key), logger.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	entry = &cachedPage{page: page, ttl: ttl, render: render}
	c.mu.Lock()
	if existing, ok := c.pages[key]; ok {
		entry = existing
	} else {
		c.pages[key] = entry
	}
	snapshot := *entry
	c.mu.Unlock()
	return &snapshot, true
}

func (c *PageCache) save(ctx context.Context, key string, ttl time.Duration, render RenderFunc, page Page) {
	if page.GeneratedAt.IsZero() {
		page.GeneratedAt = c.now()
	}
	c.mu.Lock()
	c.pages[key] = &cachedPage{page: page, ttl: ttl, render: render}
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Save(ctx, key, page); err != nil {
			c.log.Warn("save snapshot failed", logger.String("key", key), logger.Error(err))
		}
	}
}

func (c *PageCache) fresh(p Page, ttl time.Duration) bool {
	return c.now().Sub(p.GeneratedAt) < ttl
}

func (c *PageCache) count(state CacheState) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(string(state)).Inc()
	}
}

func (c *PageCache) countRegen(outcome string) {
	if c.metrics != nil {
		c.metrics.Regenerations.WithLabelValues(outcome).Inc()
	}
}
