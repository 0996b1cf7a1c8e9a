// Package cache is the client-side query cache shared by lot views.
//
// Values are only ever replaced wholesale from a server response; there is no
// way to patch part of a cached value. Invalidation marks an entry stale and
// wakes its subscribers so they refetch, while the last-known-good value stays
// readable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"lot-auction/utils"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Cached is a decoded cache entry
type Cached[T any] struct {
	Value     T
	UpdatedAt time.Time
	Stale     bool
}

// QueryCache is keyed by (entity, id) and safe for concurrent use
type QueryCache struct {
	store Store
	clock clockwork.Clock
	group singleflight.Group

	mu   sync.Mutex
	subs map[Key]map[chan struct{}]struct{}
}

// Option configures a QueryCache
type Option func(*QueryCache)

// WithClock overrides the clock used to stamp entries
func WithClock(clock clockwork.Clock) Option {
	return func(c *QueryCache) { c.clock = clock }
}

// New creates a QueryCache over store, or over a MemoryStore when store is nil
func New(store Store, opts ...Option) *QueryCache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &QueryCache{
		store: store,
		clock: clockwork.NewRealClock(),
		subs:  make(map[Key]map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the entry stored under key
func Get[T any](ctx context.Context, c *QueryCache, key Key) (Cached[T], bool, error) {
	e, ok, err := c.store.Load(ctx, key)
	if err != nil || !ok {
		return Cached[T]{}, false, err
	}

	var out Cached[T]
	if err := json.Unmarshal(e.Data, &out.Value); err != nil {
		return Cached[T]{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	out.UpdatedAt = e.UpdatedAt
	out.Stale = e.Stale
	return out, true, nil
}

// SetFromResponse replaces the entry under key with a trusted server
// response. The most recently resolved response wins.
func (c *QueryCache) SetFromResponse(ctx context.Context, key Key, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.store.Save(ctx, key, Entry{Data: data, UpdatedAt: c.clock.Now()})
}

// Invalidate marks each key stale and notifies its subscribers. Subscribers
// are notified even when the store fails.
func (c *QueryCache) Invalidate(ctx context.Context, keys ...Key) error {
	var errs []error
	for _, key := range keys {
		// fetches already in flight may predate the change; later ones start anew
		c.group.Forget(key.String())
		if err := c.store.MarkStale(ctx, key); err != nil {
			errs = append(errs, err)
		}
		c.notify(key)
	}

	err := errors.Join(errs...)
	if err != nil {
		utils.Warn("cache: invalidate failed", map[string]any{"error": err.Error()})
	}
	return err
}

// Fetch runs fn and stores its result under key. Concurrent fetches of the
// same key share one call. On failure the previous entry is kept.
//
// The shared call is detached from the caller's cancellation: a caller whose
// ctx ends gets ctx.Err() right away while the others still receive the
// result.
func Fetch[T any](ctx context.Context, c *QueryCache, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ch := c.group.DoChan(key.String(), func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		val, err := fn(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := c.SetFromResponse(fetchCtx, key, val); err != nil {
			utils.Warn("cache: store response failed", map[string]any{"key": key.String(), "error": err.Error()})
		}
		return val, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			utils.Debug("cache: shared in-flight fetch", map[string]any{"key": key.String()})
		}
		return res.Val.(T), nil
	}
}

// Subscribe returns a channel signalled whenever key is invalidated, and a
// func that cancels the subscription. Signals coalesce while unread.
func (c *QueryCache) Subscribe(key Key) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	if c.subs[key] == nil {
		c.subs[key] = make(map[chan struct{}]struct{})
	}
	c.subs[key][ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs[key], ch)
			if len(c.subs[key]) == 0 {
				delete(c.subs, key)
			}
		})
	}
}

func (c *QueryCache) notify(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ch := range c.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
