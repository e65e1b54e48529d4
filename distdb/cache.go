package distdb

import (
	"context"
	"runtime"
	"sync"
	"weak"
)

// CreateFunc produces a new value to cache for key.
type CreateFunc[K comparable, V any] func(context.Context, K) (*V, error)

// liveCache keeps a cached copy of a value for as long as the Go
// runtime determines it's still live, coalescing concurrent creates
// for the same key into a single call. Adapted from the teacher's
// internal/cache.Live: that type delegated coalescing to a bespoke
// generic internal/singleflight.Group, a package this retrieval pack
// doesn't carry, so the call-coalescing here is reimplemented directly
// (the same shape golang.org/x/sync/singleflight uses internally, kept
// generic since x/sync/singleflight's key/value types are both `any`).
//
// The zero value is ready to use.
type liveCache[K comparable, V any] struct {
	m sync.Map // K -> weak.Pointer[V]

	mu    sync.Mutex
	calls map[K]*inflightCall[V]
}

type inflightCall[V any] struct {
	done chan struct{}
	val  *V
	err  error
}

// Get returns the cached value for key, calling create if absent.
func (c *liveCache[K, V]) Get(ctx context.Context, key K, create CreateFunc[K, V]) (*V, error) {
	for {
		if v, ok := c.m.Load(key); ok {
			if p := v.(weak.Pointer[V]).Value(); p != nil {
				return p, nil
			}
			c.m.CompareAndDelete(key, v)
		}

		c.mu.Lock()
		if c.calls == nil {
			c.calls = make(map[K]*inflightCall[V])
		}
		if call, ok := c.calls[key]; ok {
			c.mu.Unlock()
			select {
			case <-call.done:
				return call.val, call.err
			case <-ctx.Done():
				return nil, context.Cause(ctx)
			}
		}
		call := &inflightCall[V]{done: make(chan struct{})}
		c.calls[key] = call
		c.mu.Unlock()

		if ctx.Err() != nil {
			call.err = context.Cause(ctx)
		} else {
			call.val, call.err = create(ctx, key)
		}
		if call.err == nil {
			wp := weak.Make(call.val)
			c.m.Store(key, wp)
			runtime.AddCleanup(call.val, func(key K) {
				c.m.CompareAndDelete(key, wp)
			}, key)
		}

		c.mu.Lock()
		delete(c.calls, key)
		c.mu.Unlock()
		close(call.done)
		return call.val, call.err
	}
}

// Clear drops every cached entry without running any cleanup logic
// beyond what the garbage collector would do anyway.
func (c *liveCache[K, V]) Clear() { c.m.Clear() }
