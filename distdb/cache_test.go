package distdb

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"weak"
)

func TestLiveCache(t *testing.T) {
	var c liveCache[string, int]
	var calls int32
	create := func(_ context.Context, key string) (*int, error) {
		atomic.AddInt32(&calls, 1)
		v := len(key)
		return &v, nil
	}
	ctx := t.Context()

	a, err := c.Get(ctx, "hello", create)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Get(ctx, "hello", create)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected same pointer from cache hit")
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	wp := weak.Make(b)
	a, b = nil, nil
	for range 3 {
		runtime.GC()
	}
	if wp.Value() != nil {
		t.Error("expected weak pointer to have been cleared")
	}

	if _, err := c.Get(ctx, "hello", create); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("create called %d times after eviction, want 2", calls)
	}
}

func TestLiveCacheCreateError(t *testing.T) {
	var c liveCache[string, int]
	wantErr := context.Canceled
	_, err := c.Get(t.Context(), "x", func(context.Context, string) (*int, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	// A failed create must not poison the cache for subsequent calls.
	v, err := c.Get(t.Context(), "x", func(context.Context, string) (*int, error) {
		n := 7
		return &n, nil
	})
	if err != nil || *v != 7 {
		t.Fatalf("got (%v, %v), want (7, nil)", v, err)
	}
}
