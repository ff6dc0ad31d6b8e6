package listing

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Related is a secondary collection loaded in full and indexed by key, used
// to join list rows to the records they reference. Concurrent loads share a
// single request.
type Related[K comparable, V any] struct {
	load  func(ctx context.Context) ([]V, error)
	keyOf func(V) K

	group singleflight.Group

	mu      sync.RWMutex
	data    *relatedData[K, V]
	version uint64
}

type relatedData[K comparable, V any] struct {
	index map[K]V
	items []V
}

// NewRelated constructs a Related collection.
func NewRelated[K comparable, V any](load func(ctx context.Context) ([]V, error), keyOf func(V) K) *Related[K, V] {
	return &Related[K, V]{load: load, keyOf: keyOf}
}

func (r *Related[K, V]) get(ctx context.Context) (*relatedData[K, V], error) {
	r.mu.RLock()
	data, version := r.data, r.version
	r.mu.RUnlock()
	if data != nil {
		return data, nil
	}

	// The shared load outlives any single caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("load", func() (any, error) {
		items, err := r.load(loadCtx)
		if err != nil {
			return nil, err
		}
		loaded := &relatedData[K, V]{index: make(map[K]V, len(items)), items: items}
		for _, item := range items {
			loaded.index[r.keyOf(item)] = item
		}
		r.mu.Lock()
		// An Invalidate during the load means the data may predate a
		// mutation: callers get it, the cache does not.
		if r.version == version {
			r.data = loaded
		}
		r.mu.Unlock()
		return loaded, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*relatedData[K, V]), nil
	}
}

// Index returns the keyed collection, loading it on first use. The map is
// shared and must not be modified.
func (r *Related[K, V]) Index(ctx context.Context) (map[K]V, error) {
	data, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	return data.index, nil
}

// Items returns a copy of the collection in load order.
func (r *Related[K, V]) Items(ctx context.Context) ([]V, error) {
	data, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]V, len(data.items))
	copy(out, data.items)
	return out, nil
}

// Lookup finds one record by key.
func (r *Related[K, V]) Lookup(ctx context.Context, key K) (V, bool, error) {
	data, err := r.get(ctx)
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := data.index[key]
	return v, ok, nil
}

// Invalidate forces the next access to reload.
func (r *Related[K, V]) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version++
	r.data = nil
}
