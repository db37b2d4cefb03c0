package client

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// queryCache holds query results by key. Concurrent loads of the same key
// share one fetch. Invalidation bumps a generation so a fetch that started
// before it never repopulates the cache.
type queryCache struct {
	group singleflight.Group

	mu     sync.Mutex
	values map[string]any
	gen    uint64
}

func newQueryCache() *queryCache {
	return &queryCache{values: make(map[string]any)}
}

func (q *queryCache) peek(key string) (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.values[key]
	return v, ok
}

func (q *queryCache) load(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	q.mu.Lock()
	if v, ok := q.values[key]; ok {
		q.mu.Unlock()
		return v, nil
	}
	gen := q.gen
	q.mu.Unlock()

	// The shared fetch outlives any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := q.group.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		q.mu.Lock()
		if q.gen == gen {
			q.values[key] = v
		}
		q.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (q *queryCache) invalidate(key string) {
	q.mu.Lock()
	q.gen++
	delete(q.values, key)
	q.mu.Unlock()
}

func (q *queryCache) reset() {
	q.mu.Lock()
	q.gen++
	q.values = make(map[string]any)
	q.mu.Unlock()
}
