package vkdriver

import (
	"maps"
	"slices"
	"sync"
)

// table maps the integer handles of the vulkan.Driver boundary to driver
// objects. Handle 0 is never issued and looks up as the zero T, which is
// VK_NULL_HANDLE for every vulkan-go handle type.
type table[T any] struct {
	mu   sync.Mutex
	next uint64
	objs map[uint64]T
}

func newTable[T any]() *table[T] {
	return &table[T]{objs: make(map[uint64]T)}
}

func (t *table[T]) put(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.objs[t.next] = v
	return t.next
}

func (t *table[T]) get(h uint64) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objs[h]
}

// take removes h and returns its object.
func (t *table[T]) take(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objs[h]
	delete(t.objs, h)
	return v, ok
}

// drain removes every object, oldest handle first.
func (t *table[T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := slices.Sorted(maps.Keys(t.objs))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.objs[k])
	}
	clear(t.objs)
	return out
}

func (t *table[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objs)
}

// getAll resolves hs in order.
func getAll[H ~uint64, T any](t *table[T], hs []H) []T {
	out := make([]T, len(hs))
	for i, h := range hs {
		out[i] = t.get(uint64(h))
	}
	return out
}
