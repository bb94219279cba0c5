// Package store provides the keyed per-call registries and the dashboard
// context cache used by the call session engine.
package store

import (
	"sort"
	"sync"
)

// Registry is a concurrency-safe key/value registry. The engine keeps one
// per kind of per-call state, keyed by call identifier.
type Registry[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewRegistry creates an empty registry.
func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{items: make(map[string]V)}
}

// Get returns the value stored under key.
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Put stores v under key, replacing any previous value.
func (r *Registry[V]) Put(key string, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = v
}

// PutIfAbsent stores v unless key is already present. It returns the value
// held under key afterwards and whether v was stored.
func (r *Registry[V]) PutIfAbsent(key string, v V) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.items[key]; ok {
		return cur, false
	}
	r.items[key] = v
	return v, true
}

// Delete removes key and returns the removed value. Only one of several
// concurrent callers observes ok == true.
func (r *Registry[V]) Delete(key string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[key]
	if ok {
		delete(r.items, key)
	}
	return v, ok
}

// DeleteFunc removes every entry for which drop returns true and reports
// how many were removed.
func (r *Registry[V]) DeleteFunc(drop func(key string, v V) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, v := range r.items {
		if drop(k, v) {
			delete(r.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Keys returns the sorted keys.
func (r *Registry[V]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
