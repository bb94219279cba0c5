package store

import (
	"context"
	"errors"
	"sync"

	"github.com/agentplexus/omnivoice-intake/faq"
)

// Verify interface compliance at compile time.
var (
	_ ContextCache = (*MemoryContextCache)(nil)
	_ ContextCache = (*RedisContextCache)(nil)
)

// ErrNotFound is returned when no context is cached for a call.
var ErrNotFound = errors.New("context not found")

// ErrInvalidID is returned for an empty call identifier.
var ErrInvalidID = errors.New("invalid call id")

// ContextCache holds dashboard context fetched at answer time until the
// media session for the call picks it up, or until the call ends.
type ContextCache interface {
	Put(ctx context.Context, callID string, c *faq.Context) error
	// Get returns ErrNotFound when nothing is cached for callID.
	Get(ctx context.Context, callID string) (*faq.Context, error)
	Delete(ctx context.Context, callID string) error
}

// MemoryContextCache is an in-process ContextCache.
type MemoryContextCache struct {
	mu    sync.RWMutex
	items map[string]*faq.Context
}

// NewMemoryContextCache creates an empty in-memory cache.
func NewMemoryContextCache() *MemoryContextCache {
	return &MemoryContextCache{items: make(map[string]*faq.Context)}
}

// Put stores c for callID.
func (m *MemoryContextCache) Put(_ context.Context, callID string, c *faq.Context) error {
	if callID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[callID] = c
	return nil
}

// Get returns the context cached for callID.
func (m *MemoryContextCache) Get(_ context.Context, callID string) (*faq.Context, error) {
	if callID == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Delete removes the context for callID. Deleting a missing entry is not an error.
func (m *MemoryContextCache) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, callID)
	return nil
}

// Len returns the number of cached contexts.
func (m *MemoryContextCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
