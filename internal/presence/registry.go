// Package presence maps a user to the single connection handle believed to
// be live for them. It is a cache of belief, not proof: callers verify the
// handle against the connection table before using it.
package presence

import (
	"context"
	"sync"
)

type Registry interface {
	// Register upserts the user's handle; last writer wins.
	Register(ctx context.Context, userID, handle string) error
	// Lookup returns ok=false when the user is believed offline.
	Lookup(ctx context.Context, userID string) (handle string, ok bool, err error)
	// Unregister removes the user's record. Absent users are a no-op.
	Unregister(ctx context.Context, userID string) error
	// Release removes the record only while it still points at handle, so
	// a closing or stale connection never evicts a newer registration.
	Release(ctx context.Context, userID, handle string) error
}

type MemoryRegistry struct {
	mu      sync.RWMutex
	handles map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{handles: map[string]string{}}
}

func (r *MemoryRegistry) Register(_ context.Context, userID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[userID] = handle
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, userID string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[userID]
	return h, ok, nil
}

func (r *MemoryRegistry) Unregister(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, userID)
	return nil
}

func (r *MemoryRegistry) Release(_ context.Context, userID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[userID] == handle {
		delete(r.handles, userID)
	}
	return nil
}
