package room

import (
	"sync"
)

// Registry maps room keys to their single room instance. Rooms are created
// on first reference and are never evicted.
type Registry[K comparable, R any] struct {
	mu      sync.RWMutex
	rooms   map[K]R
	factory func(K) R
}

// NewRegistry creates a registry that builds missing rooms with factory
func NewRegistry[K comparable, R any](factory func(K) R) *Registry[K, R] {
	return &Registry[K, R]{
		rooms:   make(map[K]R),
		factory: factory,
	}
}

// Resolve returns the room for key, creating it if needed. Concurrent
// callers with the same key always receive the same instance.
func (r *Registry[K, R]) Resolve(key K) R {
	r.mu.RLock()
	room, ok := r.rooms[key]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[key]; ok {
		return room
	}
	room = r.factory(key)
	r.rooms[key] = room
	return room
}

// Lookup returns the room for key without creating one
func (r *Registry[K, R]) Lookup(key K) (R, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[key]
	return room, ok
}

// Len returns the number of resident rooms
func (r *Registry[K, R]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Each calls fn for a snapshot of the resident rooms
func (r *Registry[K, R]) Each(fn func(K, R)) {
	r.mu.RLock()
	snapshot := make(map[K]R, len(r.rooms))
	for k, v := range r.rooms {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for k, v := range snapshot {
		fn(k, v)
	}
}

// ChatRegistry holds chat rooms by room id
type ChatRegistry = Registry[string, *ChatRoom]

// CallRegistry holds call rooms by call id
type CallRegistry = Registry[int64, *CallRoom]

// NewChatRegistry creates the chat room registry
func NewChatRegistry(opts Options) *ChatRegistry {
	return NewRegistry(func(roomID string) *ChatRoom {
		return NewChatRoom(roomID, opts)
	})
}

// NewCallRegistry creates the call room registry
func NewCallRegistry(opts Options) *CallRegistry {
	return NewRegistry(func(callID int64) *CallRoom {
		return NewCallRoom(callID, opts)
	})
}
