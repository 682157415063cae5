package handler

import (
	"sync"

	"github.com/devrev/securegpx/internal/store"
)

// ChangeListener is called on the queue worker after a task changed or
// (re)initialized the store. It may read the store but must not block.
type ChangeListener func(s *store.Store)

// SaveListener is called on the queue worker after a successful save
type SaveListener func(s *store.Store)

// Subscription identifies a registered listener
type Subscription uint64

type registry[L any] struct {
	mu      sync.Mutex
	next    Subscription
	entries []entry[L]
}

type entry[L any] struct {
	id       Subscription
	listener L
}

func (r *registry[L]) add(l L) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries = append(r.entries, entry[L]{id: r.next, listener: l})
	return r.next
}

func (r *registry[L]) remove(id Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the listeners in registration order
func (r *registry[L]) snapshot() []L {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]L, 0, len(r.entries))
	for _, e := range r.entries {
		res = append(res, e.listener)
	}
	return res
}

// drain returns the listeners and forgets them
func (r *registry[L]) drain() []L {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]L, 0, len(r.entries))
	for _, e := range r.entries {
		res = append(res, e.listener)
	}
	r.entries = nil
	return res
}

func (r *registry[L]) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
