// Package livequery fans document changes out to open live queries.
//
// Writers publish a Change inside their transaction and PostgreSQL delivers
// it on commit. A Change only names the collection and the owner key live
// queries filter on; subscribers whose filter matches are woken and re-run
// their query, so a wake-up never carries data and several wake-ups
// collapse into one.
package livequery

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/studynote/internal/docstore"
)

// Change describes a committed write.
type Change struct {
	Collection string            `json:"collection"`
	Keys       map[string]string `json:"keys"`
}

// Publisher announces committed changes.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Subscription is a registered live query.
type Subscription struct {
	filter docstore.Filter
	wake   chan struct{}
}

// C is signalled whenever a matching change is published. Signals coalesce.
func (s *Subscription) C() <-chan struct{} {
	return s.wake
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Hub is an in-process Publisher and subscription registry.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a live query. The returned cancel func may be called
// any number of times.
func (h *Hub) Subscribe(collection string, filter docstore.Filter) (*Subscription, func()) {
	sub := &Subscription{filter: filter, wake: make(chan struct{}, 1)}

	h.mu.Lock()
	set, ok := h.subs[collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[collection] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[collection], sub)
			if len(h.subs[collection]) == 0 {
				delete(h.subs, collection)
			}
		})
	}
}

// Publish wakes every subscription on change.Collection whose filter
// matches change.Keys. It never blocks.
func (h *Hub) Publish(_ context.Context, change Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[change.Collection] {
		if v, ok := change.Keys[sub.filter.Field]; ok && v == sub.filter.Value {
			sub.signal()
		}
	}
	return nil
}

// WakeAll signals every open subscription so each re-runs its query.
func (h *Hub) WakeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.subs {
		for sub := range set {
			sub.signal()
		}
	}
}

// Len reports the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
