package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
)

// Memory is an in-process Store. Listeners are notified synchronously,
// before the mutating call returns.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	subs        map[int]*memSubscription
	nextSub     int
	now         func() time.Time
	last        time.Time
}

type memCollection struct {
	order []string
	docs  map[string]map[string]any
}

type memSubscription struct {
	collection string
	filter     docstore.Filter
	l          *listener
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]*memCollection),
		subs:        make(map[int]*memSubscription),
		now:         time.Now,
	}
}

// clock never returns the same instant twice.
func (m *Memory) clock() time.Time {
	t := m.now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Nanosecond)
	}
	m.last = t
	return t
}

func (m *Memory) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	m.mu.Lock()
	doc := maps.Clone(fields)
	docstore.ResolveServerTimestamps(doc, m.clock())
	id := uuid.NewString()
	c := m.collection(collection)
	c.order = append(c.order, id)
	c.docs[id] = doc
	pending := m.pendingLocked(collection, nil, doc)
	m.mu.Unlock()

	pending.deliver()
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	doc, ok := m.collection(collection).docs[id]
	if !ok {
		m.mu.Unlock()
		return common.ErrorNotFound
	}
	before := maps.Clone(doc)
	maps.Copy(doc, fields)
	docstore.ResolveServerTimestamps(doc, m.clock())
	pending := m.pendingLocked(collection, before, doc)
	m.mu.Unlock()

	pending.deliver()
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	c := m.collection(collection)
	before, ok := c.docs[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	pending := m.pendingLocked(collection, before, nil)
	m.mu.Unlock()

	pending.deliver()
	return nil
}

func (m *Memory) Listen(collection string, filter docstore.Filter, fn func([]docstore.Document)) (Unsubscribe, error) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	sub := &memSubscription{collection: collection, filter: filter, l: &listener{fn: fn}}
	m.subs[id] = sub
	initial := m.queryLocked(collection, filter)
	m.mu.Unlock()

	sub.l.deliver(initial)

	return func() {
		sub.l.stop()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}, nil
}

// Len reports the number of active listeners.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) queryLocked(collection string, filter docstore.Filter) []docstore.Document {
	c := m.collection(collection)
	out := make([]docstore.Document, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		if filter.Matches(doc) {
			out = append(out, docstore.Document{ID: id, Fields: maps.Clone(doc)})
		}
	}
	return out
}

type delivery struct {
	l    *listener
	docs []docstore.Document
}

type pendingDelivery []delivery

func (p pendingDelivery) deliver() {
	for _, d := range p {
		d.l.deliver(d.docs)
	}
}

// pendingLocked snapshots every listener whose filter matched the document
// before or after the change.
func (m *Memory) pendingLocked(collection string, before, after map[string]any) pendingDelivery {
	var p pendingDelivery
	for _, sub := range m.subs {
		if sub.collection != collection {
			continue
		}
		if !sub.filter.Matches(before) && !sub.filter.Matches(after) {
			continue
		}
		p = append(p, delivery{l: sub.l, docs: m.queryLocked(collection, sub.filter)})
	}
	return p
}
