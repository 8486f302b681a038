// Package store is the client view of the real-time document store.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/studynote/internal/client/client"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/logging"
	"github.com/dmitrijs2005/studynote/internal/rpc"
)

// Unsubscribe stops a listener. Calling it more than once is a no-op, and no
// callback runs after it returns.
type Unsubscribe func()

// Store is the document store contract the notes layer depends on.
type Store interface {
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// Listen delivers the full matching result set now and after every
	// change. fn must not call the returned Unsubscribe.
	Listen(collection string, filter docstore.Filter, fn func([]docstore.Document)) (Unsubscribe, error)
}

type snapshots interface {
	Next() ([]docstore.Document, error)
}

type GRPCStore struct {
	client *client.GRPCClient
	open   func(ctx context.Context, q rpc.Query) (snapshots, error)
	logger logging.Logger
}

func NewGRPCStore(c *client.GRPCClient, l logging.Logger) *GRPCStore {
	return &GRPCStore{
		client: c,
		open: func(ctx context.Context, q rpc.Query) (snapshots, error) {
			lq, err := c.OpenLiveQuery(ctx, q)
			if err != nil {
				return nil, err
			}
			return lq, nil
		},
		logger: l.With("module", "store"),
	}
}

func (s *GRPCStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	return s.client.AddDocument(ctx, collection, fields)
}

func (s *GRPCStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.client.UpdateDocument(ctx, collection, id, fields)
}

func (s *GRPCStore) Delete(ctx context.Context, collection, id string) error {
	return s.client.DeleteDocument(ctx, collection, id)
}

// Listen opens a live query and pumps its snapshots into fn on a dedicated
// goroutine until unsubscribed or the stream fails.
func (s *GRPCStore) Listen(collection string, filter docstore.Filter, fn func([]docstore.Document)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(context.Background())

	snaps, err := s.open(ctx, rpc.Query{Collection: collection, Filter: filter})
	if err != nil {
		cancel()
		return nil, err
	}

	l := &listener{fn: fn, cancel: cancel}
	go func() {
		for {
			docs, err := snaps.Next()
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					s.logger.Warn(ctx, "live query ended", "collection", collection, "error", err)
				}
				return
			}
			l.deliver(docs)
		}
	}()

	return l.stop, nil
}

type listener struct {
	mu      sync.Mutex
	stopped bool
	fn      func([]docstore.Document)
	cancel  context.CancelFunc
	once    sync.Once
}

func (l *listener) deliver(docs []docstore.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.fn(docs)
}

// stop waits for a running callback to finish.
func (l *listener) stop() {
	l.once.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
	})
}
