// Package realtime keeps live snapshots flowing from the document store
// to subscribers. A subscription re-queries the full snapshot of one
// (collection, owner) scope on every matching change-feed event and hands
// it to a callback; query failures degrade to an empty snapshot instead
// of propagating, since listener errors are frequently transient.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/avoronova/FinSync/internal/models"
	"github.com/avoronova/FinSync/internal/repository"
	"go.uber.org/zap"
)

// SnapshotReader supplies full current snapshots per scope.
type SnapshotReader interface {
	ListByOwner(ctx context.Context, collection, owner string) ([]models.Document, error)
	ListByOwnerField(ctx context.Context, collection, owner, field, value string) ([]models.Document, error)
	ListPublic(ctx context.Context, collection string) ([]models.Document, error)
}

// ChangeFeed delivers document change events to registered channels.
type ChangeFeed interface {
	Register(ch chan<- repository.Change) func()
}

// Callback receives the full current snapshot on every delivery.
type Callback func(docs []models.Document)

// Option narrows a subscription's scope.
type Option func(*subKey)

// WithField restricts the snapshot to documents whose payload field
// equals value (the secondary filter, e.g. chat messages by session id).
func WithField(field, value string) Option {
	return func(k *subKey) {
		k.field = field
		k.value = value
	}
}

type subKey struct {
	collection string
	owner      string
	field      string
	value      string
}

// Manager owns every active subscription, keyed by scope. Subscribing an
// already-subscribed scope disposes the previous subscription first, so
// a stale owner can never keep a listener alive.
type Manager struct {
	reader SnapshotReader
	feed   ChangeFeed
	log    *zap.Logger

	mu   sync.Mutex
	subs map[subKey]*Subscription
}

// NewManager constructs a Manager over the given reader and feed.
func NewManager(reader SnapshotReader, feed ChangeFeed, log *zap.Logger) *Manager {
	return &Manager{
		reader: reader,
		feed:   feed,
		log:    log,
		subs:   make(map[subKey]*Subscription),
	}
}

// Subscribe opens a live subscription for one collection scoped to the
// given owner (empty owner means a flat public collection) and starts
// delivering snapshots to cb. The first delivery happens immediately.
func (m *Manager) Subscribe(owner, collection string, cb Callback, opts ...Option) *Subscription {
	k := subKey{collection: collection, owner: owner}
	for _, opt := range opts {
		opt(&k)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		key:    k,
		cb:     cb,
		cancel: cancel,
		gate:   newReadyGate(),
	}
	sub.onDispose = func() { m.remove(k, sub) }

	m.mu.Lock()
	if prev, ok := m.subs[k]; ok {
		go prev.Dispose()
	}
	m.subs[k] = sub
	m.mu.Unlock()

	go sub.run(ctx, m.reader, m.feed, m.log)
	return sub
}

// DisposeOwner tears down every subscription belonging to one owner.
// Called on owner change or when the owner's last client disconnects.
func (m *Manager) DisposeOwner(owner string) {
	m.mu.Lock()
	var stale []*Subscription
	for k, sub := range m.subs {
		if k.owner == owner {
			stale = append(stale, sub)
		}
	}
	m.mu.Unlock()
	for _, sub := range stale {
		sub.Dispose()
	}
}

func (m *Manager) remove(k subKey, sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[k] == sub {
		delete(m.subs, k)
	}
}

// Subscription is one live (collection, owner) scope. Dispose is
// idempotent and is the only cancellation primitive.
type Subscription struct {
	key       subKey
	cb        Callback
	cancel    context.CancelFunc
	gate      *readyGate
	once      sync.Once
	onDispose func()
}

// Dispose stops deliveries. Safe to call more than once.
func (s *Subscription) Dispose() {
	s.once.Do(func() {
		s.cancel()
		if s.onDispose != nil {
			s.onDispose()
		}
	})
}

// WaitReady blocks until the first snapshot delivery or until timeout,
// whichever comes first. Both paths settle the same gate exactly once;
// it reports whether a real delivery happened. A timed-out subscription
// keeps running and will deliver when the feed unsticks.
func (s *Subscription) WaitReady(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.gate.done:
	case <-timer.C:
		s.gate.settle(false)
	}
	return s.gate.loaded
}

func (s *Subscription) run(ctx context.Context, reader SnapshotReader, feed ChangeFeed, log *zap.Logger) {
	events := make(chan repository.Change, 16)
	unregister := feed.Register(events)
	defer unregister()

	s.deliver(ctx, reader, log)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ctx.Err() != nil {
				return
			}
			if s.matches(ev) {
				s.deliver(ctx, reader, log)
			}
		}
	}
}

func (s *Subscription) matches(ev repository.Change) bool {
	if ev.Resync {
		return true
	}
	if ev.Collection != s.key.collection {
		return false
	}
	return s.key.owner == "" || ev.OwnerID == s.key.owner
}

func (s *Subscription) deliver(ctx context.Context, reader SnapshotReader, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	docs, err := s.snapshot(ctx, reader)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("snapshot query failed, delivering empty snapshot",
			zap.String("collection", s.key.collection),
			zap.String("owner", s.key.owner),
			zap.Error(err))
		docs = nil
	}
	s.cb(docs)
	s.gate.settle(true)
}

func (s *Subscription) snapshot(ctx context.Context, reader SnapshotReader) ([]models.Document, error) {
	switch {
	case s.key.owner == "":
		return reader.ListPublic(ctx, s.key.collection)
	case s.key.field != "":
		return reader.ListByOwnerField(ctx, s.key.collection, s.key.owner, s.key.field, s.key.value)
	default:
		return reader.ListByOwner(ctx, s.key.collection, s.key.owner)
	}
}

// readyGate is settled exactly once, by the first delivery or by the
// loading timeout, whichever wins the race.
type readyGate struct {
	once   sync.Once
	done   chan struct{}
	loaded bool
}

func newReadyGate() *readyGate {
	return &readyGate{done: make(chan struct{})}
}

func (g *readyGate) settle(loaded bool) {
	g.once.Do(func() {
		g.loaded = loaded
		close(g.done)
	})
}
