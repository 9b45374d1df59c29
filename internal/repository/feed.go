package repository

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// notifyChannel is the Postgres NOTIFY channel raised by the documents
// table trigger.
const notifyChannel = "document_changes"

// Change describes one document mutation delivered over the feed.
// A Resync change carries no document identity and tells subscribers the
// underlying connection was re-established, so any snapshot they hold
// may be stale.
type Change struct {
	Collection string `json:"collection"`
	OwnerID    string `json:"owner_id"`
	ID         string `json:"id"`
	Op         string `json:"op"`
	Resync     bool   `json:"-"`
}

// Feed fans LISTEN/NOTIFY events out to in-process subscribers.
type Feed struct {
	mu   sync.Mutex
	subs map[int]chan<- Change
	next int
	log  *zap.Logger
}

func newFeed(log *zap.Logger) *Feed {
	return &Feed{subs: make(map[int]chan<- Change), log: log}
}

// ConnectFeed opens a dedicated LISTEN connection on the given DSN and
// starts delivering document changes. The pq listener reconnects on its
// own; each reconnect surfaces as a Resync change.
func ConnectFeed(dsn string, log *zap.Logger) (*Feed, error) {
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("change feed listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		return nil, err
	}
	f := newFeed(log)
	go f.consume(listener.Notify)
	return f, nil
}

// Register adds a subscriber channel and returns its unregister func.
// Delivery to a full channel drops the change for that subscriber;
// subscribers treat the feed as a hint and re-query snapshots anyway.
func (f *Feed) Register(ch chan<- Change) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = ch
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *Feed) consume(notify <-chan *pq.Notification) {
	for n := range notify {
		if n == nil {
			// pq delivers nil after a connection loss; force a resync.
			f.broadcast(Change{Resync: true})
			continue
		}
		var ch Change
		if err := json.Unmarshal([]byte(n.Extra), &ch); err != nil {
			f.log.Warn("malformed change notification", zap.String("payload", n.Extra), zap.Error(err))
			continue
		}
		f.broadcast(ch)
	}
}

func (f *Feed) broadcast(ch Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case sub <- ch:
		default:
		}
	}
}
