// Package store holds the current entity snapshots per owner. It is a
// pure state container: snapshots arrive from realtime subscriptions and
// are republished unmodified; the store has no write path of its own.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/avoronova/FinSync/internal/models"
)

// EntityStore caches the latest snapshot of each (owner, collection)
// scope. Readers get copies; mutating a returned slice never affects
// the cached state.
type EntityStore struct {
	mu    sync.RWMutex
	snaps map[string]map[string][]models.Document
}

// New returns an empty EntityStore.
func New() *EntityStore {
	return &EntityStore{snaps: make(map[string]map[string][]models.Document)}
}

// Apply replaces the cached snapshot for the scope. Intended to be used
// as a subscription callback.
func (s *EntityStore) Apply(owner, collection string, docs []models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byColl, ok := s.snaps[owner]
	if !ok {
		byColl = make(map[string][]models.Document)
		s.snaps[owner] = byColl
	}
	byColl[collection] = docs
}

// Snapshot returns a copy of the current snapshot for the scope, or nil
// when nothing has been delivered yet.
func (s *EntityStore) Snapshot(owner, collection string) []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, ok := s.snaps[owner][collection]
	if !ok {
		return nil
	}
	out := make([]models.Document, len(docs))
	copy(out, docs)
	return out
}

// Drop forgets every snapshot cached for the owner. Called when the
// owner changes or their last client disconnects.
func (s *EntityStore) Drop(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, owner)
}

// SortMessagesByTimestamp orders chat message documents by their
// timestamp payload field, oldest first. Messages are fetched without a
// server-side order-by (that would require a composite index), so the
// order is restored here, as a pure sort over the snapshot.
func SortMessagesByTimestamp(docs []models.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return messageTime(docs[i]).Before(messageTime(docs[j]))
	})
}

func messageTime(doc models.Document) time.Time {
	raw, _ := doc.Data["timestamp"].(string)
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
