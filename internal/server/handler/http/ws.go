package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/avoronova/FinSync/internal/middleware"
	"github.com/avoronova/FinSync/internal/models"
	"github.com/avoronova/FinSync/internal/realtime"
	"github.com/avoronova/FinSync/internal/store"
	"github.com/olahol/melody"
	"go.uber.org/zap"
)

const sessionOwnerKey = "owner"

// ownerCollections are pushed to every connected client of an owner.
var ownerCollections = []string{
	models.CollectionExpenses,
	models.CollectionBudgets,
	models.CollectionRecurringTemplates,
	models.CollectionCategories,
	models.CollectionPeople,
	models.CollectionBudgetTemplates,
	models.CollectionChatSessions,
}

// publicCollections are pushed to every connected client regardless of
// owner.
var publicCollections = []string{
	models.CollectionPublicCategories,
	models.CollectionPublicPeople,
	models.CollectionPublicBudgetTmpls,
}

// snapshotFrame is the wire format pushed to websocket clients: a full
// replacement snapshot of one collection.
type snapshotFrame struct {
	Collection string            `json:"collection"`
	Items      []models.Document `json:"items"`
}

// followRequest is the only message clients send: which chat session's
// messages they want streamed.
type followRequest struct {
	SessionID string `json:"sessionId"`
}

// WSHandler pushes live collection snapshots to websocket clients.
//
// Each owner's collections are subscribed once, on the first connection
// for that owner, and released when the last connection for that owner
// closes. Public mirror collections are subscribed once for the whole
// process and broadcast to everyone.
type WSHandler struct {
	manager     *realtime.Manager
	store       *store.EntityStore
	m           *melody.Melody
	log         *zap.Logger
	loadTimeout time.Duration

	mu       sync.Mutex
	refs     map[string]int
	chatSubs map[string]*realtime.Subscription

	publicOnce sync.Once
}

// NewWSHandler builds the websocket handler and wires its melody
// lifecycle callbacks.
func NewWSHandler(manager *realtime.Manager, st *store.EntityStore, loadTimeout time.Duration, log *zap.Logger) *WSHandler {
	h := &WSHandler{
		manager:     manager,
		store:       st,
		m:           melody.New(),
		log:         log,
		loadTimeout: loadTimeout,
		refs:        make(map[string]int),
		chatSubs:    make(map[string]*realtime.Subscription),
	}
	h.m.HandleConnect(h.onConnect)
	h.m.HandleDisconnect(h.onDisconnect)
	h.m.HandleMessage(h.onMessage)
	return h
}

// Serve upgrades GET /ws. The owner comes from the auth middleware.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetUserIDFromContext(r.Context())
	if owner == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if err := h.m.HandleRequestWithKeys(w, r, map[string]any{sessionOwnerKey: owner}); err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
	}
}

func sessionOwner(s *melody.Session) string {
	v, ok := s.Get(sessionOwnerKey)
	if !ok {
		return ""
	}
	owner, _ := v.(string)
	return owner
}

func (h *WSHandler) onConnect(s *melody.Session) {
	h.publicOnce.Do(h.subscribePublic)

	owner := sessionOwner(s)
	h.mu.Lock()
	h.refs[owner]++
	first := h.refs[owner] == 1
	h.mu.Unlock()

	if first {
		h.subscribeOwner(owner)
		return
	}
	// Later connections replay what the store already holds.
	for _, collection := range ownerCollections {
		h.sendFrame(s, collection, h.store.Snapshot(owner, collection))
	}
	for _, collection := range publicCollections {
		h.sendFrame(s, collection, h.store.Snapshot("", collection))
	}
}

func (h *WSHandler) onDisconnect(s *melody.Session) {
	owner := sessionOwner(s)
	h.mu.Lock()
	h.refs[owner]--
	last := h.refs[owner] <= 0
	if last {
		delete(h.refs, owner)
		delete(h.chatSubs, owner)
	}
	h.mu.Unlock()

	if last {
		h.manager.DisposeOwner(owner)
		h.store.Drop(owner)
	}
}

// onMessage switches the owner's chat message stream to the requested
// session, replacing any previous one.
func (h *WSHandler) onMessage(s *melody.Session, msg []byte) {
	var req followRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.SessionID == "" {
		return
	}
	owner := sessionOwner(s)

	sub := h.manager.Subscribe(owner, models.CollectionChatMessages, func(docs []models.Document) {
		store.SortMessagesByTimestamp(docs)
		h.store.Apply(owner, models.CollectionChatMessages, docs)
		h.broadcastOwner(owner, models.CollectionChatMessages, docs)
	}, realtime.WithField("sessionId", req.SessionID))

	h.mu.Lock()
	prev := h.chatSubs[owner]
	h.chatSubs[owner] = sub
	h.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}

	if !sub.WaitReady(h.loadTimeout) {
		h.log.Warn("chat history load timed out, proceeding with empty view",
			zap.String("owner", owner), zap.String("session", req.SessionID))
	}
}

func (h *WSHandler) subscribeOwner(owner string) {
	for _, collection := range ownerCollections {
		collection := collection
		h.manager.Subscribe(owner, collection, func(docs []models.Document) {
			h.store.Apply(owner, collection, docs)
			h.broadcastOwner(owner, collection, docs)
		})
	}
}

func (h *WSHandler) subscribePublic() {
	for _, collection := range publicCollections {
		collection := collection
		h.manager.Subscribe("", collection, func(docs []models.Document) {
			h.store.Apply("", collection, docs)
			h.broadcastAll(collection, docs)
		})
	}
}

func (h *WSHandler) sendFrame(s *melody.Session, collection string, docs []models.Document) {
	data, err := encodeFrame(collection, docs)
	if err != nil {
		h.log.Warn("encode snapshot frame", zap.Error(err))
		return
	}
	if err := s.Write(data); err != nil {
		h.log.Warn("write snapshot frame", zap.Error(err))
	}
}

func (h *WSHandler) broadcastOwner(owner, collection string, docs []models.Document) {
	data, err := encodeFrame(collection, docs)
	if err != nil {
		h.log.Warn("encode snapshot frame", zap.Error(err))
		return
	}
	err = h.m.BroadcastFilter(data, func(s *melody.Session) bool {
		return sessionOwner(s) == owner
	})
	if err != nil {
		h.log.Warn("broadcast snapshot", zap.String("collection", collection), zap.Error(err))
	}
}

func (h *WSHandler) broadcastAll(collection string, docs []models.Document) {
	data, err := encodeFrame(collection, docs)
	if err != nil {
		h.log.Warn("encode snapshot frame", zap.Error(err))
		return
	}
	if err := h.m.Broadcast(data); err != nil {
		h.log.Warn("broadcast snapshot", zap.String("collection", collection), zap.Error(err))
	}
}

func encodeFrame(collection string, docs []models.Document) ([]byte, error) {
	if docs == nil {
		docs = []models.Document{}
	}
	return json.Marshal(snapshotFrame{Collection: collection, Items: docs})
}
