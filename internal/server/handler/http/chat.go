package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/avoronova/FinSync/internal/service"
	"github.com/go-chi/chi/v5"
)

// ChatService defines the conversation operations required by the
// ChatHandler.
type ChatService interface {
	Sessions(ctx context.Context, owner service.Owner) ([]service.Session, error)
	CreateSession(ctx context.Context, owner service.Owner) (service.Session, error)
	EnsureCurrent(ctx context.Context, owner service.Owner) (service.Session, error)
	RenameSession(ctx context.Context, owner service.Owner, id, title string) error
	DeleteSession(ctx context.Context, owner service.Owner, id string) (service.Session, error)
	Messages(ctx context.Context, owner service.Owner, sessionID string) ([]service.Message, error)
	SendMessage(ctx context.Context, owner service.Owner, sessionID, content string) (*service.SendResult, error)
}

// ChatHandler handles HTTP requests for chat sessions and messages.
type ChatHandler struct {
	Chat ChatService
}

// ListSessions handles GET /api/chat/sessions.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Chat.Sessions(r.Context(), ownerFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []service.Session{}
	}
	writeJSON(w, sessions)
}

// CreateSession handles POST /api/chat/sessions.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Chat.CreateSession(r.Context(), ownerFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, sess)
}

// CurrentSession handles GET /api/chat/current: it returns the session
// the UI should show, creating one when the user has none.
func (h *ChatHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Chat.EnsureCurrent(r.Context(), ownerFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, sess)
}

// RenameSession handles PUT /api/chat/sessions/{id}.
func (h *ChatHandler) RenameSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Chat.RenameSession(r.Context(), ownerFromRequest(r), chi.URLParam(r, "id"), req.Title); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession handles DELETE /api/chat/sessions/{id} and responds
// with the replacement session, so the client always has a current one.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	replacement, err := h.Chat.DeleteSession(r.Context(), ownerFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, replacement)
}

// ListMessages handles GET /api/chat/sessions/{id}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Chat.Messages(r.Context(), ownerFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, msgs)
}

// SendMessage handles POST /api/chat/sessions/{id}/messages.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	res, err := h.Chat.SendMessage(r.Context(), ownerFromRequest(r), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}
