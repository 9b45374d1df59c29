package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/avoronova/FinSync/internal/service"
)

// fakeChat implements ChatService with canned responses.
type fakeChat struct {
	sessions    []service.Session
	current     service.Session
	replacement service.Session
	messages    []service.Message
	sendResult  *service.SendResult
	err         error

	renamed   map[string]string
	deletedID string
	sentTo    string
	sentText  string
}

func (f *fakeChat) Sessions(ctx context.Context, owner service.Owner) ([]service.Session, error) {
	return f.sessions, f.err
}

func (f *fakeChat) CreateSession(ctx context.Context, owner service.Owner) (service.Session, error) {
	return f.current, f.err
}

func (f *fakeChat) EnsureCurrent(ctx context.Context, owner service.Owner) (service.Session, error) {
	return f.current, f.err
}

func (f *fakeChat) RenameSession(ctx context.Context, owner service.Owner, id, title string) error {
	if f.renamed == nil {
		f.renamed = make(map[string]string)
	}
	f.renamed[id] = title
	return f.err
}

func (f *fakeChat) DeleteSession(ctx context.Context, owner service.Owner, id string) (service.Session, error) {
	f.deletedID = id
	return f.replacement, f.err
}

func (f *fakeChat) Messages(ctx context.Context, owner service.Owner, sessionID string) ([]service.Message, error) {
	return f.messages, f.err
}

func (f *fakeChat) SendMessage(ctx context.Context, owner service.Owner, sessionID, content string) (*service.SendResult, error) {
	f.sentTo = sessionID
	f.sentText = content
	return f.sendResult, f.err
}

func chatOnlyRouter(t *testing.T, chat *fakeChat) http.Handler {
	t.Helper()
	return newTestRouterWithChat(t, newDocStore(), chat)
}

func TestChatHandler_DeleteReturnsReplacement(t *testing.T) {
	chat := &fakeChat{replacement: service.Session{ID: "s2"}}
	router := chatOnlyRouter(t, chat)
	auth := bearer(t, "u1", "Alice")

	rec := doRequest(t, router, "DELETE", "/api/chat/sessions/s1", auth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if chat.deletedID != "s1" {
		t.Fatalf("expected delete of s1, got %q", chat.deletedID)
	}
	var resp service.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "s2" {
		t.Fatalf("expected replacement session s2, got %q", resp.ID)
	}
}

func TestChatHandler_Rename(t *testing.T) {
	chat := &fakeChat{}
	router := chatOnlyRouter(t, chat)
	auth := bearer(t, "u1", "Alice")

	rec := doRequest(t, router, "PUT", "/api/chat/sessions/s1", auth, `{"title":"Groceries"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if chat.renamed["s1"] != "Groceries" {
		t.Fatalf("expected rename to Groceries, got %q", chat.renamed["s1"])
	}
}

func TestChatHandler_RenameInvalidTitle(t *testing.T) {
	chat := &fakeChat{err: service.ErrInvalid}
	router := chatOnlyRouter(t, chat)
	auth := bearer(t, "u1", "Alice")

	rec := doRequest(t, router, "PUT", "/api/chat/sessions/s1", auth, `{"title":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatHandler_SendMessage(t *testing.T) {
	chat := &fakeChat{sendResult: &service.SendResult{
		UserMessage:      service.Message{ID: "m1"},
		AssistantMessage: service.Message{ID: "m2"},
	}}
	router := chatOnlyRouter(t, chat)
	auth := bearer(t, "u1", "Alice")

	rec := doRequest(t, router, "POST", "/api/chat/sessions/s1/messages", auth, `{"content":"how much did I spend?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if chat.sentTo != "s1" || chat.sentText != "how much did I spend?" {
		t.Fatalf("unexpected send call: session=%q content=%q", chat.sentTo, chat.sentText)
	}
	var resp service.SendResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserMessage.ID != "m1" || resp.AssistantMessage.ID != "m2" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChatHandler_SessionNotFound(t *testing.T) {
	chat := &fakeChat{err: service.ErrNotFound}
	router := chatOnlyRouter(t, chat)
	auth := bearer(t, "u1", "Alice")

	rec := doRequest(t, router, "GET", "/api/chat/sessions/missing/messages", auth, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestChatHandler_ServiceFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("boom")}
	router := chatOnlyRouter(t, chat)
	auth := bearer(t, "u1", "Alice")

	rec := doRequest(t, router, "GET", "/api/chat/sessions", auth, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
