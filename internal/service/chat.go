package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avoronova/FinSync/internal/assistant"
	"github.com/avoronova/FinSync/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSessionTitle = "New Chat"

	// WelcomeMessageID marks the synthesized greeting shown for an empty
	// session. The message is never written to the message collection.
	WelcomeMessageID = "welcome"

	welcomeContent = "Hi! I'm your finance assistant. Ask me about your spending and budgets, or tell me to add an expense for you."

	assistantErrorContent = "Sorry, I couldn't process that right now. Please try again in a moment."

	excerptLimit = 100

	// contextExpenseLimit caps how many recent expenses ride along with
	// an assistant request.
	contextExpenseLimit = 20
)

// AssistantClient is the boundary to the external assistant function.
type AssistantClient interface {
	Ask(ctx context.Context, req assistant.Request) (*assistant.Response, error)
}

// Session is a chat session together with its document id.
type Session struct {
	ID string `json:"id"`
	models.ChatSession
}

// Message is a chat message together with its document id.
type Message struct {
	ID string `json:"id"`
	models.ChatMessage
}

// SendResult reports both persisted messages of one send, plus the
// per-action outcomes surfaced to the user as notifications.
type SendResult struct {
	UserMessage      Message               `json:"userMessage"`
	AssistantMessage Message               `json:"assistantMessage"`
	Actions          []models.ActionResult `json:"actions,omitempty"`
}

// ChatService manages session lifecycle and message flow.
type ChatService struct {
	docs      DocumentStore
	assistant AssistantClient
	crud      *CRUDService
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewChatService constructs a ChatService. crud receives the side
// effects the assistant already decided on.
func NewChatService(docs DocumentStore, ac AssistantClient, crud *CRUDService, log *zap.Logger) *ChatService {
	return &ChatService{
		docs:      docs,
		assistant: ac,
		crud:      crud,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Sessions lists the owner's sessions, most recently active first.
func (s *ChatService) Sessions(ctx context.Context, owner Owner) ([]Session, error) {
	if owner.ID == "" {
		return nil, ErrUnauthenticated
	}
	docs, err := s.docs.ListByOwner(ctx, models.CollectionChatSessions, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]Session, 0, len(docs))
	for _, doc := range docs {
		var sess models.ChatSession
		if err := models.Decode(doc.Data, &sess); err != nil {
			s.log.Warn("undecodable session skipped", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		sessions = append(sessions, Session{ID: doc.ID, ChatSession: sess})
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	return sessions, nil
}

// CreateSession creates and returns a fresh session.
func (s *ChatService) CreateSession(ctx context.Context, owner Owner) (Session, error) {
	if owner.ID == "" {
		return Session{}, ErrUnauthenticated
	}
	now := s.now().UTC()
	sess := models.ChatSession{
		Title:          defaultSessionTitle,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	fields, err := models.Fields(sess)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	id := s.newID()
	if _, err := s.docs.Create(ctx, models.Document{
		Collection: models.CollectionChatSessions,
		ID:         id,
		OwnerID:    owner.ID,
		Data:       fields,
	}); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{ID: id, ChatSession: sess}, nil
}

// EnsureCurrent returns the session the UI should show: the most
// recently active one, or a brand-new session when none exist.
func (s *ChatService) EnsureCurrent(ctx context.Context, owner Owner) (Session, error) {
	sessions, err := s.Sessions(ctx, owner)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return s.CreateSession(ctx, owner)
	}
	return sessions[0], nil
}

// RenameSession updates the title only; it does not touch activity
// metadata.
func (s *ChatService) RenameSession(ctx context.Context, owner Owner, id, title string) error {
	if owner.ID == "" {
		return ErrUnauthenticated
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalid)
	}
	if err := s.ownedSession(ctx, owner, id); err != nil {
		return err
	}
	if err := s.docs.Update(ctx, models.CollectionChatSessions, id, map[string]any{"title": title}, nil); err != nil {
		return fmt.Errorf("rename session: %w", asNotFound(err))
	}
	return nil
}

// DeleteSession removes every message of the session, then the session
// record itself, and returns the replacement session so the caller is
// never left without a current one.
func (s *ChatService) DeleteSession(ctx context.Context, owner Owner, id string) (Session, error) {
	if owner.ID == "" {
		return Session{}, ErrUnauthenticated
	}
	if err := s.ownedSession(ctx, owner, id); err != nil {
		return Session{}, err
	}
	// Messages go first; a failure here leaves the session intact rather
	// than orphaning its history.
	if _, err := s.docs.DeleteByOwnerField(ctx, models.CollectionChatMessages, owner.ID, "sessionId", id); err != nil {
		return Session{}, fmt.Errorf("delete session messages: %w", err)
	}
	if err := s.docs.Delete(ctx, models.CollectionChatSessions, id); err != nil {
		return Session{}, fmt.Errorf("delete session: %w", err)
	}
	return s.EnsureCurrent(ctx, owner)
}

// Messages returns the session's history sorted by timestamp. A session
// with no persisted messages yields exactly one synthesized welcome
// message instead of an empty list.
func (s *ChatService) Messages(ctx context.Context, owner Owner, sessionID string) ([]Message, error) {
	if owner.ID == "" {
		return nil, ErrUnauthenticated
	}
	docs, err := s.docs.ListByOwnerField(ctx, models.CollectionChatMessages, owner.ID, "sessionId", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(docs) == 0 {
		return []Message{s.welcome(sessionID)}, nil
	}
	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		var msg models.ChatMessage
		if err := models.Decode(doc.Data, &msg); err != nil {
			s.log.Warn("undecodable message skipped", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		messages = append(messages, Message{ID: doc.ID, ChatMessage: msg})
	}
	// The query skips a server-side order-by; restore order here.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// SendMessage persists the user's message, consults the assistant, and
// persists the reply. An assistant failure still produces a persisted
// assistant message, flagged as an error; the user's message stays
// regardless.
func (s *ChatService) SendMessage(ctx context.Context, owner Owner, sessionID, content string) (*SendResult, error) {
	if owner.ID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalid)
	}
	if err := s.ownedSession(ctx, owner, sessionID); err != nil {
		return nil, err
	}

	userMsg, err := s.persistMessage(ctx, owner, models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.touchSession(ctx, sessionID, &content)

	resp, askErr := s.assistant.Ask(ctx, assistant.Request{
		OwnerID: owner.ID,
		Message: content,
		Context: s.financeContext(ctx, owner),
	})

	assistantMsg := models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Timestamp: s.now().UTC(),
	}
	var actions []models.ActionResult
	if askErr != nil {
		s.log.Error("assistant call failed", zap.String("session", sessionID), zap.Error(askErr))
		assistantMsg.Content = assistantErrorContent
		assistantMsg.IsError = true
	} else {
		assistantMsg.Content = resp.Response
		actions = s.applyActions(ctx, owner, resp.ExecutedActions)
		assistantMsg.Actions = actions
	}

	persisted, err := s.persistMessage(ctx, owner, assistantMsg)
	if err != nil {
		return nil, err
	}
	if askErr != nil {
		// Keep the user's excerpt; the error text never becomes the
		// session's last message.
		s.touchSession(ctx, sessionID, nil)
	} else {
		s.touchSession(ctx, sessionID, &assistantMsg.Content)
	}

	return &SendResult{UserMessage: userMsg, AssistantMessage: persisted, Actions: actions}, nil
}

func (s *ChatService) welcome(sessionID string) Message {
	return Message{
		ID: WelcomeMessageID,
		ChatMessage: models.ChatMessage{
			SessionID: sessionID,
			Role:      models.RoleAssistant,
			Content:   welcomeContent,
		},
	}
}

func (s *ChatService) ownedSession(ctx context.Context, owner Owner, id string) error {
	doc, err := s.docs.Get(ctx, models.CollectionChatSessions, id)
	if err != nil {
		return asNotFound(err)
	}
	if doc.OwnerID != owner.ID {
		return ErrNotFound
	}
	return nil
}

func (s *ChatService) persistMessage(ctx context.Context, owner Owner, msg models.ChatMessage) (Message, error) {
	fields, err := models.Fields(msg)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	id := s.newID()
	if _, err := s.docs.Create(ctx, models.Document{
		Collection: models.CollectionChatMessages,
		ID:         id,
		OwnerID:    owner.ID,
		Data:       fields,
	}); err != nil {
		return Message{}, fmt.Errorf("persist message: %w", err)
	}
	return Message{ID: id, ChatMessage: msg}, nil
}

// touchSession bumps activity metadata after a persisted message.
// lastMessage, when non-nil, replaces the session's excerpt. The count
// is incremented heuristically and may drift if a write partially
// fails; it is display-only. Metadata failures are logged and swallowed.
func (s *ChatService) touchSession(ctx context.Context, sessionID string, lastMessage *string) {
	doc, err := s.docs.Get(ctx, models.CollectionChatSessions, sessionID)
	if err != nil {
		s.log.Warn("session metadata read failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	var sess models.ChatSession
	if err := models.Decode(doc.Data, &sess); err != nil {
		s.log.Warn("session metadata decode failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	set := map[string]any{
		"lastActivityAt": s.now().UTC().Format(time.RFC3339Nano),
		"messageCount":   sess.MessageCount + 1,
	}
	if lastMessage != nil {
		set["lastMessage"] = excerpt(*lastMessage)
	}
	if err := s.docs.Update(ctx, models.CollectionChatSessions, sessionID, set, nil); err != nil {
		s.log.Warn("session metadata update failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// financeContext gathers the owner's recent state for the assistant.
// Every part is best-effort; a failed read just leaves that part empty.
func (s *ChatService) financeContext(ctx context.Context, owner Owner) assistant.Context {
	var actx assistant.Context

	if docs, err := s.docs.ListByOwner(ctx, models.CollectionExpenses, owner.ID); err != nil {
		s.log.Warn("context expenses unavailable", zap.Error(err))
	} else {
		expenses := make([]models.Expense, 0, len(docs))
		for _, doc := range docs {
			var e models.Expense
			if models.Decode(doc.Data, &e) == nil {
				expenses = append(expenses, e)
			}
		}
		sort.SliceStable(expenses, func(i, j int) bool {
			return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
		})
		if len(expenses) > contextExpenseLimit {
			expenses = expenses[:contextExpenseLimit]
		}
		actx.RecentExpenses = expenses
	}

	if docs, err := s.docs.ListByOwner(ctx, models.CollectionBudgets, owner.ID); err != nil {
		s.log.Warn("context budgets unavailable", zap.Error(err))
	} else {
		for _, doc := range docs {
			var b models.Budget
			if models.Decode(doc.Data, &b) == nil {
				actx.ActiveBudgets = append(actx.ActiveBudgets, b)
			}
		}
	}

	if docs, err := s.docs.ListByOwner(ctx, models.CollectionPeople, owner.ID); err != nil {
		s.log.Warn("context people unavailable", zap.Error(err))
	} else {
		for _, doc := range docs {
			var p models.Person
			if models.Decode(doc.Data, &p) == nil {
				actx.People = append(actx.People, p)
			}
		}
	}

	return actx
}

// applyActions forwards the assistant's already-decided side effects to
// the CRUD facade and reports each outcome.
func (s *ChatService) applyActions(ctx context.Context, owner Owner, actions []models.ActionResult) []models.ActionResult {
	if len(actions) == 0 {
		return nil
	}
	out := make([]models.ActionResult, 0, len(actions))
	for _, a := range actions {
		if !a.Success {
			out = append(out, a)
			continue
		}
		if err := s.applyAction(ctx, owner, a); err != nil {
			s.log.Warn("assistant action failed", zap.String("type", a.Type), zap.Error(err))
			a.Success = false
			a.Error = err.Error()
		}
		out = append(out, a)
	}
	return out
}

func (s *ChatService) applyAction(ctx context.Context, owner Owner, a models.ActionResult) error {
	switch a.Type {
	case "create_expense":
		var e models.Expense
		if err := models.Decode(a.Data, &e); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		_, err := s.crud.CreateExpense(ctx, owner, e)
		return err
	case "create_budget":
		var b models.Budget
		if err := models.Decode(a.Data, &b); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		_, err := s.crud.CreateBudget(ctx, owner, b)
		return err
	case "create_category":
		var c models.CustomCategory
		if err := models.Decode(a.Data, &c); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		fields, err := models.Fields(c)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		_, err = s.crud.CreateShareable(ctx, owner, KindCategory, fields)
		return err
	default:
		// Unknown actions were executed remotely; nothing to forward.
		return nil
	}
}

// excerpt truncates a message for session metadata, appending an
// ellipsis when anything was cut.
func excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= excerptLimit {
		return s
	}
	return string(runes[:excerptLimit]) + "…"
}
