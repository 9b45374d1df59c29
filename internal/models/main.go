// Package models defines the core data structures for tracked finance
// entities, public mirrors, and chat conversations.
package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names. Private collections are scoped by owner id; the
// public mirror collections are flat and readable across owners.
const (
	CollectionExpenses           = "expenses"
	CollectionBudgets            = "budgets"
	CollectionRecurringTemplates = "recurringTemplates"
	CollectionCategories         = "customCategories"
	CollectionPeople             = "people"
	CollectionBudgetTemplates    = "budgetTemplates"
	CollectionPublicCategories   = "publicCategories"
	CollectionPublicPeople       = "publicPeople"
	CollectionPublicBudgetTmpls  = "publicBudgetTemplates"
	CollectionChatSessions       = "chatSessions"
	CollectionChatMessages       = "chatMessages"
)

// Visibility controls whether a shareable entity is broadcast to a
// public mirror collection.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Document is the unit of storage: a JSON payload keyed by an opaque id
// inside a named collection, scoped under an owner id.
type Document struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	OwnerID    string         `json:"ownerId"`
	Data       map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Expense is a single spend record. Never mirrored.
type Expense struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	ReceiptRef  string          `json:"receiptRef,omitempty"`
	PersonIDs   []string        `json:"personIds,omitempty"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
}

// Budget tracks a spending limit per category. Spent is derived and
// recomputed from the owner's expenses, never entered directly.
type Budget struct {
	Category  string          `json:"category"`
	Limit     decimal.Decimal `json:"limit"`
	Spent     decimal.Decimal `json:"spent"`
	Period    string          `json:"period"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
}

// RecurringTemplate pre-fills a repeating expense.
type RecurringTemplate struct {
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Cadence     string          `json:"cadence"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
}

// CustomCategory is a user-defined expense category. Shareable.
type CustomCategory struct {
	Name       string     `json:"name"`
	Color      string     `json:"color"`
	Icon       string     `json:"icon"`
	Visibility Visibility `json:"visibility"`
	Provenance string     `json:"provenance,omitempty"`
	CreatedAt  time.Time  `json:"createdAt,omitempty"`
}

// Person is someone expenses can be split with or attributed to. Shareable.
type Person struct {
	Name         string     `json:"name"`
	Color        string     `json:"color"`
	Icon         string     `json:"icon"`
	Relationship string     `json:"relationship"`
	Visibility   Visibility `json:"visibility"`
	Provenance   string     `json:"provenance,omitempty"`
	CreatedAt    time.Time  `json:"createdAt,omitempty"`
}

// BudgetTemplateItem is one (category, limit) pair inside a template.
type BudgetTemplateItem struct {
	Category string          `json:"category"`
	Limit    decimal.Decimal `json:"limit"`
}

// BudgetTemplate is a reusable set of budget allocations. Shareable.
type BudgetTemplate struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Items       []BudgetTemplateItem `json:"items"`
	Total       decimal.Decimal      `json:"total"`
	IncomeLevel string               `json:"incomeLevel"`
	Visibility  Visibility           `json:"visibility"`
	Provenance  string               `json:"provenance,omitempty"`
	CreatedAt   time.Time            `json:"createdAt,omitempty"`
}

// Mirror metadata fields carried by every public mirror document in
// addition to the shareable entity's own fields.
const (
	FieldOriginRecordID  = "originRecordId"
	FieldOriginOwnerID   = "originOwnerId"
	FieldOriginOwnerName = "originOwnerName"
	FieldUsageCount      = "usageCount"
	FieldVisibility      = "visibility"
)

// ChatSession is a named container for one user's conversation.
// MessageCount is maintained heuristically and is display-only.
type ChatSession struct {
	Title          string    `json:"title"`
	LastMessage    string    `json:"lastMessage,omitempty"`
	MessageCount   int       `json:"messageCount"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// ChatMessage is one conversation turn, queried by session id and
// sorted client-side by timestamp.
type ChatMessage struct {
	SessionID string         `json:"sessionId"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Actions   []ActionResult `json:"actions,omitempty"`
	IsError   bool           `json:"isError,omitempty"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ActionResult reports the outcome of one side effect the assistant
// boundary already decided on.
type ActionResult struct {
	Type    string         `json:"type"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Fields converts an entity struct into the map form stored in a
// document payload. Optional fields marked omitempty stay absent.
func Fields(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode converts a document payload back into a typed entity.
func Decode(data map[string]any, dst any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
