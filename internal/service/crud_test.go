package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avoronova/FinSync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testOwner = Owner{ID: "u1", Name: "Alice"}

func newTestCRUD(store *memStore) *CRUDService {
	log := zap.NewNop()
	s := NewCRUDService(store, NewMirrorService(store, log), log)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	s.newID = func() string { n++; return string(rune('a'+n-1)) + "-id" }
	return s
}

func TestCreateExpense_Unauthenticated(t *testing.T) {
	s := newTestCRUD(newMemStore())
	_, err := s.CreateExpense(context.Background(), Owner{}, models.Expense{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateExpense_StampsCreationTime(t *testing.T) {
	store := newMemStore()
	s := newTestCRUD(store)

	id, err := s.CreateExpense(context.Background(), testOwner, models.Expense{
		Amount:   decimal.RequireFromString("12.50"),
		Category: "food",
	})
	require.NoError(t, err)

	doc, err := store.Get(context.Background(), models.CollectionExpenses, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.OwnerID)
	assert.NotEmpty(t, doc.Data["createdAt"])
}

func TestUpdateExpense_ClearRemovesField(t *testing.T) {
	store := newMemStore()
	s := newTestCRUD(store)

	id, err := s.CreateExpense(context.Background(), testOwner, models.Expense{
		Amount:     decimal.New(5, 0),
		Category:   "food",
		ReceiptRef: "receipts/123.jpg",
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateExpense(context.Background(), testOwner, id,
		map[string]any{"description": "lunch"}, []string{"receiptRef"}))

	doc, err := store.Get(context.Background(), models.CollectionExpenses, id)
	require.NoError(t, err)
	assert.Equal(t, "lunch", doc.Data["description"])
	_, present := doc.Data["receiptRef"]
	assert.False(t, present, "cleared field must be absent, not null")
}

func TestUpdateExpense_WrongOwner(t *testing.T) {
	store := newMemStore()
	s := newTestCRUD(store)

	id, err := s.CreateExpense(context.Background(), testOwner, models.Expense{Category: "food"})
	require.NoError(t, err)

	err = s.UpdateExpense(context.Background(), Owner{ID: "intruder"}, id, map[string]any{"amount": 1}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateExpense_Missing(t *testing.T) {
	s := newTestCRUD(newMemStore())
	err := s.UpdateExpense(context.Background(), testOwner, "nope", map[string]any{"amount": 1}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpenseWrites_RecomputeBudgetSpent(t *testing.T) {
	store := newMemStore()
	s := newTestCRUD(store)
	ctx := context.Background()

	budgetID, err := s.CreateBudget(ctx, testOwner, models.Budget{
		Category: "food",
		Limit:    decimal.New(100, 0),
		Period:   "monthly",
	})
	require.NoError(t, err)

	expenseID, err := s.CreateExpense(ctx, testOwner, models.Expense{
		Amount:   decimal.RequireFromString("12.50"),
		Category: "food",
	})
	require.NoError(t, err)
	_, err = s.CreateExpense(ctx, testOwner, models.Expense{
		Amount:   decimal.RequireFromString("7.50"),
		Category: "food",
	})
	require.NoError(t, err)

	budget := decodeBudget(t, store, budgetID)
	assert.True(t, budget.Spent.Equal(decimal.New(20, 0)), "spent = %s", budget.Spent)

	require.NoError(t, s.DeleteExpense(ctx, testOwner, expenseID))
	budget = decodeBudget(t, store, budgetID)
	assert.True(t, budget.Spent.Equal(decimal.RequireFromString("7.5")), "spent = %s", budget.Spent)
}

func decodeBudget(t *testing.T, store *memStore, id string) models.Budget {
	t.Helper()
	doc, err := store.Get(context.Background(), models.CollectionBudgets, id)
	require.NoError(t, err)
	var b models.Budget
	require.NoError(t, models.Decode(doc.Data, &b))
	return b
}

func TestCreateRecurringTemplate(t *testing.T) {
	store := newMemStore()
	s := newTestCRUD(store)

	id, err := s.CreateRecurringTemplate(context.Background(), testOwner, models.RecurringTemplate{
		Category: "rent",
		Amount:   decimal.New(900, 0),
		Cadence:  "monthly",
	})
	require.NoError(t, err)

	doc, err := store.Get(context.Background(), models.CollectionRecurringTemplates, id)
	require.NoError(t, err)
	assert.Equal(t, "rent", doc.Data["category"])
}

func TestCreateShareable_PrimaryFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.failCreate[models.CollectionCategories] = errors.New("store down")
	s := newTestCRUD(store)

	_, err := s.CreateShareable(context.Background(), testOwner, KindCategory, map[string]any{
		"name": "Groceries", "visibility": "public",
	})
	require.Error(t, err)
	assert.Equal(t, 0, store.count(models.CollectionPublicCategories),
		"no mirror may exist when the primary write failed")
}

func TestListOwned(t *testing.T) {
	store := newMemStore()
	s := newTestCRUD(store)
	ctx := context.Background()

	_, err := s.CreateExpense(ctx, testOwner, models.Expense{Category: "food"})
	require.NoError(t, err)
	_, err = s.CreateExpense(ctx, Owner{ID: "other"}, models.Expense{Category: "food"})
	require.NoError(t, err)

	docs, err := s.ListOwned(ctx, testOwner, models.CollectionExpenses)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
