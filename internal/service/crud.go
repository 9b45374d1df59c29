// Package service provides business-logic services for entity CRUD,
// public mirroring, adoption, and chat sessions, delegating persistence
// to repository interfaces.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avoronova/FinSync/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DocumentStore defines the persistence operations the services need.
type DocumentStore interface {
	// Create inserts a new document and returns its id.
	Create(ctx context.Context, doc models.Document) (string, error)
	// Get fetches a single document; sql.ErrNoRows when absent.
	Get(ctx context.Context, collection, id string) (*models.Document, error)
	// ListByOwner fetches all documents of a collection for one owner.
	ListByOwner(ctx context.Context, collection, owner string) ([]models.Document, error)
	// ListByOwnerField narrows ListByOwner by one payload field.
	ListByOwnerField(ctx context.Context, collection, owner, field, value string) ([]models.Document, error)
	// ListPublic fetches a flat public collection.
	ListPublic(ctx context.Context, collection string) ([]models.Document, error)
	// FindByField returns the first match or (nil, nil).
	FindByField(ctx context.Context, collection, field, value string) (*models.Document, error)
	// Update merges set into the payload and removes cleared keys.
	Update(ctx context.Context, collection, id string, set map[string]any, clear []string) error
	// Delete removes a document unconditionally.
	Delete(ctx context.Context, collection, id string) error
	// DeleteByOwnerField removes matching documents, reporting the count.
	DeleteByOwnerField(ctx context.Context, collection, owner, field, value string) (int64, error)
	// Increment bumps a numeric payload field atomically.
	Increment(ctx context.Context, collection, id, field string, delta int64) error
}

// Owner identifies the acting user. Name is the display name carried
// into mirror provenance.
type Owner struct {
	ID   string
	Name string
}

// CRUDService exposes create/update/delete per entity type. Writes go to
// the document store only; callers observe results through the change
// feed, never through a local merge.
type CRUDService struct {
	docs    DocumentStore
	mirrors *MirrorService
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewCRUDService constructs a CRUDService over the given store. mirrors
// keeps public copies of shareable entities in step with private writes.
func NewCRUDService(docs DocumentStore, mirrors *MirrorService, log *zap.Logger) *CRUDService {
	return &CRUDService{
		docs:    docs,
		mirrors: mirrors,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (s *CRUDService) createOwned(ctx context.Context, owner Owner, collection string, fields map[string]any) (string, error) {
	if owner.ID == "" {
		return "", ErrUnauthenticated
	}
	id := s.newID()
	if _, err := s.docs.Create(ctx, models.Document{
		Collection: collection,
		ID:         id,
		OwnerID:    owner.ID,
		Data:       fields,
	}); err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return id, nil
}

// getOwned fetches a document and verifies it belongs to the owner.
func (s *CRUDService) getOwned(ctx context.Context, owner Owner, collection, id string) (*models.Document, error) {
	if owner.ID == "" {
		return nil, ErrUnauthenticated
	}
	doc, err := s.docs.Get(ctx, collection, id)
	if err != nil {
		return nil, asNotFound(err)
	}
	if doc.OwnerID != owner.ID {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *CRUDService) updateOwned(ctx context.Context, owner Owner, collection, id string, set map[string]any, clear []string) error {
	if _, err := s.getOwned(ctx, owner, collection, id); err != nil {
		return err
	}
	if err := s.docs.Update(ctx, collection, id, set, clear); err != nil {
		return fmt.Errorf("update %s: %w", collection, asNotFound(err))
	}
	return nil
}

func (s *CRUDService) deleteOwned(ctx context.Context, owner Owner, collection, id string) error {
	if _, err := s.getOwned(ctx, owner, collection, id); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	return nil
}

// ListOwned returns the owner's documents of one private collection.
func (s *CRUDService) ListOwned(ctx context.Context, owner Owner, collection string) ([]models.Document, error) {
	if owner.ID == "" {
		return nil, ErrUnauthenticated
	}
	return s.docs.ListByOwner(ctx, collection, owner.ID)
}

// CreateExpense stores a new expense and refreshes derived budget totals.
func (s *CRUDService) CreateExpense(ctx context.Context, owner Owner, e models.Expense) (string, error) {
	e.CreatedAt = s.now().UTC()
	fields, err := models.Fields(e)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	id, err := s.createOwned(ctx, owner, models.CollectionExpenses, fields)
	if err != nil {
		return "", err
	}
	s.recalculateSpent(ctx, owner)
	return id, nil
}

// UpdateExpense applies partial fields; keys in clear are removed from
// the record rather than stored as null.
func (s *CRUDService) UpdateExpense(ctx context.Context, owner Owner, id string, set map[string]any, clear []string) error {
	if err := s.updateOwned(ctx, owner, models.CollectionExpenses, id, set, clear); err != nil {
		return err
	}
	s.recalculateSpent(ctx, owner)
	return nil
}

// DeleteExpense removes the expense and refreshes derived budget totals.
func (s *CRUDService) DeleteExpense(ctx context.Context, owner Owner, id string) error {
	if err := s.deleteOwned(ctx, owner, models.CollectionExpenses, id); err != nil {
		return err
	}
	s.recalculateSpent(ctx, owner)
	return nil
}

// CreateBudget stores a new budget. Spent starts at the sum of the
// owner's existing expenses for the category.
func (s *CRUDService) CreateBudget(ctx context.Context, owner Owner, b models.Budget) (string, error) {
	b.CreatedAt = s.now().UTC()
	b.Spent = decimal.Zero
	fields, err := models.Fields(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	id, err := s.createOwned(ctx, owner, models.CollectionBudgets, fields)
	if err != nil {
		return "", err
	}
	s.recalculateSpent(ctx, owner)
	return id, nil
}

// UpdateBudget applies partial fields to a budget.
func (s *CRUDService) UpdateBudget(ctx context.Context, owner Owner, id string, set map[string]any, clear []string) error {
	return s.updateOwned(ctx, owner, models.CollectionBudgets, id, set, clear)
}

// DeleteBudget removes a budget.
func (s *CRUDService) DeleteBudget(ctx context.Context, owner Owner, id string) error {
	return s.deleteOwned(ctx, owner, models.CollectionBudgets, id)
}

// CreateRecurringTemplate stores a repeating-expense template.
func (s *CRUDService) CreateRecurringTemplate(ctx context.Context, owner Owner, t models.RecurringTemplate) (string, error) {
	t.CreatedAt = s.now().UTC()
	fields, err := models.Fields(t)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.createOwned(ctx, owner, models.CollectionRecurringTemplates, fields)
}

// UpdateRecurringTemplate applies partial fields to a template.
func (s *CRUDService) UpdateRecurringTemplate(ctx context.Context, owner Owner, id string, set map[string]any, clear []string) error {
	return s.updateOwned(ctx, owner, models.CollectionRecurringTemplates, id, set, clear)
}

// DeleteRecurringTemplate removes a template.
func (s *CRUDService) DeleteRecurringTemplate(ctx context.Context, owner Owner, id string) error {
	return s.deleteOwned(ctx, owner, models.CollectionRecurringTemplates, id)
}

// CreateShareable stores a new shareable entity and, when its visibility
// is public, brings up the matching mirror. The mirror step is
// best-effort and never fails the private write.
func (s *CRUDService) CreateShareable(ctx context.Context, owner Owner, kind ShareableKind, fields map[string]any) (string, error) {
	fields["createdAt"] = s.now().UTC().Format(time.RFC3339Nano)
	if _, ok := fields[models.FieldVisibility]; !ok {
		fields[models.FieldVisibility] = string(models.VisibilityPrivate)
	}
	id, err := s.createOwned(ctx, owner, kind.PrivateCollection(), fields)
	if err != nil {
		return "", err
	}
	s.mirrors.Sync(ctx, owner, kind, id, fields)
	return id, nil
}

// UpdateShareable applies partial fields, then re-synchronizes the
// mirror against the post-write state of the private record.
func (s *CRUDService) UpdateShareable(ctx context.Context, owner Owner, kind ShareableKind, id string, set map[string]any, clear []string) error {
	if err := s.updateOwned(ctx, owner, kind.PrivateCollection(), id, set, clear); err != nil {
		return err
	}
	doc, err := s.docs.Get(ctx, kind.PrivateCollection(), id)
	if err != nil {
		// The private write already succeeded; the sweeper will repair
		// the mirror if this read raced a concurrent delete.
		s.log.Warn("post-update read failed, mirror not synchronized",
			zap.String("collection", kind.PrivateCollection()), zap.String("id", id), zap.Error(err))
		return nil
	}
	s.mirrors.Sync(ctx, owner, kind, id, doc.Data)
	return nil
}

// DeleteShareable removes the private record, then drops its mirror.
func (s *CRUDService) DeleteShareable(ctx context.Context, owner Owner, kind ShareableKind, id string) error {
	if err := s.deleteOwned(ctx, owner, kind.PrivateCollection(), id); err != nil {
		return err
	}
	s.mirrors.Drop(ctx, kind, id)
	return nil
}

// recalculateSpent recomputes each budget's spent total from the
// owner's expenses. Spent is derived display state, so failures here are
// logged and swallowed.
func (s *CRUDService) recalculateSpent(ctx context.Context, owner Owner) {
	expenses, err := s.docs.ListByOwner(ctx, models.CollectionExpenses, owner.ID)
	if err != nil {
		s.log.Warn("spent recompute: list expenses failed", zap.Error(err))
		return
	}
	totals := make(map[string]decimal.Decimal)
	for _, doc := range expenses {
		var e models.Expense
		if err := models.Decode(doc.Data, &e); err != nil {
			continue
		}
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}

	budgets, err := s.docs.ListByOwner(ctx, models.CollectionBudgets, owner.ID)
	if err != nil {
		s.log.Warn("spent recompute: list budgets failed", zap.Error(err))
		return
	}
	for _, doc := range budgets {
		var b models.Budget
		if err := models.Decode(doc.Data, &b); err != nil {
			continue
		}
		spent := totals[b.Category]
		if b.Spent.Equal(spent) {
			continue
		}
		if err := s.docs.Update(ctx, models.CollectionBudgets, doc.ID, map[string]any{"spent": spent}, nil); err != nil {
			s.log.Warn("spent recompute: update budget failed",
				zap.String("id", doc.ID), zap.Error(err))
		}
	}
}
