package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avoronova/FinSync/internal/middleware"
	"github.com/avoronova/FinSync/internal/models"
	"github.com/avoronova/FinSync/internal/service"
	"github.com/avoronova/FinSync/internal/store"
	"github.com/go-chi/chi/v5"
)

// entityCollections maps URL path segments onto private collections.
var entityCollections = map[string]string{
	"expenses":         models.CollectionExpenses,
	"budgets":          models.CollectionBudgets,
	"templates":        models.CollectionRecurringTemplates,
	"categories":       models.CollectionCategories,
	"people":           models.CollectionPeople,
	"budget-templates": models.CollectionBudgetTemplates,
}

// shareableKinds maps the path segments of mirrorable entities.
var shareableKinds = map[string]service.ShareableKind{
	"categories":       service.KindCategory,
	"people":           service.KindPerson,
	"budget-templates": service.KindBudgetTemplate,
}

// EntityHandler serves CRUD for every private entity type. Writes go to
// the store only; clients observe results over the websocket feed.
type EntityHandler struct {
	CRUD *service.CRUDService
	// Cache serves list reads when the owner's websocket feed has
	// already warmed it. Optional.
	Cache *store.EntityStore
}

// updateRequest is the body of PUT requests: fields to merge plus keys
// to remove outright.
type updateRequest struct {
	Set   map[string]any `json:"set"`
	Clear []string       `json:"clear,omitempty"`
}

func ownerFromRequest(r *http.Request) service.Owner {
	return service.Owner{
		ID:   middleware.GetUserIDFromContext(r.Context()),
		Name: middleware.GetUserNameFromContext(r.Context()),
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func collectionFor(r *http.Request) (string, bool) {
	collection, ok := entityCollections[chi.URLParam(r, "entity")]
	return collection, ok
}

// List handles GET /api/{entity}.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	collection, ok := collectionFor(r)
	if !ok {
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}
	owner := ownerFromRequest(r)
	if h.Cache != nil {
		if docs := h.Cache.Snapshot(owner.ID, collection); len(docs) > 0 {
			writeJSON(w, docs)
			return
		}
	}
	docs, err := h.CRUD.ListOwned(r.Context(), owner, collection)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, docs)
}

// Create handles POST /api/{entity}. The body is decoded through the
// entity's typed model so malformed payloads are rejected before they
// reach the store.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, ok := entityCollections[entity]; !ok {
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}
	owner := ownerFromRequest(r)

	id, err := h.create(r, owner, entity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"id": id})
}

func (h *EntityHandler) create(r *http.Request, owner service.Owner, entity string) (string, error) {
	decode := func(dst any) error {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return service.ErrInvalid
		}
		return nil
	}

	switch entity {
	case "expenses":
		var e models.Expense
		if err := decode(&e); err != nil {
			return "", err
		}
		return h.CRUD.CreateExpense(r.Context(), owner, e)
	case "budgets":
		var b models.Budget
		if err := decode(&b); err != nil {
			return "", err
		}
		return h.CRUD.CreateBudget(r.Context(), owner, b)
	case "templates":
		var t models.RecurringTemplate
		if err := decode(&t); err != nil {
			return "", err
		}
		return h.CRUD.CreateRecurringTemplate(r.Context(), owner, t)
	case "categories":
		var c models.CustomCategory
		if err := decode(&c); err != nil {
			return "", err
		}
		return h.createShareable(r, owner, entity, c)
	case "people":
		var p models.Person
		if err := decode(&p); err != nil {
			return "", err
		}
		return h.createShareable(r, owner, entity, p)
	default: // budget-templates
		var bt models.BudgetTemplate
		if err := decode(&bt); err != nil {
			return "", err
		}
		return h.createShareable(r, owner, entity, bt)
	}
}

func (h *EntityHandler) createShareable(r *http.Request, owner service.Owner, entity string, v any) (string, error) {
	fields, err := models.Fields(v)
	if err != nil {
		return "", service.ErrInvalid
	}
	return h.CRUD.CreateShareable(r.Context(), owner, shareableKinds[entity], fields)
}

// Update handles PUT /api/{entity}/{id}. Keys listed in clear are
// removed from the record rather than stored as null.
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, ok := entityCollections[entity]; !ok {
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	owner := ownerFromRequest(r)

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var err error
	if kind, shareable := shareableKinds[entity]; shareable {
		err = h.CRUD.UpdateShareable(r.Context(), owner, kind, id, req.Set, req.Clear)
	} else {
		switch entity {
		case "expenses":
			err = h.CRUD.UpdateExpense(r.Context(), owner, id, req.Set, req.Clear)
		case "budgets":
			err = h.CRUD.UpdateBudget(r.Context(), owner, id, req.Set, req.Clear)
		default: // templates
			err = h.CRUD.UpdateRecurringTemplate(r.Context(), owner, id, req.Set, req.Clear)
		}
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/{entity}/{id}.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, ok := entityCollections[entity]; !ok {
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	owner := ownerFromRequest(r)

	var err error
	if kind, shareable := shareableKinds[entity]; shareable {
		err = h.CRUD.DeleteShareable(r.Context(), owner, kind, id)
	} else {
		switch entity {
		case "expenses":
			err = h.CRUD.DeleteExpense(r.Context(), owner, id)
		case "budgets":
			err = h.CRUD.DeleteBudget(r.Context(), owner, id)
		default: // templates
			err = h.CRUD.DeleteRecurringTemplate(r.Context(), owner, id)
		}
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
