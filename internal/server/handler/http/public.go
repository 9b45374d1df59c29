package http

import (
	"context"
	"net/http"

	"github.com/avoronova/FinSync/internal/models"
	"github.com/avoronova/FinSync/internal/service"
	"github.com/go-chi/chi/v5"
)

// PublicLister reads the flat public mirror collections.
type PublicLister interface {
	ListPublic(ctx context.Context, collection string) ([]models.Document, error)
}

// Adopter copies a public mirror into the acting user's own collection.
type Adopter interface {
	Adopt(ctx context.Context, adopter service.Owner, kind service.ShareableKind, mirrorID string) (string, error)
}

// PublicHandler serves the public mirror collections and the adoption
// workflow.
type PublicHandler struct {
	Docs     PublicLister
	Adoption Adopter
}

func mirrorKind(r *http.Request) (service.ShareableKind, bool) {
	kind, ok := shareableKinds[chi.URLParam(r, "kind")]
	return kind, ok
}

// List handles GET /api/public/{kind}.
func (h *PublicHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := mirrorKind(r)
	if !ok {
		http.Error(w, "unknown kind", http.StatusNotFound)
		return
	}
	docs, err := h.Docs.ListPublic(r.Context(), kind.PublicCollection())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, docs)
}

// Adopt handles POST /api/public/{kind}/{id}/adopt and responds with
// the id of the freshly created private copy.
func (h *PublicHandler) Adopt(w http.ResponseWriter, r *http.Request) {
	kind, ok := mirrorKind(r)
	if !ok {
		http.Error(w, "unknown kind", http.StatusNotFound)
		return
	}
	id, err := h.Adoption.Adopt(r.Context(), ownerFromRequest(r), kind, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"id": id})
}
