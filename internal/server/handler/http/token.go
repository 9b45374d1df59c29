package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/avoronova/FinSync/internal/middleware"
)

// TokenHandler mints bearer tokens. The login UI itself is an external
// collaborator; this endpoint is the boundary it calls after its own
// verification.
type TokenHandler struct {
	// Secret signs issued tokens.
	Secret []byte
	// TTL bounds token lifetime; zero means 24h.
	TTL time.Duration
}

// TokenRequest represents the JSON payload for token issuance.
type TokenRequest struct {
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
}

// Issue handles POST /api/token requests.
// It expects a JSON body with a non-empty "ownerId" field and responds
// with a signed bearer token for that owner.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	ttl := h.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	token, err := middleware.IssueToken(h.Secret, req.OwnerID, req.Name, ttl)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}
