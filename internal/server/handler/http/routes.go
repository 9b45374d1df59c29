// Package http wires service operations to the HTTP and websocket
// surface.
package http

import (
	"net/http"

	"github.com/avoronova/FinSync/internal/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Token    *TokenHandler
	Entities *EntityHandler
	Public   *PublicHandler
	Chat     *ChatHandler
	WS       *WSHandler
}

// NewRouter assembles the service's routes. Everything except token
// issuance requires a bearer token; the websocket upgrade accepts the
// token as a query parameter instead of a header.
func NewRouter(h Handlers, secret []byte, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestLogging(log))

	r.Post("/api/token", h.Token.Issue)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(secret))

		r.Get("/ws", h.WS.Serve)

		r.Route("/api/{entity}", func(r chi.Router) {
			r.Get("/", h.Entities.List)
			r.Post("/", h.Entities.Create)
			r.Put("/{id}", h.Entities.Update)
			r.Delete("/{id}", h.Entities.Delete)
		})

		r.Route("/api/public/{kind}", func(r chi.Router) {
			r.Get("/", h.Public.List)
			r.Post("/{id}/adopt", h.Public.Adopt)
		})

		r.Route("/api/chat", func(r chi.Router) {
			r.Get("/current", h.Chat.CurrentSession)
			r.Get("/sessions", h.Chat.ListSessions)
			r.Post("/sessions", h.Chat.CreateSession)
			r.Put("/sessions/{id}", h.Chat.RenameSession)
			r.Delete("/sessions/{id}", h.Chat.DeleteSession)
			r.Get("/sessions/{id}/messages", h.Chat.ListMessages)
			r.Post("/sessions/{id}/messages", h.Chat.SendMessage)
		})
	})

	return r
}
