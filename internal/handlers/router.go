package handlers

import (
	"net/http"

	"direct-chat-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps groups the handlers mounted by NewRouter
type RouterDeps struct {
	Users         *UserHandler
	Messages      *MessageHandler
	WebSocket     *WebSocketHandler
	Tokens        middleware.TokenValidator
	AllowedOrigin string
}

// NewRouter builds the HTTP routes of the gateway
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(deps.AllowedOrigin))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			deps.Users.PublicRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(deps.Tokens))
				deps.Users.ProtectedRoutes(r)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.Tokens))
			deps.Messages.Routes(r)
		})
	})

	r.Get("/ws", deps.WebSocket.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
