package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"direct-chat-backend/internal/middleware"
	"direct-chat-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	maxInboundBytes = 4096
	readWait        = 70 * time.Second
)

// WebSocketHandler handles push-channel connections
type WebSocketHandler struct {
	hub      *services.WSHub
	tokens   middleware.TokenValidator
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler.
// allowedOrigin "*" accepts any origin.
func NewWebSocketHandler(hub *services.WSHub, tokens middleware.TokenValidator, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// HandleWebSocket handles GET /ws?token=<jwt>
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	unregister := h.hub.Register(userID, conn)
	defer unregister()

	conn.SetReadLimit(maxInboundBytes)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", userID).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(userID, services.WSMessage{Type: services.EventError, Message: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case services.EventPing:
			h.reply(userID, services.WSMessage{Type: services.EventPong})
		default:
			h.reply(userID, services.WSMessage{Type: services.EventError, Message: "Unknown message type"})
		}
	}
}

func (h *WebSocketHandler) reply(userID string, msg services.WSMessage) {
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("Failed to reply on WebSocket")
	}
}
