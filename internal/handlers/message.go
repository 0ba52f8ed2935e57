package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"direct-chat-backend/internal/middleware"
	"direct-chat-backend/internal/models"
	"direct-chat-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// MessageGateway is the message service as seen by the HTTP layer
type MessageGateway interface {
	ListContacts(ctx context.Context, userID string) ([]*models.User, error)
	ListChatPartners(ctx context.Context, userID string) ([]*models.ChatPartner, error)
	GetConversation(ctx context.Context, userID, partnerID string) ([]*models.Message, error)
	MarkRead(ctx context.Context, userID, senderID string) (int64, error)
	SendMessage(ctx context.Context, senderID, receiverID string, req services.SendMessageRequest) (*models.Message, error)
}

// PresenceReporter lists users with a live push connection
type PresenceReporter interface {
	OnlineUsers() []string
}

// MessageHandler handles message-related HTTP requests
type MessageHandler struct {
	messages MessageGateway
	presence PresenceReporter
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages MessageGateway, presence PresenceReporter) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		presence: presence,
	}
}

// Routes mounts the message endpoints
func (h *MessageHandler) Routes(r chi.Router) {
	r.Get("/contacts", h.GetContacts)
	r.Get("/chats", h.GetChatPartners)
	r.Get("/online", h.GetOnline)
	r.Post("/send/{receiver_id}", h.SendMessage)
	r.Put("/mark-read/{sender_id}", h.MarkRead)
	r.Get("/{partner_id}", h.GetConversation)
}

// GetContacts handles GET /api/v1/messages/contacts
func (h *MessageHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	contacts, err := h.messages.ListContacts(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list contacts")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, contacts)
}

// GetChatPartners handles GET /api/v1/messages/chats
func (h *MessageHandler) GetChatPartners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	partners, err := h.messages.ListChatPartners(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list chat partners")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, partners)
}

// GetOnline handles GET /api/v1/messages/online
func (h *MessageHandler) GetOnline(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.presence.OnlineUsers())
}

// GetConversation handles GET /api/v1/messages/{partner_id}
func (h *MessageHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	partnerID := chi.URLParam(r, "partner_id")

	messages, err := h.messages.GetConversation(ctx, userID, partnerID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("partner_id", partnerID).
			Msg("Failed to get conversation")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, messages)
}

// MarkRead handles PUT /api/v1/messages/mark-read/{sender_id}
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	senderID := chi.URLParam(r, "sender_id")

	modified, err := h.messages.MarkRead(ctx, userID, senderID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("sender_id", senderID).
			Msg("Failed to mark messages as read")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.MarkReadResult{Success: true, ModifiedCount: modified})
}

// SendMessage handles POST /api/v1/messages/send/{receiver_id}
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	receiverID := chi.URLParam(r, "receiver_id")

	var req services.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	message, err := h.messages.SendMessage(ctx, userID, receiverID, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("receiver_id", receiverID).
			Msg("Failed to send message")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("receiver_id", receiverID).
		Str("message_id", message.ID).
		Msg("Message sent")

	respondJSON(w, http.StatusCreated, message)
}
