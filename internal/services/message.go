package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"direct-chat-backend/internal/models"
	"direct-chat-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const offlinePushTimeout = 10 * time.Second

// MessageService implements the message gateway operations
type MessageService struct {
	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	media       ImageUploader
	events      EventPublisher
	offline     OfflineNotifier
	now         func() time.Time
}

// NewMessageService creates a new message service. offline may be nil.
func NewMessageService(
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
	media ImageUploader,
	events EventPublisher,
	offline OfflineNotifier,
) *MessageService {
	return &MessageService{
		userRepo:    userRepo,
		messageRepo: messageRepo,
		media:       media,
		events:      events,
		offline:     offline,
		now:         time.Now,
	}
}

// SendMessageRequest represents the body of a send request
type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// ListContacts returns every user except the caller
func (s *MessageService) ListContacts(ctx context.Context, userID string) ([]*models.User, error) {
	users, err := s.userRepo.ListExcept(ctx, userID)
	if err != nil {
		return nil, serverError(err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// ListChatPartners returns everyone the caller has exchanged messages with,
// most recent conversation first
func (s *MessageService) ListChatPartners(ctx context.Context, userID string) ([]*models.ChatPartner, error) {
	stats, err := s.messageRepo.Stats(ctx, userID)
	if err != nil {
		return nil, serverError(err)
	}

	ids := make([]string, 0, len(stats))
	for _, st := range stats {
		ids = append(ids, st.PartnerID)
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, serverError(err)
	}
	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	partners := make([]*models.ChatPartner, 0, len(stats))
	for _, st := range stats {
		u, ok := byID[st.PartnerID]
		if !ok {
			continue
		}
		partner := &models.ChatPartner{
			User:            *u,
			UnreadCount:     st.UnreadCount,
			LastMessageTime: st.LastMessageTime,
		}
		partner.Password = ""
		partners = append(partners, partner)
	}

	SortChatPartners(partners)
	return partners, nil
}

// SortChatPartners orders partners by last message time, newest first.
// Partners without a timestamp go last.
func SortChatPartners(partners []*models.ChatPartner) {
	sort.SliceStable(partners, func(i, j int) bool {
		a, b := partners[i].LastMessageTime, partners[j].LastMessageTime
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
}

// GetConversation returns the messages between the caller and partner and
// marks the partner's messages to the caller as read
func (s *MessageService) GetConversation(ctx context.Context, userID, partnerID string) ([]*models.Message, error) {
	if partnerID == "" {
		return nil, validationError("Partner id is required")
	}

	messages, err := s.messageRepo.Conversation(ctx, userID, partnerID)
	if err != nil {
		return nil, serverError(err)
	}

	modified, err := s.messageRepo.MarkRead(ctx, partnerID, userID)
	if err != nil {
		return nil, serverError(err)
	}
	if modified > 0 {
		for _, m := range messages {
			if m.SenderID == partnerID && m.ReceiverID == userID {
				m.Read = true
			}
		}
		s.notifyRead(partnerID, userID)
	}

	return messages, nil
}

// MarkRead marks every unread message from senderID to the caller as read
func (s *MessageService) MarkRead(ctx context.Context, userID, senderID string) (int64, error) {
	if senderID == "" {
		return 0, validationError("Sender id is required")
	}

	modified, err := s.messageRepo.MarkRead(ctx, senderID, userID)
	if err != nil {
		return 0, serverError(err)
	}
	if modified > 0 {
		s.notifyRead(senderID, userID)
	}
	return modified, nil
}

// notifyRead tells the sender that reader has read their messages
func (s *MessageService) notifyRead(senderID, readerID string) {
	if !s.events.IsOnline(senderID) {
		return
	}
	event := WSMessage{
		Type: EventMessagesRead,
		Data: models.MessagesReadEvent{ReadBy: readerID, ChatPartnerID: readerID},
	}
	if err := s.events.SendToUser(senderID, event); err != nil {
		log.Error().
			Err(err).
			Str("user_id", senderID).
			Msg("Failed to emit messagesRead")
	}
}

// SendMessage validates and stores a new message, then delivers it to the
// receiver's live connection if there is one
func (s *MessageService) SendMessage(ctx context.Context, senderID, receiverID string, req SendMessageRequest) (*models.Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Image == "" {
		return nil, validationError("Text or image is required.")
	}
	if receiverID == "" {
		return nil, validationError("Receiver id is required.")
	}
	if senderID == receiverID {
		return nil, validationError("Cannot send messages to yourself.")
	}

	exists, err := s.userRepo.Exists(ctx, receiverID)
	if err != nil {
		return nil, serverError(err)
	}
	if !exists {
		return nil, notFoundError("Receiver not found.")
	}

	var imageURL string
	if req.Image != "" {
		imageURL, err = s.media.UploadImage(ctx, FolderMessages, req.Image)
		if err != nil {
			log.Error().Err(err).Str("user_id", senderID).Msg("Image upload failed")
			return nil, classifyUploadError(err)
		}
	}

	now := s.now()
	message := &models.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, serverError(err)
	}

	s.deliver(ctx, message)

	return message, nil
}

// deliver pushes a stored message to the receiver. Failures are only logged.
func (s *MessageService) deliver(ctx context.Context, message *models.Message) {
	sender := s.senderSummary(ctx, message.SenderID)
	pushed := *message
	pushed.Sender = sender

	if s.events.IsOnline(message.ReceiverID) {
		err := s.events.SendToUser(message.ReceiverID, WSMessage{Type: EventNewMessage, Data: &pushed})
		if err == nil {
			log.Debug().
				Str("message_id", message.ID).
				Str("receiver_id", message.ReceiverID).
				Msg("Message emitted to receiver")
			return
		}
		log.Error().
			Err(err).
			Str("message_id", message.ID).
			Str("receiver_id", message.ReceiverID).
			Msg("Failed to emit newMessage")
	}

	if s.offline == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), offlinePushTimeout)
		defer cancel()

		receiver, err := s.userRepo.GetByID(ctx, message.ReceiverID)
		if err != nil {
			log.Error().Err(err).Str("receiver_id", message.ReceiverID).Msg("Failed to load receiver for push")
			return
		}
		if err := s.offline.NotifyNewMessage(ctx, receiver, sender, &pushed); err != nil {
			log.Warn().Err(err).Str("receiver_id", message.ReceiverID).Msg("Offline push failed")
		}
	}()
}

// senderSummary resolves the sender into its expanded form. A lookup failure
// still yields a summary carrying the ID.
func (s *MessageService) senderSummary(ctx context.Context, senderID string) *models.UserSummary {
	user, err := s.userRepo.GetByID(ctx, senderID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn().Err(err).Str("user_id", senderID).Msg("Failed to expand sender")
		}
		return &models.UserSummary{ID: senderID}
	}
	return user.Summary()
}
