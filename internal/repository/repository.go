package repository

import (
	"context"
	"errors"

	"direct-chat-backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// UserRepository handles persistence of users
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	// ListExcept returns every user but the given one.
	ListExcept(ctx context.Context, id string) ([]*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	UpdateProfile(ctx context.Context, id, fullName, profilePic string) (*models.User, error)
	UpdatePushToken(ctx context.Context, id string, pushToken *string) error
}

// MessageRepository handles persistence of messages
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// Conversation returns all messages exchanged between a and b in store order.
	Conversation(ctx context.Context, a, b string) ([]*models.Message, error)
	// MarkRead flips read=true on unread messages from sender to receiver
	// and returns how many changed.
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
	// Stats aggregates unread count and last activity per partner of userID.
	Stats(ctx context.Context, userID string) ([]models.ConversationStats, error)
}
