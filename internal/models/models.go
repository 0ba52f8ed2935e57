package models

import "time"

// User represents a registered user
type User struct {
	ID         string    `json:"_id" bson:"_id"`
	Email      string    `json:"email" bson:"email"`
	FullName   string    `json:"fullName" bson:"fullName"`
	Password   string    `json:"-" bson:"password"`
	ProfilePic string    `json:"profilePic" bson:"profilePic"`
	PushToken  *string   `json:"-" bson:"pushToken,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UserSummary is the public part of a user attached to pushed messages
type UserSummary struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

// Summary returns the public view of the user
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:         u.ID,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
	}
}

// Message represents a direct message between two users
type Message struct {
	ID         string    `json:"_id" bson:"_id"`
	SenderID   string    `json:"senderId" bson:"senderId"`
	ReceiverID string    `json:"receiverId" bson:"receiverId"`
	Text       string    `json:"text,omitempty" bson:"text,omitempty"`
	Image      string    `json:"image,omitempty" bson:"image,omitempty"`
	Read       bool      `json:"read" bson:"read"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`

	// Sender is only set on pushed messages.
	Sender *UserSummary `json:"sender,omitempty" bson:"-"`
}

// PartnerOf returns the other participant of the message
func (m *Message) PartnerOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Preview is the notification text for the message, cut to limit runes
func (m *Message) Preview(limit int) string {
	if m.Text == "" {
		return "📷 Photo"
	}
	text := []rune(m.Text)
	if len(text) > limit {
		return string(text[:limit]) + "…"
	}
	return m.Text
}

// ConversationStats is the per-partner aggregate computed by the store
type ConversationStats struct {
	PartnerID       string
	UnreadCount     int
	LastMessageTime *time.Time
}

// ChatPartner is a user the caller has exchanged messages with
type ChatPartner struct {
	User
	UnreadCount     int        `json:"unreadCount"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
}

// MessagesReadEvent is pushed to a sender when the receiver reads their messages
type MessagesReadEvent struct {
	ReadBy        string `json:"readBy"`
	ChatPartnerID string `json:"chatPartnerId"`
}

// MarkReadResult is returned by the mark-read operation
type MarkReadResult struct {
	Success       bool  `json:"success"`
	ModifiedCount int64 `json:"modifiedCount"`
}
