package postgres

import (
	"context"
	"fmt"
	"time"

	"direct-chat-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles database operations for messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		message.ID, message.SenderID, message.ReceiverID, message.Text, message.Image,
		message.Read, message.CreatedAt, message.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Conversation returns every message exchanged between a and b in insertion order
func (r *MessageRepository) Conversation(ctx context.Context, a, b string) ([]*models.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, text, image, read, created_at, updated_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY seq
	`
	rows, err := r.db.Query(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image,
			&m.Read, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// MarkRead marks unread messages from sender to receiver as read
func (r *MessageRepository) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	query := `
		UPDATE messages SET read = TRUE, updated_at = $3
		WHERE sender_id = $1 AND receiver_id = $2 AND read = FALSE
	`
	result, err := r.db.Exec(ctx, query, senderID, receiverID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages as read: %w", err)
	}
	return result.RowsAffected(), nil
}

// statsQuery counts unread messages addressed to $1 and the latest
// activity, grouped by the other participant
const statsQuery = `
	SELECT
		CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id,
		COUNT(*) FILTER (WHERE receiver_id = $1 AND read = FALSE) AS unread,
		MAX(created_at) AS last_message_time
	FROM messages
	WHERE sender_id = $1 OR receiver_id = $1
	GROUP BY partner_id
`

// Stats groups the user's messages by partner
func (r *MessageRepository) Stats(ctx context.Context, userID string) ([]models.ConversationStats, error) {
	rows, err := r.db.Query(ctx, statsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversations: %w", err)
	}
	defer rows.Close()

	var stats []models.ConversationStats
	for rows.Next() {
		var s models.ConversationStats
		if err := rows.Scan(&s.PartnerID, &s.UnreadCount, &s.LastMessageTime); err != nil {
			return nil, fmt.Errorf("failed to scan conversation stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation stats: %w", err)
	}
	return stats, nil
}
