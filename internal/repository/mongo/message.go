package mongo

import (
	"context"
	"fmt"
	"time"

	"direct-chat-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository stores messages in the messages collection
type MessageRepository struct {
	coll *mongo.Collection
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{coll: db.Collection(messageCollection)}
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if _, err := r.coll.InsertOne(ctx, message); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Conversation returns every message exchanged between a and b, oldest first
func (r *MessageRepository) Conversation(ctx context.Context, a, b string) ([]*models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"senderId": a, "receiverId": b},
		bson.M{"senderId": b, "receiverId": a},
	}}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*models.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return messages, nil
}

// MarkRead marks unread messages from sender to receiver as read
func (r *MessageRepository) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	result, err := r.coll.UpdateMany(ctx,
		bson.M{"senderId": senderID, "receiverId": receiverID, "read": false},
		bson.M{"$set": bson.M{"read": true, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages as read: %w", err)
	}
	return result.ModifiedCount, nil
}

type statsRow struct {
	PartnerID string    `bson:"_id"`
	Unread    int       `bson:"unread"`
	Last      time.Time `bson:"last"`
}

// Stats groups the user's messages by partner
func (r *MessageRepository) Stats(ctx context.Context, userID string) ([]models.ConversationStats, error) {
	cursor, err := r.coll.Aggregate(ctx, statsPipeline(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []statsRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode conversation stats: %w", err)
	}

	stats := make([]models.ConversationStats, 0, len(rows))
	for _, row := range rows {
		s := models.ConversationStats{PartnerID: row.PartnerID, UnreadCount: row.Unread}
		if !row.Last.IsZero() {
			last := row.Last
			s.LastMessageTime = &last
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// statsPipeline counts unread messages addressed to userID and the latest
// activity, grouped by the other participant
func statsPipeline(userID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"senderId": userID},
			bson.M{"receiverId": userID},
		}}}},
		{{Key: "$project", Value: bson.M{
			"createdAt": 1,
			"partner": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$senderId", userID}}, "$receiverId", "$senderId",
			}},
			"unread": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiverId", userID}},
					bson.M{"$eq": bson.A{"$read", false}},
				}}, 1, 0,
			}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$partner",
			"unread": bson.M{"$sum": "$unread"},
			"last":   bson.M{"$max": "$createdAt"},
		}}},
	}
}
