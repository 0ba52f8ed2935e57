package services

import (
	"context"
	"fmt"

	"direct-chat-backend/internal/config"
	"direct-chat-backend/internal/models"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const previewLength = 120

// OfflineNotifier alerts a user who has no live push-channel connection
type OfflineNotifier interface {
	NotifyNewMessage(ctx context.Context, receiver *models.User, sender *models.UserSummary, message *models.Message) error
}

type apnsPusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNSNotifier sends new-message alerts through Apple Push Notification service
type APNSNotifier struct {
	client apnsPusher
	topic  string
}

// NewAPNSNotifier creates an APNs notifier using token based auth
func NewAPNSNotifier(cfg config.APNSConfig) (*APNSNotifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSNotifier{client: client, topic: cfg.Topic}, nil
}

// NotifyNewMessage pushes an alert for message to the receiver's device, if it has one
func (n *APNSNotifier) NotifyNewMessage(ctx context.Context, receiver *models.User, sender *models.UserSummary, message *models.Message) error {
	if receiver.PushToken == nil || *receiver.PushToken == "" {
		return nil
	}

	p := payload.NewPayload().
		AlertTitle(sender.FullName).
		AlertBody(message.Preview(previewLength)).
		Sound("default").
		ThreadID(sender.ID).
		Custom("senderId", sender.ID).
		Custom("messageId", message.ID)

	resp, err := n.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: *receiver.PushToken,
		Topic:       n.topic,
		PushType:    apns2.PushTypeAlert,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !resp.Sent() {
		return fmt.Errorf("push rejected: %d %s", resp.StatusCode, resp.Reason)
	}
	return nil
}
