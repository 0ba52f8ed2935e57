package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"direct-chat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxSendAttempts    = 3
	sendAttemptTimeout = 10 * time.Second
	retryBackoffStep   = time.Second
)

var (
	ErrNoConversation = errors.New("no conversation is open")
	ErrEmptyMessage   = errors.New("text or image is required")
	ErrNotResendable  = errors.New("message is not a failed send")
)

// Send posts req to the open conversation. The message shows up at once as
// a sending record, and is retried up to maxSendAttempts times. On final
// failure the record stays in the list marked failed.
func (s *Store) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" && req.Image == "" {
		return nil, ErrEmptyMessage
	}

	receiverID := s.SelectedID()
	if receiverID == "" {
		return nil, ErrNoConversation
	}
	return s.send(ctx, receiverID, req)
}

// Resend drops the failed record tempID and sends its content again under a
// new temporary id, with a fresh set of attempts
func (s *Store) Resend(ctx context.Context, tempID string) (*models.Message, error) {
	var (
		req      SendRequest
		receiver string
		found    bool
	)
	s.mutate(func() {
		m := s.takeFailedLocked(tempID)
		if m == nil {
			return
		}
		req = SendRequest{Text: m.Text, Image: m.Image}
		receiver = m.ReceiverID
		found = true
		s.removeLocked(tempID)
	})
	if !found {
		return nil, ErrNotResendable
	}
	return s.send(ctx, receiver, req)
}

func (s *Store) send(ctx context.Context, receiverID string, req SendRequest) (*models.Message, error) {
	var (
		pending *models.Message
		err     error
	)
	for attempt := 1; ; attempt++ {
		pending = s.addPending(receiverID, req)
		receipts := s.receiptCount(receiverID)

		var message *models.Message
		message, err = s.attempt(ctx, receiverID, req)
		if err == nil {
			s.confirm(pending.ID, message, receipts)
			s.background(func(ctx context.Context) { s.LoadChats(ctx, true) })
			return message, nil
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("receiver_id", receiverID).
			Msg("Send attempt failed")

		if attempt == maxSendAttempts || !retryable(ctx, err) {
			break
		}
		if serr := s.sleep(ctx, time.Duration(attempt)*retryBackoffStep); serr != nil {
			err = serr
			break
		}
		s.mutate(func() { s.removeLocked(pending.ID) })
	}

	s.mutate(func() {
		failed := &ClientMessage{Message: *pending, Status: StatusFailed}
		if i := s.indexLocked(pending.ID); i >= 0 {
			failed = s.messages[i]
			failed.Status = StatusFailed
		} else if s.selected != nil && s.selected.ID == receiverID {
			s.messages = append(s.messages, failed)
		}
		// kept per partner so the failure is still listed after navigating away
		s.failed[receiverID] = append(s.failed[receiverID], failed)
		s.lastErr = errorText(err, "Failed to send message")
	})
	return nil, err
}

func (s *Store) attempt(ctx context.Context, receiverID string, req SendRequest) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.api.Send(ctx, receiverID, req)
}

// addPending appends an optimistic record if receiverID is the open partner
func (s *Store) addPending(receiverID string, req SendRequest) *models.Message {
	now := s.now()
	pending := &models.Message{
		ID:         tempIDPrefix + uuid.New().String(),
		SenderID:   s.self.ID,
		ReceiverID: receiverID,
		Text:       req.Text,
		Image:      req.Image,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mutate(func() {
		if s.selected != nil && s.selected.ID == receiverID {
			s.appendLocked(pending, StatusSending)
		}
	})
	return pending
}

// confirm swaps the optimistic record for the stored message. A read
// receipt from the receiver that arrived while the request was in flight
// (receipts is the count seen before it) covers the stored message too.
func (s *Store) confirm(tempID string, message *models.Message, receipts uint64) {
	s.mutate(func() {
		s.removeLocked(tempID)
		if s.selected == nil || s.selected.ID != message.ReceiverID {
			return
		}
		s.appendLocked(message, StatusConfirmed)
		if s.receipts[message.ReceiverID] != receipts {
			s.messages[s.indexLocked(message.ID)].Read = true
		}
	})
}

func (s *Store) receiptCount(partnerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipts[partnerID]
}

// takeFailedLocked removes and returns the failed record tempID
func (s *Store) takeFailedLocked(tempID string) *ClientMessage {
	for partnerID, records := range s.failed {
		for i, m := range records {
			if m.ID != tempID {
				continue
			}
			records = append(records[:i], records[i+1:]...)
			if len(records) == 0 {
				delete(s.failed, partnerID)
			} else {
				s.failed[partnerID] = records
			}
			return m
		}
	}
	return nil
}

// retryable reports whether another attempt could succeed
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
