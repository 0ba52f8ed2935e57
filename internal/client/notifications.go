package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"direct-chat-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const previewLength = 120

// Permission is the desktop notification permission state
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ErrUnsupported is returned by feedback the device cannot produce
var ErrUnsupported = errors.New("not supported on this device")

// Notification is one desktop alert. OnClick runs when the user activates it.
type Notification struct {
	Title   string
	Body    string
	Icon    string
	Tag     string
	OnClick func()
}

// Notifier shows desktop notifications
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(n Notification) error
	// Focus brings the application to the front
	Focus()
}

// Feedback produces local alert feedback
type Feedback interface {
	PlaySound() error
	Vibrate() error
}

// Notifications keeps the session-wide push listeners: chat list refresh,
// desktop alerts for messages outside the open conversation, and read
// receipts for every conversation
type Notifications struct {
	store    *Store
	events   EventSource
	notifier Notifier
	feedback Feedback

	mu     sync.Mutex
	subs   []*Subscription
	denied bool
}

// NewNotifications creates the subsystem. feedback may be nil.
func NewNotifications(store *Store, events EventSource, notifier Notifier, feedback Feedback) *Notifications {
	return &Notifications{
		store:    store,
		events:   events,
		notifier: notifier,
		feedback: feedback,
	}
}

// Start registers the listeners. It returns false if they are already registered.
func (n *Notifications) Start() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs != nil {
		return false
	}
	n.subs = []*Subscription{
		n.events.Subscribe(EventNewMessage, n.handleMessage),
		n.events.Subscribe(EventMessagesRead, n.handleRead),
	}
	return true
}

// Stop unregisters the listeners
func (n *Notifications) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		sub.Close()
	}
	n.subs = nil
}

func (n *Notifications) handleMessage(data json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed newMessage")
		return
	}
	if m.ReceiverID != n.store.Self().ID {
		return
	}

	n.store.background(func(ctx context.Context) { n.store.LoadChats(ctx, true) })

	if n.store.SelectedID() == m.SenderID {
		return
	}

	batch := n.store.pushPreview(m.SenderID, m.Preview(previewLength))
	sound := n.store.SoundEnabled()

	n.store.background(func(ctx context.Context) {
		if n.permitted(ctx) {
			n.show(&m, batch)
		}
		if sound {
			n.alert()
		}
	})
}

func (n *Notifications) handleRead(data json.RawMessage) {
	var ev models.MessagesReadEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed messagesRead")
		return
	}
	n.store.ApplyReadReceipt(ev.ChatPartnerID)
}

// permitted asks for permission on first need and never again once denied
func (n *Notifications) permitted(ctx context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.notifier.Permission() {
	case PermissionGranted:
		return true
	case PermissionDenied:
		n.denied = true
		return false
	}
	if n.denied {
		return false
	}

	perm, err := n.notifier.RequestPermission(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Notification permission request failed")
		return false
	}
	if perm == PermissionDenied {
		n.denied = true
	}
	return perm == PermissionGranted
}

func (n *Notifications) show(m *models.Message, batch []string) {
	title := "New message"
	icon := ""
	switch {
	case m.Sender != nil && m.Sender.FullName != "":
		title, icon = m.Sender.FullName, m.Sender.ProfilePic
	default:
		if u := n.store.FindUser(m.SenderID); u != nil {
			title, icon = u.FullName, u.ProfilePic
		}
	}

	senderID, sender := m.SenderID, m.Sender
	err := n.notifier.Show(Notification{
		Title:   title,
		Body:    strings.Join(batch, "\n"),
		Icon:    icon,
		Tag:     senderID,
		OnClick: func() { n.open(senderID, sender) },
	})
	if err != nil {
		log.Warn().Err(err).Str("sender_id", senderID).Msg("Failed to show notification")
	}
}

func (n *Notifications) alert() {
	if n.feedback == nil {
		return
	}
	if err := n.feedback.PlaySound(); err != nil {
		log.Debug().Err(err).Msg("Failed to play notification sound")
	}
	if err := n.feedback.Vibrate(); err != nil && !errors.Is(err, ErrUnsupported) {
		log.Debug().Err(err).Msg("Failed to vibrate")
	}
}

// open focuses the app and opens the conversation with senderID
func (n *Notifications) open(senderID string, sender *models.UserSummary) {
	n.notifier.Focus()

	user := n.store.FindUser(senderID)
	if user == nil {
		user = &models.User{ID: senderID}
		if sender != nil {
			user.FullName = sender.FullName
			user.ProfilePic = sender.ProfilePic
		}
	}

	n.store.background(func(ctx context.Context) {
		if err := n.store.OpenConversation(ctx, user); err != nil {
			log.Warn().Err(err).Str("partner_id", senderID).Msg("Failed to open conversation from notification")
		}
	})
}
