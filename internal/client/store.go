package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"direct-chat-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// MessageStatus is the client-side delivery state of a message
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusConfirmed MessageStatus = "confirmed"
	StatusFailed    MessageStatus = "failed"
)

// Sidebar tabs
const (
	TabChats    = "chats"
	TabContacts = "contacts"
)

const (
	tempIDPrefix      = "temp-"
	previewBatch      = 2
	backgroundTimeout = 10 * time.Second
)

// ClientMessage is a message as held by the store
type ClientMessage struct {
	models.Message
	Status MessageStatus `json:"status"`
}

// Temporary reports whether the message is an unconfirmed local record
func (m *ClientMessage) Temporary() bool {
	return strings.HasPrefix(m.ID, tempIDPrefix)
}

// Snapshot is a copy of the store state handed to observers
type Snapshot struct {
	Self            models.User
	Selected        *models.User
	Messages        []ClientMessage
	Chats           []models.ChatPartner
	Contacts        []models.User
	UsersLoading    bool
	MessagesLoading bool
	SoundEnabled    bool
	ActiveTab       string
	Error           string
}

// Store holds the client view of one signed-in session. It is created at
// login with NewStore and torn down with Close.
type Store struct {
	self   models.User
	api    Gateway
	events EventSource
	prefs  PreferenceStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	closed          bool
	selected        *models.User
	messages        []*ClientMessage
	chats           []*models.ChatPartner
	contacts        []*models.User
	usersLoading    bool
	messagesLoading bool
	soundEnabled    bool
	activeTab       string
	lastErr         string
	previews        map[string][]string
	receipts        map[string]uint64
	failed          map[string][]*ClientMessage
	convGen         uint64
	conversation    []*Subscription

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]func(Snapshot)

	sendTimeout time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// NewStore creates the store for self. The sound preference is read from prefs.
func NewStore(self *models.User, api Gateway, events EventSource, prefs PreferenceStore) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		self:        *self,
		api:         api,
		events:      events,
		prefs:       prefs,
		ctx:         ctx,
		cancel:      cancel,
		activeTab:   TabChats,
		previews:    make(map[string][]string),
		receipts:    make(map[string]uint64),
		failed:      make(map[string][]*ClientMessage),
		observers:   make(map[int]func(Snapshot)),
		sendTimeout: sendAttemptTimeout,
		sleep:       sleepContext,
		now:         time.Now,
	}

	if prefs != nil {
		enabled, err := prefs.Bool(PrefSoundEnabled, false)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read sound preference")
		}
		s.soundEnabled = enabled
	}
	return s
}

// Self returns the signed-in user
func (s *Store) Self() models.User {
	return s.self
}

// Observe registers fn to receive a snapshot after every state change.
// fn is called once immediately with the current state.
func (s *Store) Observe(fn func(Snapshot)) *Subscription {
	s.obsMu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers[id] = fn
	s.obsMu.Unlock()

	fn(s.Snapshot())

	return newSubscription(func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	})
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Self:            s.self,
		UsersLoading:    s.usersLoading,
		MessagesLoading: s.messagesLoading,
		SoundEnabled:    s.soundEnabled,
		ActiveTab:       s.activeTab,
		Error:           s.lastErr,
		Messages:        make([]ClientMessage, 0, len(s.messages)),
		Chats:           make([]models.ChatPartner, 0, len(s.chats)),
		Contacts:        make([]models.User, 0, len(s.contacts)),
	}
	if s.selected != nil {
		selected := *s.selected
		snap.Selected = &selected
	}
	for _, m := range s.messages {
		snap.Messages = append(snap.Messages, *m)
	}
	for _, c := range s.chats {
		snap.Chats = append(snap.Chats, *c)
	}
	for _, c := range s.contacts {
		snap.Contacts = append(snap.Contacts, *c)
	}
	return snap
}

// mutate applies fn under the state lock and then notifies observers
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obsMu.Lock()
	observers := make([]func(Snapshot), 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.obsMu.Unlock()

	for _, o := range observers {
		o(snap)
	}
}

// background runs fn on its own goroutine, bounded by the session lifetime
func (s *Store) background(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Close releases listeners and waits for background work
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeConversationLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.obsMu.Lock()
	s.observers = make(map[int]func(Snapshot))
	s.obsMu.Unlock()
}

// LoadContacts fetches every other user
func (s *Store) LoadContacts(ctx context.Context) error {
	s.mutate(func() { s.usersLoading = true })

	users, err := s.api.Contacts(ctx)

	s.mutate(func() {
		s.usersLoading = false
		if err != nil {
			s.contacts = nil
			s.lastErr = errorText(err, "Failed to load contacts")
			return
		}
		s.contacts = users
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load contacts")
	}
	return err
}

// LoadChats fetches the chat partners. A silent load leaves the loading flag alone.
func (s *Store) LoadChats(ctx context.Context, silent bool) error {
	if !silent {
		s.mutate(func() { s.usersLoading = true })
	}

	partners, err := s.api.Chats(ctx)

	s.mutate(func() {
		if !silent {
			s.usersLoading = false
		}
		if err != nil {
			s.chats = nil
			s.lastErr = errorText(err, "Failed to load chats")
			return
		}
		s.chats = partners
	})
	if err != nil {
		log.Warn().Err(err).Bool("silent", silent).Msg("Failed to load chats")
	}
	return err
}

// OpenConversation selects partner, replaces the conversation listeners and
// loads the message history
func (s *Store) OpenConversation(ctx context.Context, partner *models.User) error {
	if partner == nil || partner.ID == "" {
		return errors.New("partner is required")
	}
	selected := *partner

	var gen uint64
	s.mutate(func() {
		s.closeConversationLocked()
		s.convGen++
		gen = s.convGen

		s.selected = &selected
		s.messages = nil
		s.messagesLoading = true
		delete(s.previews, selected.ID)

		s.conversation = []*Subscription{
			s.events.Subscribe(EventNewMessage, s.conversationMessage(gen, selected.ID)),
			s.events.Subscribe(EventMessagesRead, s.conversationRead(gen, selected.ID)),
		}
	})

	messages, err := s.api.Conversation(ctx, selected.ID)

	stale := false
	s.mutate(func() {
		if gen != s.convGen {
			stale = true
			return
		}
		s.messagesLoading = false
		if err != nil {
			s.messages = nil
			s.lastErr = errorText(err, "Something went wrong")
			return
		}

		// events delivered during the load are kept after the history
		live := s.messages
		s.messages = make([]*ClientMessage, 0, len(messages)+len(live))
		for _, m := range messages {
			s.appendLocked(m, StatusConfirmed)
		}
		for _, m := range live {
			if s.indexLocked(m.ID) < 0 {
				s.messages = append(s.messages, m)
			}
		}
		for _, m := range s.failed[selected.ID] {
			if s.indexLocked(m.ID) < 0 {
				s.messages = append(s.messages, m)
			}
		}
	})
	if stale {
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Str("partner_id", selected.ID).Msg("Failed to load conversation")
		return err
	}

	// the fetch marked the partner's messages read on the server
	s.background(func(ctx context.Context) { s.LoadChats(ctx, true) })
	return nil
}

// CloseConversation deselects the partner and drops its listeners
func (s *Store) CloseConversation() {
	s.mutate(func() {
		s.closeConversationLocked()
		s.convGen++
		s.selected = nil
		s.messages = nil
		s.messagesLoading = false
	})
}

func (s *Store) closeConversationLocked() {
	for _, sub := range s.conversation {
		sub.Close()
	}
	s.conversation = nil
}

// conversationMessage appends messages exchanged with partnerID while that
// conversation is open
func (s *Store) conversationMessage(gen uint64, partnerID string) Handler {
	return func(data json.RawMessage) {
		var m models.Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed newMessage")
			return
		}

		fromPartner := m.SenderID == partnerID && m.ReceiverID == s.self.ID
		toPartner := m.SenderID == s.self.ID && m.ReceiverID == partnerID
		if !fromPartner && !toPartner {
			return
		}

		appended := false
		s.mutate(func() {
			if gen != s.convGen {
				return
			}
			appended = s.appendLocked(&m, StatusConfirmed)
		})

		if appended && fromPartner {
			s.background(func(ctx context.Context) {
				if _, err := s.MarkRead(ctx, partnerID); err != nil {
					log.Warn().Err(err).Str("partner_id", partnerID).Msg("Failed to mark messages read")
				}
			})
		}
	}
}

// conversationRead applies read receipts from the open partner
func (s *Store) conversationRead(gen uint64, partnerID string) Handler {
	return func(data json.RawMessage) {
		var ev models.MessagesReadEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed messagesRead")
			return
		}
		if ev.ChatPartnerID != partnerID {
			return
		}
		s.mutate(func() {
			if gen != s.convGen {
				return
			}
			s.markSentReadLocked(partnerID)
		})
	}
}

// ApplyReadReceipt flips every message the caller sent to partnerID to read
func (s *Store) ApplyReadReceipt(partnerID string) {
	s.mutate(func() { s.markSentReadLocked(partnerID) })
}

func (s *Store) markSentReadLocked(partnerID string) {
	s.receipts[partnerID]++
	for _, m := range s.messages {
		if m.SenderID == s.self.ID && m.ReceiverID == partnerID && !m.Read && !m.Temporary() {
			m.Read = true
		}
	}
}

// MarkRead marks everything from senderID as read and refreshes the chats
func (s *Store) MarkRead(ctx context.Context, senderID string) (int64, error) {
	modified, err := s.api.MarkRead(ctx, senderID)
	if err != nil {
		return 0, err
	}

	s.mutate(func() {
		for _, m := range s.messages {
			if m.SenderID == senderID && m.ReceiverID == s.self.ID {
				m.Read = true
			}
		}
	})
	_ = s.LoadChats(ctx, true)
	return modified, nil
}

// ToggleSound flips and persists the sound preference
func (s *Store) ToggleSound() bool {
	var enabled bool
	s.mutate(func() {
		s.soundEnabled = !s.soundEnabled
		enabled = s.soundEnabled
	})
	if s.prefs != nil {
		if err := s.prefs.SetBool(PrefSoundEnabled, enabled); err != nil {
			log.Warn().Err(err).Msg("Failed to persist sound preference")
		}
	}
	return enabled
}

// SoundEnabled reports the sound preference
func (s *Store) SoundEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soundEnabled
}

// SetActiveTab switches between the chats and contacts lists
func (s *Store) SetActiveTab(tab string) error {
	if tab != TabChats && tab != TabContacts {
		return fmt.Errorf("unknown tab %q", tab)
	}
	s.mutate(func() { s.activeTab = tab })
	return nil
}

// DismissError clears the surfaced error
func (s *Store) DismissError() {
	s.mutate(func() { s.lastErr = "" })
}

// SelectedID returns the open partner, or "" when none is open
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return ""
	}
	return s.selected.ID
}

// FindUser resolves id against the chat partners, then the contacts
func (s *Store) FindUser(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.ID == id {
			u := c.User
			return &u
		}
	}
	for _, c := range s.contacts {
		if c.ID == id {
			u := *c
			return &u
		}
	}
	return nil
}

// pushPreview records a preview for senderID and returns the batch to show,
// oldest first
func (s *Store) pushPreview(senderID, preview string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := append(s.previews[senderID], preview)
	if len(batch) > previewBatch {
		batch = batch[len(batch)-previewBatch:]
	}
	s.previews[senderID] = batch
	return append([]string(nil), batch...)
}

// appendLocked adds m unless a message with the same id is already held
func (s *Store) appendLocked(m *models.Message, status MessageStatus) bool {
	if s.indexLocked(m.ID) >= 0 {
		return false
	}
	s.messages = append(s.messages, &ClientMessage{Message: *m, Status: status})
	return true
}

func (s *Store) indexLocked(id string) int {
	for i, m := range s.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(id string) {
	if i := s.indexLocked(id); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
	}
}

// errorText prefers the gateway's message over fallback
func errorText(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
