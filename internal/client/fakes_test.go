package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"direct-chat-backend/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu            sync.Mutex
	contacts      []*models.User
	chats         []*models.ChatPartner
	conversations map[string][]*models.Message
	contactsErr   error
	chatsErr      error
	sendErrs      []error
	sent          []SendRequest
	sendCalls     int
	markReadCalls []string
	chatsCalls    int
	seq           int

	// afterSend runs once the message is stored, before Send returns
	afterSend func(*models.Message)
}

func (g *fakeGateway) Contacts(context.Context) ([]*models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contacts, g.contactsErr
}

func (g *fakeGateway) Chats(context.Context) ([]*models.ChatPartner, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatsCalls++
	return g.chats, g.chatsErr
}

func (g *fakeGateway) Conversation(_ context.Context, partnerID string) ([]*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conversations[partnerID], nil
}

// Send returns the queued errors in order, repeating the last one; a nil
// entry means success
func (g *fakeGateway) Send(_ context.Context, receiverID string, req SendRequest) (*models.Message, error) {
	g.mu.Lock()
	g.sendCalls++
	g.sent = append(g.sent, req)
	if len(g.sendErrs) > 0 {
		err := g.sendErrs[0]
		if len(g.sendErrs) > 1 {
			g.sendErrs = g.sendErrs[1:]
		}
		if err != nil {
			g.mu.Unlock()
			return nil, err
		}
	}
	g.seq++
	m := &models.Message{
		ID:         fmt.Sprintf("srv-%d", g.seq),
		SenderID:   "alice",
		ReceiverID: receiverID,
		Text:       req.Text,
		Image:      req.Image,
	}
	hook := g.afterSend
	g.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return m, nil
}

func (g *fakeGateway) MarkRead(_ context.Context, senderID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markReadCalls = append(g.markReadCalls, senderID)
	return 1, nil
}

func (g *fakeGateway) failSends(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendErrs = errs
}

func (g *fakeGateway) recover() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendErrs = nil
}

func (g *fakeGateway) markReads() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.markReadCalls...)
}

// fakeEvents is an in-process push channel
type fakeEvents struct {
	listeners
}

func (e *fakeEvents) emit(t *testing.T, event string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	e.dispatch(event, data)
}

type memPrefs struct {
	mu     sync.Mutex
	values map[string]bool
}

func (p *memPrefs) Bool(key string, def bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (p *memPrefs) SetBool(key string, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.values == nil {
		p.values = make(map[string]bool)
	}
	p.values[key] = value
	return nil
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

var (
	alice = &models.User{ID: "alice", FullName: "Alice"}
	bob   = &models.User{ID: "bob", FullName: "Bob"}
	carol = &models.User{ID: "carol", FullName: "Carol", ProfilePic: "https://cdn/carol.png"}
)

type storeFixture struct {
	gateway *fakeGateway
	events  *fakeEvents
	prefs   *memPrefs
	sleeps  *recordedSleeps
	store   *Store
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	f := &storeFixture{
		gateway: &fakeGateway{
			contacts:      []*models.User{bob, carol},
			conversations: map[string][]*models.Message{},
		},
		events: &fakeEvents{},
		prefs:  &memPrefs{},
		sleeps: &recordedSleeps{},
	}
	f.store = NewStore(alice, f.gateway, f.events, f.prefs)
	f.store.sleep = f.sleeps.sleep
	t.Cleanup(f.store.Close)
	return f
}

func (f *storeFixture) open(t *testing.T, partner *models.User) {
	t.Helper()
	require.NoError(t, f.store.OpenConversation(context.Background(), partner))
}

func msg(id, from, to, text string) *models.Message {
	return &models.Message{ID: id, SenderID: from, ReceiverID: to, Text: text}
}
