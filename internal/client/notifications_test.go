package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"direct-chat-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu         sync.Mutex
	permission Permission
	onRequest  Permission
	requests   int
	shown      []Notification
	focused    int
}

func (n *fakeNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

func (n *fakeNotifier) RequestPermission(context.Context) (Permission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests++
	// a dismissed prompt leaves the state at default
	if n.onRequest != PermissionDenied {
		n.permission = n.onRequest
	}
	return n.onRequest, nil
}

func (n *fakeNotifier) Show(notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, notification)
	return nil
}

func (n *fakeNotifier) Focus() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.focused++
}

func (n *fakeNotifier) notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.shown...)
}

func (n *fakeNotifier) requestCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests
}

type fakeFeedback struct {
	mu     sync.Mutex
	sounds int
}

func (f *fakeFeedback) PlaySound() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sounds++
	return nil
}

func (f *fakeFeedback) Vibrate() error { return ErrUnsupported }

func (f *fakeFeedback) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sounds
}

type notifyFixture struct {
	*storeFixture
	notifier *fakeNotifier
	feedback *fakeFeedback
	n        *Notifications
}

func newNotifyFixture(t *testing.T, perm Permission) *notifyFixture {
	t.Helper()
	f := &notifyFixture{
		storeFixture: newStoreFixture(t),
		notifier:     &fakeNotifier{permission: perm, onRequest: PermissionGranted},
		feedback:     &fakeFeedback{},
	}
	f.n = NewNotifications(f.store, f.events, f.notifier, f.feedback)
	require.True(t, f.n.Start())
	t.Cleanup(f.n.Stop)
	return f
}

func TestNotifications_SingleGlobalListener(t *testing.T) {
	f := newNotifyFixture(t, PermissionGranted)

	assert.False(t, f.n.Start())
	assert.Equal(t, 1, f.events.count(EventNewMessage))

	f.open(t, bob)
	f.open(t, carol)
	assert.Equal(t, 2, f.events.count(EventNewMessage), "one global and one conversation listener")

	f.n.Stop()
	assert.Equal(t, 1, f.events.count(EventNewMessage))
}

func TestNotifications_BatchesPreviewsOutsideOpenConversation(t *testing.T) {
	f := newNotifyFixture(t, PermissionGranted)
	f.store.ToggleSound()
	f.open(t, bob)

	f.events.emit(t, EventNewMessage, msg("b1", "bob", "alice", "open chat"))

	for i, text := range []string{"one", "two", "three"} {
		m := msg(string(rune('x'+i)), "carol", "alice", text)
		m.Sender = carol.Summary()
		f.events.emit(t, EventNewMessage, m)
	}

	require.Eventually(t, func() bool { return len(f.notifier.notifications()) == 3 }, time.Second, 10*time.Millisecond)
	var bodies []string
	for _, n := range f.notifier.notifications() {
		assert.Equal(t, "Carol", n.Title)
		assert.Equal(t, carol.ProfilePic, n.Icon)
		assert.Equal(t, "carol", n.Tag)
		bodies = append(bodies, n.Body)
	}
	assert.ElementsMatch(t, []string{"one", "one\ntwo", "two\nthree"}, bodies)

	assert.Eventually(t, func() bool { return f.feedback.count() == 3 }, time.Second, 10*time.Millisecond)

	for _, n := range f.notifier.notifications() {
		assert.NotEqual(t, "bob", n.Tag, "no alert for the open conversation")
	}
}

func TestNotifications_IgnoresMessagesNotAddressedToSelf(t *testing.T) {
	f := newNotifyFixture(t, PermissionGranted)

	f.events.emit(t, EventNewMessage, msg("a1", "alice", "carol", "from my phone"))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.notifier.notifications())
}

func TestNotifications_SoundOff(t *testing.T) {
	f := newNotifyFixture(t, PermissionGranted)

	f.events.emit(t, EventNewMessage, msg("c1", "carol", "alice", "quiet"))

	require.Eventually(t, func() bool { return len(f.notifier.notifications()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, f.feedback.count())
}

func TestNotifications_PermissionRequestedLazilyOnce(t *testing.T) {
	f := newNotifyFixture(t, PermissionDefault)
	f.notifier.onRequest = PermissionDenied

	assert.Zero(t, f.notifier.requestCount(), "no prompt before the first message")

	f.events.emit(t, EventNewMessage, msg("c1", "carol", "alice", "one"))
	require.Eventually(t, func() bool { return f.notifier.requestCount() == 1 }, time.Second, 10*time.Millisecond)

	f.events.emit(t, EventNewMessage, msg("c2", "carol", "alice", "two"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.notifier.requestCount(), "a denial is never re-prompted")
	assert.Empty(t, f.notifier.notifications())
}

func TestNotifications_ClickOpensConversation(t *testing.T) {
	f := newNotifyFixture(t, PermissionGranted)
	require.NoError(t, f.store.LoadContacts(context.Background()))
	f.gateway.conversations["carol"] = []*models.Message{msg("c1", "carol", "alice", "hello")}

	f.events.emit(t, EventNewMessage, msg("c1", "carol", "alice", "hello"))
	require.Eventually(t, func() bool { return len(f.notifier.notifications()) == 1 }, time.Second, 10*time.Millisecond)

	f.notifier.notifications()[0].OnClick()

	require.Eventually(t, func() bool { return f.store.SelectedID() == "carol" }, time.Second, 10*time.Millisecond)
	snap := f.store.Snapshot()
	assert.Equal(t, "Carol", snap.Selected.FullName, "resolved against contacts")
	f.notifier.mu.Lock()
	assert.Equal(t, 1, f.notifier.focused)
	f.notifier.mu.Unlock()

	assert.Eventually(t, func() bool {
		return len(f.store.Snapshot().Messages) == 1 && !f.store.Snapshot().MessagesLoading
	}, time.Second, 10*time.Millisecond)
}

func TestNotifications_GlobalReadReceipt(t *testing.T) {
	f := newNotifyFixture(t, PermissionGranted)
	f.open(t, bob)
	_, err := f.store.Send(context.Background(), SendRequest{Text: "seen?"})
	require.NoError(t, err)

	f.events.emit(t, EventMessagesRead, models.MessagesReadEvent{ReadBy: "bob", ChatPartnerID: "bob"})

	msgs := f.store.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read)
}
