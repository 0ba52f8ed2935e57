package client

import (
	"encoding/json"
	"sort"
	"sync"
)

// Push channel event names
const (
	EventNewMessage   = "newMessage"
	EventMessagesRead = "messagesRead"
	EventError        = "error"
	EventPong         = "pong"
)

// Handler receives the raw data of one event
type Handler func(data json.RawMessage)

// EventSource hands out listeners on push channel events
type EventSource interface {
	Subscribe(event string, fn Handler) *Subscription
}

// Subscription is the handle of a registered listener. Closing it is the only
// way to unregister, and closing twice is a no-op.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Close unregisters the listener
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// listeners is a registry of handlers per event name
type listeners struct {
	mu     sync.Mutex
	nextID int
	byType map[string]map[int]Handler
}

func (l *listeners) Subscribe(event string, fn Handler) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byType == nil {
		l.byType = make(map[string]map[int]Handler)
	}
	if l.byType[event] == nil {
		l.byType[event] = make(map[int]Handler)
	}
	l.nextID++
	id := l.nextID
	l.byType[event][id] = fn

	return newSubscription(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.byType[event], id)
	})
}

// dispatch calls every handler of event in registration order
func (l *listeners) dispatch(event string, data json.RawMessage) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.byType[event]))
	for id := range l.byType[event] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, l.byType[event][id])
	}
	l.mu.Unlock()

	for _, fn := range handlers {
		fn(data)
	}
}

func (l *listeners) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byType[event])
}

// Detached returns an event source that never fires, for one-shot commands
// that run without a push channel
func Detached() EventSource {
	return &listeners{}
}
