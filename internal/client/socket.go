package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const socketWriteWait = 10 * time.Second

type envelope struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Socket is a live push channel connection. Events are dispatched to
// subscribers one at a time from a single reader goroutine.
type Socket struct {
	listeners

	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
	err     error
}

// Dial opens the push channel at url, as returned by API.SocketURL
func Dial(ctx context.Context, url string) (*Socket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &APIError{Status: resp.StatusCode, Message: "invalid token"}
		}
		return nil, fmt.Errorf("failed to connect push channel: %w", err)
	}

	s := &Socket{
		conn: conn,
		done: make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// Done is closed when the connection ends
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Err returns why the connection ended, nil after Close
func (s *Socket) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Ping sends an application level ping; the server answers with a pong event
func (s *Socket) Ping() error {
	return s.write(envelope{Type: "ping"})
}

// Close ends the connection
func (s *Socket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(socketWriteWait))
	s.writeMu.Unlock()
	s.finish(nil)
	return nil
}

func (s *Socket) write(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *Socket) finish(err error) {
	s.once.Do(func() {
		s.err = err
		s.conn.Close()
		close(s.done)
	})
}

func (s *Socket) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			s.finish(err)
			return
		}

		var ev envelope
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed push event")
			continue
		}
		if ev.Type == EventError {
			log.Warn().Str("message", ev.Message).Msg("Push channel error")
		}
		s.dispatch(ev.Type, ev.Data)
	}
}
