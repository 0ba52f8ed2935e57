package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"direct-chat-backend/internal/client"
	"direct-chat-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "tok-alice"

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()

	alice := models.User{ID: "u1", FullName: "Alice", Email: "alice@example.com"}
	bob := models.User{ID: "u2", FullName: "Bob", Email: "bob@example.com"}

	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+testToken {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized - Invalid token"})
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret123" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, client.AuthResponse{User: alice, Token: testToken})
	})
	mux.HandleFunc("GET /api/v1/auth/check", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, alice)
	}))
	mux.HandleFunc("GET /api/v1/messages/contacts", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.User{bob})
	}))
	mux.HandleFunc("GET /api/v1/messages/chats", authed(func(w http.ResponseWriter, r *http.Request) {
		last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		writeJSON(w, http.StatusOK, []models.ChatPartner{{User: bob, UnreadCount: 2, LastMessageTime: &last}})
	}))
	mux.HandleFunc("PUT /api/v1/messages/mark-read/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.MarkReadResult{ModifiedCount: 2})
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	server  string
	dataDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return &harness{server: newGateway(t).URL, dataDir: t.TempDir()}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", h.server, "--data-dir", h.dataDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginPersistsSession(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "login", "--email", "alice@example.com", "--password", "secret123")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Alice (u1)")

	out, err = h.run(t, "contacts")
	require.NoError(t, err)
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "bob@example.com")
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "login", "--email", "alice@example.com", "--password", "nope")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid credentials", apiErr.Message)

	_, err = h.run(t, "contacts")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLogoutForgetsSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "login", "--email", "alice@example.com", "--password", "secret123")
	require.NoError(t, err)
	_, err = h.run(t, "logout")
	require.NoError(t, err)

	_, err = h.run(t, "chats")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestChatsJSON(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "login", "--email", "alice@example.com", "--password", "secret123")
	require.NoError(t, err)

	out, err := h.run(t, "--format", "json", "chats")
	require.NoError(t, err)

	var chats []models.ChatPartner
	require.NoError(t, json.Unmarshal([]byte(out), &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, "u2", chats[0].ID)
	assert.Equal(t, 2, chats[0].UnreadCount)
}

func TestMarkRead(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "login", "--email", "alice@example.com", "--password", "secret123")
	require.NoError(t, err)

	out, err := h.run(t, "mark-read", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "Marked 2 message(s) read")
}

func TestSoundToggle(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "sound")
	require.NoError(t, err)
	assert.Contains(t, out, "sound on")

	out, err = h.run(t, "sound")
	require.NoError(t, err)
	assert.Contains(t, out, "sound off")
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--format", "xml", "contacts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestFormatMessage(t *testing.T) {
	bob := &models.User{ID: "u2", FullName: "Bob"}
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

	tests := []struct {
		name string
		msg  client.ClientMessage
		want string
	}{
		{
			name: "incoming",
			msg:  client.ClientMessage{Message: models.Message{ID: "m1", SenderID: "u2", Text: "hi", CreatedAt: at}},
			want: "09:30 [Bob] hi",
		},
		{
			name: "sent unread",
			msg:  client.ClientMessage{Message: models.Message{ID: "m2", SenderID: "u1", Text: "yo", CreatedAt: at}},
			want: "09:30 [me] yo ✓",
		},
		{
			name: "sent read with image",
			msg:  client.ClientMessage{Message: models.Message{ID: "m3", SenderID: "u1", Image: "https://img", Read: true, CreatedAt: at}},
			want: "09:30 [me] [image] ✓✓",
		},
		{
			name: "failed",
			msg: client.ClientMessage{
				Message: models.Message{ID: "temp-1", SenderID: "u1", Text: "lost"},
				Status:  client.StatusFailed,
			},
			want: "[me] lost (failed, /resend temp-1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMessage("u1", bob, tt.msg))
		})
	}
}

func TestWatcherRendersOnce(t *testing.T) {
	var out bytes.Buffer
	w := &watcher{session: &session{self: &models.User{ID: "u1"}}, out: &out, printed: map[string]bool{}}

	bob := &models.User{ID: "u2", FullName: "Bob"}
	m := client.ClientMessage{Message: models.Message{ID: "m1", SenderID: "u2", Text: "hi"}}
	snap := client.Snapshot{Selected: bob, Messages: []client.ClientMessage{m}}

	w.render(snap)
	w.render(snap)

	assert.Equal(t, 1, strings.Count(out.String(), "[Bob] hi"))
	assert.Equal(t, 1, strings.Count(out.String(), "--- Bob ---"))

	snap.Error = "Failed to send message"
	w.render(snap)
	assert.Contains(t, out.String(), "error: Failed to send message")
}

func TestReadLinesStopsWithContext(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	go func() { _, _ = pw.Write([]byte("first\nsecond\n")) }()

	ctx, cancel := context.WithCancel(context.Background())
	lines := readLines(ctx, pr)

	assert.Equal(t, "first", <-lines)
	cancel()

	// input is still open; the pending line is dropped and the channel closed
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-lines:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
