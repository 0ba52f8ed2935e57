package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"direct-chat-backend/internal/models"
	"direct-chat-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens map[string]string

func (t tokens) ValidateJWT(token string) (string, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid")
}

type stubGateway struct {
	sendErr   error
	lastSend  services.SendMessageRequest
	lastUser  string
	lastParam string
	modified  int64
	partners  []*models.ChatPartner
}

func (g *stubGateway) ListContacts(_ context.Context, userID string) ([]*models.User, error) {
	g.lastUser = userID
	return []*models.User{{ID: "bob", FullName: "Bob", Password: "secret"}}, nil
}

func (g *stubGateway) ListChatPartners(_ context.Context, userID string) ([]*models.ChatPartner, error) {
	g.lastUser = userID
	return g.partners, nil
}

func (g *stubGateway) GetConversation(_ context.Context, userID, partnerID string) ([]*models.Message, error) {
	g.lastUser, g.lastParam = userID, partnerID
	if partnerID == "broken" {
		return nil, fmt.Errorf("wrapped: %w", &services.Error{Kind: services.ErrServer, Message: "Internal server error", Err: errors.New("mongo: connection refused")})
	}
	return []*models.Message{}, nil
}

func (g *stubGateway) MarkRead(_ context.Context, userID, senderID string) (int64, error) {
	g.lastUser, g.lastParam = userID, senderID
	return g.modified, nil
}

func (g *stubGateway) SendMessage(_ context.Context, senderID, receiverID string, req services.SendMessageRequest) (*models.Message, error) {
	g.lastUser, g.lastParam, g.lastSend = senderID, receiverID, req
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	return &models.Message{ID: "m1", SenderID: senderID, ReceiverID: receiverID, Text: req.Text}, nil
}

type stubAccounts struct{}

func (stubAccounts) Signup(_ context.Context, req services.SignupRequest) (*services.AuthResponse, error) {
	if req.Email == "" {
		return nil, &services.Error{Kind: services.ErrValidation, Message: "Email is required"}
	}
	return &services.AuthResponse{User: &models.User{ID: "new", Email: req.Email}, Token: "tok"}, nil
}

func (stubAccounts) Login(_ context.Context, _ services.LoginRequest) (*services.AuthResponse, error) {
	return nil, &services.Error{Kind: services.ErrUnauthorized, Message: "Invalid credentials"}
}

func (stubAccounts) GetUser(_ context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID, FullName: "Alice"}, nil
}

func (stubAccounts) UpdateProfile(_ context.Context, userID string, req services.UpdateProfileRequest) (*models.User, error) {
	return &models.User{ID: userID, FullName: req.FullName}, nil
}

func (stubAccounts) UpdatePushToken(_ context.Context, _, _ string) error {
	return nil
}

type fixture struct {
	gateway *stubGateway
	hub     *services.WSHub
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{gateway: &stubGateway{}, hub: services.NewWSHub()}
	validator := tokens{"alice-token": "alice"}
	router := NewRouter(RouterDeps{
		Users:     NewUserHandler(stubAccounts{}),
		Messages:  NewMessageHandler(f.gateway, f.hub),
		WebSocket: NewWebSocketHandler(f.hub, validator, "*"),
		Tokens:    validator,
	})
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	t.Cleanup(f.hub.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestRoutes_RequireAuth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/api/v1/messages/contacts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetContacts_OmitsPassword(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/v1/messages/contacts", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", f.gateway.lastUser)
	assert.Contains(t, string(body), `"fullName":"Bob"`)
	assert.NotContains(t, string(body), "secret")
}

func TestGetChatPartners_FlattensUser(t *testing.T) {
	f := newFixture(t)
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.gateway.partners = []*models.ChatPartner{
		{User: models.User{ID: "bob", FullName: "Bob"}, UnreadCount: 2, LastMessageTime: &last},
	}

	resp, body := f.do(t, http.MethodGet, "/api/v1/messages/chats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0]["_id"])
	assert.Equal(t, float64(2), got[0]["unreadCount"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got[0]["lastMessageTime"])
}

func TestSendMessage_Created(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/v1/messages/send/bob", `{"text":"hello"}`)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "bob", f.gateway.lastParam)
	assert.Equal(t, "hello", f.gateway.lastSend.Text)

	var m models.Message
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, "m1", m.ID)
}

func TestSendMessage_ErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{&services.Error{Kind: services.ErrValidation, Message: "Text or image is required."}, http.StatusBadRequest, "Text or image is required."},
		{&services.Error{Kind: services.ErrNotFound, Message: "Receiver not found."}, http.StatusNotFound, "Receiver not found."},
		{&services.Error{Kind: services.ErrUploadFailed, Message: "Failed to upload image. Please try again."}, http.StatusInternalServerError, "Failed to upload image. Please try again."},
		{errors.New("raw driver failure"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			f := newFixture(t)
			f.gateway.sendErr = tc.err

			resp, body := f.do(t, http.MethodPost, "/api/v1/messages/send/bob", `{"text":"x"}`)
			assert.Equal(t, tc.status, resp.StatusCode)

			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, tc.message, e.Message)
		})
	}
}

func TestSendMessage_BadBody(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/v1/messages/send/bob", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetConversation_HidesInternalErrors(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/v1/messages/broken", "")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "mongo")

	resp, body = f.do(t, http.MethodGet, "/api/v1/messages/bob", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]\n", string(body))
	assert.Equal(t, "bob", f.gateway.lastParam)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	f.gateway.modified = 3

	resp, body := f.do(t, http.MethodPut, "/api/v1/messages/mark-read/bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.MarkReadResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, models.MarkReadResult{Success: true, ModifiedCount: 3}, result)
	assert.Equal(t, "bob", f.gateway.lastParam)
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/v1/auth/signup", `{"email":"a@b.co","fullName":"A","password":"password123"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(body), `"token":"tok"`)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/auth/signup", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.co","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/v1/auth/check", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"_id":"alice"`)

	resp, _ = f.do(t, http.MethodPut, "/api/v1/auth/push-token", `{"pushToken":"abc"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWebSocket_PingAndPresence(t *testing.T) {
	f := newFixture(t)
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=alice-token", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: services.EventPing}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got services.WSMessage
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, services.EventPong, got.Type)

	_, body := f.do(t, http.MethodGet, "/api/v1/messages/online", "")
	assert.Equal(t, "[\"alice\"]\n", string(body))
}
