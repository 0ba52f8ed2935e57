package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"direct-chat-backend/internal/models"
)

// APIError is a non-2xx gateway response
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// Temporary reports whether repeating the request could succeed
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// SendRequest is the body of a send call. Image is a data URL.
type SendRequest struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// AuthResponse is returned by login and signup
type AuthResponse struct {
	models.User
	Token string `json:"token"`
}

// Gateway is the subset of the REST API the store drives
type Gateway interface {
	Contacts(ctx context.Context) ([]*models.User, error)
	Chats(ctx context.Context) ([]*models.ChatPartner, error)
	Conversation(ctx context.Context, partnerID string) ([]*models.Message, error)
	Send(ctx context.Context, receiverID string, req SendRequest) (*models.Message, error)
	MarkRead(ctx context.Context, senderID string) (int64, error)
}

// API is an HTTP client for the message gateway
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a client for the gateway at baseURL, e.g. http://localhost:3000
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

// SetToken replaces the bearer token used on subsequent calls
func (a *API) SetToken(token string) {
	a.token = token
}

// Token returns the bearer token
func (a *API) Token() string {
	return a.token
}

// SocketURL returns the push channel URL for the current token
func (a *API) SocketURL() (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {a.token}}.Encode()
	return u.String(), nil
}

func (a *API) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return nil, err
	}
	a.token = resp.Token
	return &resp, nil
}

func (a *API) Signup(ctx context.Context, fullName, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"fullName": fullName, "email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/api/v1/auth/signup", body, &resp); err != nil {
		return nil, err
	}
	a.token = resp.Token
	return &resp, nil
}

// Me returns the user the token belongs to
func (a *API) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := a.do(ctx, http.MethodGet, "/api/v1/auth/check", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *API) Contacts(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := a.do(ctx, http.MethodGet, "/api/v1/messages/contacts", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (a *API) Chats(ctx context.Context) ([]*models.ChatPartner, error) {
	var partners []*models.ChatPartner
	if err := a.do(ctx, http.MethodGet, "/api/v1/messages/chats", nil, &partners); err != nil {
		return nil, err
	}
	return partners, nil
}

func (a *API) Online(ctx context.Context) ([]string, error) {
	var ids []string
	if err := a.do(ctx, http.MethodGet, "/api/v1/messages/online", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *API) Conversation(ctx context.Context, partnerID string) ([]*models.Message, error) {
	var messages []*models.Message
	if err := a.do(ctx, http.MethodGet, "/api/v1/messages/"+url.PathEscape(partnerID), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (a *API) Send(ctx context.Context, receiverID string, req SendRequest) (*models.Message, error) {
	var message models.Message
	if err := a.do(ctx, http.MethodPost, "/api/v1/messages/send/"+url.PathEscape(receiverID), req, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (a *API) MarkRead(ctx context.Context, senderID string) (int64, error) {
	var result models.MarkReadResult
	if err := a.do(ctx, http.MethodPut, "/api/v1/messages/mark-read/"+url.PathEscape(senderID), nil, &result); err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
