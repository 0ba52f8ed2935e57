package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"

	"direct-chat-backend/internal/client"
	"direct-chat-backend/internal/models"
)

var errNotLoggedIn = errors.New("not logged in, run `chatctl login` first")

// session is a signed-in client with its store
type session struct {
	api   *client.API
	prefs *client.Preferences
	self  *models.User
	store *client.Store
}

func openPrefs(opts *RootOptions) (*client.Preferences, error) {
	return client.OpenPreferences(opts.Settings.PrefsPath())
}

// openSession restores the saved token and builds a store on events.
// A nil events runs the store without a push channel.
func openSession(ctx context.Context, opts *RootOptions, events client.EventSource) (*session, error) {
	prefs, err := openPrefs(opts)
	if err != nil {
		return nil, err
	}

	token, err := prefs.String(client.PrefToken, "")
	if err != nil {
		prefs.Close()
		return nil, err
	}
	if token == "" {
		prefs.Close()
		return nil, errNotLoggedIn
	}

	api := client.NewAPI(opts.Settings.ServerURL, token)
	self, err := api.Me(ctx)
	if err != nil {
		prefs.Close()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, errNotLoggedIn
		}
		return nil, err
	}

	if events == nil {
		events = client.Detached()
	}
	return &session{
		api:   api,
		prefs: prefs,
		self:  self,
		store: client.NewStore(self, api, events, prefs),
	}, nil
}

func (s *session) Close() {
	s.store.Close()
	s.prefs.Close()
}

// openPartner selects partnerID, resolving its display name from the contacts
func (s *session) openPartner(ctx context.Context, partnerID string) error {
	if err := s.store.LoadContacts(ctx); err != nil {
		return err
	}
	partner := s.store.FindUser(partnerID)
	if partner == nil {
		return fmt.Errorf("unknown user %q", partnerID)
	}
	return s.store.OpenConversation(ctx, partner)
}

// imageDataURL reads an image file into the data URL form the gateway accepts
func imageDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(raw)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
