package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"direct-chat-backend/internal/models"
	"direct-chat-backend/internal/repository"
)

var errStoreDown = errors.New("store unavailable")

type memUserRepo struct {
	mu    sync.Mutex
	users []*models.User
	fail  bool
}

func (r *memUserRepo) add(id, name string) *models.User {
	u := &models.User{ID: id, Email: id + "@example.com", FullName: name, Password: "hash", CreatedAt: time.Now()}
	r.mu.Lock()
	r.users = append(r.users, u)
	r.mu.Unlock()
	return u
}

func (r *memUserRepo) Create(_ context.Context, user *models.User) error {
	if r.fail {
		return errStoreDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users = append(r.users, &cp)
	return nil
}

func (r *memUserRepo) find(match func(*models.User) bool) (*models.User, error) {
	if r.fail {
		return nil, errStoreDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *memUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *memUserRepo) list(match func(*models.User) bool) ([]*models.User, error) {
	if r.fail {
		return nil, errStoreDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.users {
		if match(u) {
			cp := *u
			cp.Password = ""
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memUserRepo) ListExcept(_ context.Context, id string) ([]*models.User, error) {
	return r.list(func(u *models.User) bool { return u.ID != id })
}

func (r *memUserRepo) GetByIDs(_ context.Context, ids []string) ([]*models.User, error) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return r.list(func(u *models.User) bool { return set[u.ID] })
}

func (r *memUserRepo) UpdateProfile(_ context.Context, id, fullName, profilePic string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			if fullName != "" {
				u.FullName = fullName
			}
			if profilePic != "" {
				u.ProfilePic = profilePic
			}
			cp := *u
			cp.Password = ""
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) UpdatePushToken(_ context.Context, id string, pushToken *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.PushToken = pushToken
			return nil
		}
	}
	return repository.ErrNotFound
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages []*models.Message
	fail     bool
}

func (r *memMessageRepo) Create(_ context.Context, m *models.Message) error {
	if r.fail {
		return errStoreDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *memMessageRepo) Conversation(_ context.Context, a, b string) ([]*models.Message, error) {
	if r.fail {
		return nil, errStoreDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Message, 0)
	for _, m := range r.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMessageRepo) MarkRead(_ context.Context, senderID, receiverID string) (int64, error) {
	if r.fail {
		return 0, errStoreDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepo) Stats(_ context.Context, userID string) ([]models.ConversationStats, error) {
	if r.fail {
		return nil, errStoreDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byPartner := map[string]*models.ConversationStats{}
	var order []string
	for _, m := range r.messages {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		partner := m.PartnerOf(userID)
		st, ok := byPartner[partner]
		if !ok {
			st = &models.ConversationStats{PartnerID: partner}
			byPartner[partner] = st
			order = append(order, partner)
		}
		if m.ReceiverID == userID && !m.Read {
			st.UnreadCount++
		}
		if st.LastMessageTime == nil || m.CreatedAt.After(*st.LastMessageTime) {
			t := m.CreatedAt
			st.LastMessageTime = &t
		}
	}
	out := make([]models.ConversationStats, 0, len(order))
	for _, p := range order {
		out = append(out, *byPartner[p])
	}
	return out, nil
}

type sentEvent struct {
	userID string
	msg    WSMessage
}

type fakePublisher struct {
	mu     sync.Mutex
	online map[string]bool
	events []sentEvent
	err    error
}

func newFakePublisher(online ...string) *fakePublisher {
	p := &fakePublisher{online: map[string]bool{}}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePublisher) SendToUser(userID string, msg WSMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, sentEvent{userID: userID, msg: msg})
	return nil
}

func (p *fakePublisher) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePublisher) sent() []sentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentEvent(nil), p.events...)
}

type fakeUploader struct {
	url    string
	err    error
	calls  int
	folder string
}

func (u *fakeUploader) UploadImage(_ context.Context, folder, _ string) (string, error) {
	u.calls++
	u.folder = folder
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

type fakeOffline struct {
	got chan *models.Message
}

func (f *fakeOffline) NotifyNewMessage(_ context.Context, _ *models.User, _ *models.UserSummary, m *models.Message) error {
	f.got <- m
	return nil
}
