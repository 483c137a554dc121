package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"healthbot/pkg"
	apperrors "healthbot/pkg/errors"

	"github.com/google/uuid"
)

// fakeStore is an in-memory UserStore + MessageStore that enforces the
// same uniqueness rules as the Postgres repository: one user per phone
// number, one message per delivery id.
type fakeStore struct {
	mu         sync.Mutex
	users      map[string]*pkg.User
	msgs       []*pkg.Message
	byDelivery map[string]*pkg.Message
	touches    map[uuid.UUID]int

	getUserErr   error
	createUsrErr error
	touchErr     error
	getMsgErr    error
	createMsgErr error

	// failCreateMessageOn fails the nth CreateMessage call (1-based).
	failCreateMessageOn int
	createMsgCalls      int

	// hooks run before the guarded section, letting tests interleave a
	// concurrent writer between a lookup and the following insert.
	beforeCreateUser    func(*fakeStore)
	beforeCreateMessage func(*fakeStore)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]*pkg.User),
		byDelivery: make(map[string]*pkg.Message),
		touches:    make(map[uuid.UUID]int),
	}
}

func (s *fakeStore) addUser(phone string) *pkg.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &pkg.User{
		ID:                   uuid.New(),
		PhoneNumber:          phone,
		PreferredLanguage:    "en",
		NotificationsEnabled: true,
		Active:               true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	s.users[phone] = u
	return u
}

func (s *fakeStore) GetUserByPhone(_ context.Context, phone string) (*pkg.User, error) {
	if s.getUserErr != nil {
		return nil, s.getUserErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[phone]; ok {
		return u, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *fakeStore) CreateUser(_ context.Context, u *pkg.User) error {
	if s.createUsrErr != nil {
		return s.createUsrErr
	}
	if s.beforeCreateUser != nil {
		hook := s.beforeCreateUser
		s.beforeCreateUser = nil
		hook(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.PhoneNumber]; ok {
		return apperrors.ErrDuplicateContact(nil)
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.PhoneNumber] = u
	return nil
}

func (s *fakeStore) TouchUser(_ context.Context, id uuid.UUID) error {
	if s.touchErr != nil {
		return s.touchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches[id]++
	return nil
}

func (s *fakeStore) GetMessageByDeliveryID(_ context.Context, deliveryID string) (*pkg.Message, error) {
	if s.getMsgErr != nil {
		return nil, s.getMsgErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byDelivery[deliveryID]; ok {
		return m, nil
	}
	return nil, apperrors.ErrMessageNotFound
}

func (s *fakeStore) CreateMessage(_ context.Context, m *pkg.Message) error {
	if s.createMsgErr != nil {
		return s.createMsgErr
	}
	if s.beforeCreateMessage != nil {
		hook := s.beforeCreateMessage
		s.beforeCreateMessage = nil
		hook(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createMsgCalls++
	if s.failCreateMessageOn > 0 && s.createMsgCalls == s.failCreateMessageOn {
		return apperrors.ErrStorageUnavailable(nil)
	}
	if m.DeliveryID != nil {
		if _, ok := s.byDelivery[*m.DeliveryID]; ok {
			return apperrors.ErrDuplicateDelivery(nil)
		}
	}
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	s.msgs = append(s.msgs, m)
	if m.DeliveryID != nil {
		s.byDelivery[*m.DeliveryID] = m
	}
	return nil
}

// insertMessage seeds a message directly, bypassing the store API.
func (s *fakeStore) insertMessage(userID uuid.UUID, direction pkg.Direction, body string, deliveryID *string) *pkg.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &pkg.Message{
		ID:         uuid.New(),
		UserID:     userID,
		Direction:  direction,
		Body:       body,
		DeliveryID: deliveryID,
		CreatedAt:  time.Now(),
	}
	s.msgs = append(s.msgs, m)
	if deliveryID != nil {
		s.byDelivery[*deliveryID] = m
	}
	return m
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *fakeStore) countByDirection(d pkg.Direction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Direction == d {
			n++
		}
	}
	return n
}

func (s *fakeStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// fakeResponder returns a scripted reply or error and counts invocations.
type fakeResponder struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (r *fakeResponder) Respond(_ context.Context, _ *pkg.Message, _ *pkg.User) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.reply, r.err
}

func (r *fakeResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
