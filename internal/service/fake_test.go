package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/auth"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory repository.Store. It follows the same contract
// as the SQL stores (NotFound, Conflict, Changed/Unchanged) so the service
// rules can be tested without a database. failWith makes every call fail,
// to exercise the error paths.

type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	messages map[int64]*model.Message
	follows  map[model.Follow]bool
	likes    map[model.Like]bool
	nextID   int64
	clock    time.Time
	failWith error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]*model.User),
		messages: make(map[int64]*model.Message),
		follows:  make(map[model.Follow]bool),
		likes:    make(map[model.Like]bool),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for _, existing := range f.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return apperror.Conflict("Username and/or email already taken")
		}
	}
	f.nextID++
	u.ID = f.nextID
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, u := range f.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeStore) SearchUsers(_ context.Context, query string, opts repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []model.User
	for _, u := range f.users {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if opts.Offset >= len(out) {
		return []model.User{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	for id, existing := range f.users {
		if id != u.ID && (existing.Username == u.Username || existing.Email == u.Email) {
			return apperror.Conflict("Username and/or email already taken")
		}
	}
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id int64) (repository.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	if _, ok := f.users[id]; !ok {
		return repository.Unchanged, nil
	}
	for mid, m := range f.messages {
		if m.UserID == id {
			f.deleteMessageLocked(mid)
		}
	}
	for e := range f.follows {
		if e.FollowerID == id || e.FollowedID == id {
			delete(f.follows, e)
		}
	}
	for l := range f.likes {
		if l.UserID == id {
			delete(f.likes, l)
		}
	}
	delete(f.users, id)
	return repository.Changed, nil
}

func (f *fakeStore) UserStats(_ context.Context, id int64) (model.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return model.UserStats{}, f.failWith
	}
	var s model.UserStats
	for _, m := range f.messages {
		if m.UserID == id {
			s.Messages++
		}
	}
	for e := range f.follows {
		if e.FollowerID == id {
			s.Following++
		}
		if e.FollowedID == id {
			s.Followers++
		}
	}
	for l := range f.likes {
		if l.UserID == id {
			s.Likes++
		}
	}
	return s, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.users[m.UserID]; !ok {
		return apperror.NotFound("user", m.UserID)
	}
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	m.ID = f.nextID
	if m.Timestamp.IsZero() {
		m.Timestamp = f.clock
	}
	stored := *m
	f.messages[m.ID] = &stored
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, id int64) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, apperror.NotFound("message", id)
	}
	return f.withAuthorLocked(*m), nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, id int64) (repository.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	if _, ok := f.messages[id]; !ok {
		return repository.Unchanged, nil
	}
	f.deleteMessageLocked(id)
	return repository.Changed, nil
}

func (f *fakeStore) deleteMessageLocked(id int64) {
	delete(f.messages, id)
	for l := range f.likes {
		if l.MessageID == id {
			delete(f.likes, l)
		}
	}
}

func (f *fakeStore) withAuthorLocked(m model.Message) *model.Message {
	if u, ok := f.users[m.UserID]; ok {
		author := *u
		author.PasswordHash = ""
		m.Author = &author
	}
	return &m
}

// newestFirstLocked filters messages and orders them by timestamp then id,
// both descending.
func (f *fakeStore) newestFirstLocked(keep func(m *model.Message) bool, limit int) []model.Message {
	var out []model.Message
	for _, m := range f.messages {
		if keep(m) {
			out = append(out, *f.withAuthorLocked(*m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeStore) ListMessagesByUser(_ context.Context, userID int64, opts repository.ListOptions) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.newestFirstLocked(func(m *model.Message) bool { return m.UserID == userID }, opts.Limit), nil
}

func (f *fakeStore) Timeline(_ context.Context, userID int64, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.newestFirstLocked(func(m *model.Message) bool {
		return m.UserID == userID || f.follows[model.Follow{FollowerID: userID, FollowedID: m.UserID}]
	}, limit), nil
}

func (f *fakeStore) Follow(_ context.Context, e model.Follow) (repository.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	if _, ok := f.users[e.FollowedID]; !ok {
		return 0, apperror.NotFound("user", e.FollowedID)
	}
	if f.follows[e] {
		return repository.Unchanged, nil
	}
	f.follows[e] = true
	return repository.Changed, nil
}

func (f *fakeStore) Unfollow(_ context.Context, e model.Follow) (repository.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	if !f.follows[e] {
		return repository.Unchanged, nil
	}
	delete(f.follows, e)
	return repository.Changed, nil
}

func (f *fakeStore) usersWhereLocked(keep func(e model.Follow) (int64, bool)) []model.User {
	var out []model.User
	for e := range f.follows {
		if id, ok := keep(e); ok {
			out = append(out, *f.users[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (f *fakeStore) ListFollowing(_ context.Context, userID int64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.usersWhereLocked(func(e model.Follow) (int64, bool) { return e.FollowedID, e.FollowerID == userID }), nil
}

func (f *fakeStore) ListFollowers(_ context.Context, userID int64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.usersWhereLocked(func(e model.Follow) (int64, bool) { return e.FollowerID, e.FollowedID == userID }), nil
}

func (f *fakeStore) FollowingIDs(_ context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var ids []int64
	for e := range f.follows {
		if e.FollowerID == userID {
			ids = append(ids, e.FollowedID)
		}
	}
	return ids, nil
}

func (f *fakeStore) Like(_ context.Context, l model.Like) (repository.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	if _, ok := f.messages[l.MessageID]; !ok {
		return 0, apperror.NotFound("message", l.MessageID)
	}
	if f.likes[l] {
		return repository.Unchanged, nil
	}
	f.likes[l] = true
	return repository.Changed, nil
}

func (f *fakeStore) Unlike(_ context.Context, l model.Like) (repository.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	if !f.likes[l] {
		return repository.Unchanged, nil
	}
	delete(f.likes, l)
	return repository.Changed, nil
}

func (f *fakeStore) ListLikedMessages(_ context.Context, userID int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.newestFirstLocked(func(m *model.Message) bool {
		return f.likes[model.Like{UserID: userID, MessageID: m.ID}]
	}, 0), nil
}

func (f *fakeStore) LikedMessageIDs(_ context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var ids []int64
	for l := range f.likes {
		if l.UserID == userID {
			ids = append(ids, l.MessageID)
		}
	}
	return ids, nil
}

// =========================================================================
// HELPERS
// =========================================================================

// countingRecorder collects recorded business events.
type countingRecorder struct {
	events []string
}

func (c *countingRecorder) Record(event string) { c.events = append(c.events, event) }

func (c *countingRecorder) count(event string) int {
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// services bundles the three services over one fake store.
type services struct {
	store    *fakeStore
	events   *countingRecorder
	auth     *AuthService
	users    *UserService
	messages *MessageService
}

func newServices(t *testing.T) *services {
	t.Helper()
	store := newFakeStore()
	events := &countingRecorder{}
	log := quietLogger()
	// Cost 4 is bcrypt's minimum and keeps the tests fast.
	passwords := auth.NewPasswordService(4)

	return &services{
		store:    store,
		events:   events,
		auth:     NewAuthService(store, passwords, events, log),
		users:    NewUserService(store, events, log),
		messages: NewMessageService(store, events, log),
	}
}

// signup creates a user with password "password1".
func (s *services) signup(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := s.auth.Signup(context.Background(), SignupInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password1",
	})
	if err != nil {
		t.Fatalf("Signup(%q) error = %v", username, err)
	}
	return u
}

func (s *services) post(t *testing.T, author *model.User, text string) *model.Message {
	t.Helper()
	m, err := s.messages.Create(context.Background(), author, text)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", text, err)
	}
	return m
}
