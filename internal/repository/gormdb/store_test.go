package gormdb

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

// newTestStore opens the gorm backend on a throwaway SQLite file. Foreign
// keys are off by default in SQLite, so the DSN turns them on to get the
// same cascades PostgreSQL performs.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	dsn := filepath.Join(t.TempDir(), "gorm_test.db") + "?_foreign_keys=on"
	store, err := Open(sqlite.Open(dsn), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createUser(t *testing.T, s *Store, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func createMessage(t *testing.T, s *Store, userID int64, text string, at time.Time) *model.Message {
	t.Helper()
	m := &model.Message{UserID: userID, Text: text, Timestamp: at}
	require.NoError(t, s.CreateMessage(context.Background(), m))
	return m
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	assert.NotZero(t, alice.ID)
	assert.Equal(t, model.DefaultImageURL, alice.ImageURL)

	err := s.CreateUser(ctx, &model.User{Username: "alice", Email: "x@example.com", PasswordHash: "h"})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "duplicate username: %v", err)

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.GetUserByID(ctx, 9999)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	alice.Bio = "bird watcher"
	alice.Location = "Oslo"
	require.NoError(t, s.UpdateUser(ctx, alice))
	got, err = s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "bird watcher", got.Bio)
	assert.Equal(t, "Oslo", got.Location)

	err = s.UpdateUser(ctx, &model.User{ID: 4242, Username: "ghost", Email: "ghost@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"bob", "alice", "Alicia", "al_pha"} {
		createUser(t, s, name)
	}

	users, err := s.SearchUsers(context.Background(), "ali", repository.ListOptions{})
	require.NoError(t, err)
	var names []string
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"alice", "Alicia"}, names)

	users, err = s.SearchUsers(context.Background(), "_", repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "al_pha", users[0].Username)
}

func TestTimeline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	carol := createUser(t, s, "carol")

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	createMessage(t, s, alice.ID, "alice 1", base.Add(1*time.Minute))
	createMessage(t, s, bob.ID, "bob 1", base.Add(2*time.Minute))
	createMessage(t, s, carol.ID, "carol 1", base.Add(3*time.Minute))
	createMessage(t, s, alice.ID, "alice 2", base.Add(4*time.Minute))

	change, err := s.Follow(ctx, model.Follow{FollowerID: alice.ID, FollowedID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, repository.Changed, change)

	msgs, err := s.Timeline(ctx, alice.ID, repository.TimelineLimit)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "alice 2", msgs[0].Text)
	assert.Equal(t, "bob 1", msgs[1].Text)
	assert.Equal(t, "alice 1", msgs[2].Text)
	require.NotNil(t, msgs[1].Author)
	assert.Equal(t, "bob", msgs[1].Author.Username)
	assert.Empty(t, msgs[1].Author.PasswordHash)
}

func TestEdgesAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	msg := createMessage(t, s, bob.ID, "hi", time.Now().UTC())

	follow := model.Follow{FollowerID: alice.ID, FollowedID: bob.ID}
	first, err := s.Follow(ctx, follow)
	require.NoError(t, err)
	second, err := s.Follow(ctx, follow)
	require.NoError(t, err)
	assert.Equal(t, repository.Changed, first)
	assert.Equal(t, repository.Unchanged, second)

	like := model.Like{UserID: alice.ID, MessageID: msg.ID}
	first, err = s.Like(ctx, like)
	require.NoError(t, err)
	second, err = s.Like(ctx, like)
	require.NoError(t, err)
	assert.Equal(t, repository.Changed, first)
	assert.Equal(t, repository.Unchanged, second)

	liked, err := s.ListLikedMessages(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, msg.ID, liked[0].ID)

	ids, err := s.FollowingIDs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, ids)

	followers, err := s.ListFollowers(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].Username)

	first, err = s.Unfollow(ctx, follow)
	require.NoError(t, err)
	second, err = s.Unfollow(ctx, follow)
	require.NoError(t, err)
	assert.Equal(t, repository.Changed, first)
	assert.Equal(t, repository.Unchanged, second)

	_, err = s.Like(ctx, model.Like{UserID: alice.ID, MessageID: 777})
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "like on missing message: %v", err)
}

func TestDeleteUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	aliceMsg := createMessage(t, s, alice.ID, "mine", time.Now().UTC())
	createMessage(t, s, bob.ID, "bob's", time.Now().UTC())

	_, err := s.Follow(ctx, model.Follow{FollowerID: bob.ID, FollowedID: alice.ID})
	require.NoError(t, err)
	_, err = s.Like(ctx, model.Like{UserID: bob.ID, MessageID: aliceMsg.ID})
	require.NoError(t, err)

	change, err := s.DeleteUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.Changed, change)

	stats, err := s.UserStats(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStats{Messages: 1}, stats)

	change, err = s.DeleteUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.Unchanged, change)
}
