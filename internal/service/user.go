package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/metrics"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

// ProfileMessageLimit caps the messages shown on a profile page.
const ProfileMessageLimit = 100

// UserPageSize is the number of users per directory page.
const UserPageSize = 50

// UserService serves the user directory, profile pages and the follow
// graph.
type UserService struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	follows  repository.FollowRepository
	likes    repository.LikeRepository
	events   metrics.Recorder
	log      logrus.FieldLogger
}

func NewUserService(store repository.Store, events metrics.Recorder, log logrus.FieldLogger) *UserService {
	return &UserService{
		users:    store,
		messages: store,
		follows:  store,
		likes:    store,
		events:   events,
		log:      log,
	}
}

// Search lists users whose username contains query, case-insensitively,
// ordered by username. page starts at 1.
func (s *UserService) Search(ctx context.Context, query string, page int) ([]model.User, error) {
	if page < 1 {
		page = 1
	}
	users, err := s.users.SearchUsers(ctx, strings.TrimSpace(query), repository.ListOptions{
		Limit:  UserPageSize,
		Offset: (page - 1) * UserPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("service/user: searching %q: %w", query, err)
	}
	return users, nil
}

// Profile is everything a profile page shows about its owner.
type Profile struct {
	User     *model.User
	Stats    model.UserStats
	Messages []model.Message
}

// Profile loads a user with their counters and newest messages.
func (s *UserService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	p, err := s.Header(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Messages, err = s.messages.ListMessagesByUser(ctx, userID, repository.ListOptions{Limit: ProfileMessageLimit})
	if err != nil {
		return nil, fmt.Errorf("service/user: messages of %d: %w", userID, err)
	}
	return p, nil
}

// Header loads the user and the counters every profile tab shows.
func (s *UserService) Header(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: profile %d: %w", userID, err)
	}
	stats, err := s.users.UserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: stats of %d: %w", userID, err)
	}
	return &Profile{User: user, Stats: stats}, nil
}

// Following returns userID's profile header and the users they follow.
func (s *UserService) Following(ctx context.Context, userID int64) (*Profile, []model.User, error) {
	p, err := s.Header(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	users, err := s.follows.ListFollowing(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/user: following of %d: %w", userID, err)
	}
	return p, users, nil
}

// Followers returns userID's profile header and the users following them.
func (s *UserService) Followers(ctx context.Context, userID int64) (*Profile, []model.User, error) {
	p, err := s.Header(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	users, err := s.follows.ListFollowers(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/user: followers of %d: %w", userID, err)
	}
	return p, users, nil
}

// Likes returns userID's profile header and the messages they liked.
func (s *UserService) Likes(ctx context.Context, userID int64) (*Profile, error) {
	p, err := s.Header(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Messages, err = s.likes.ListLikedMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: likes of %d: %w", userID, err)
	}
	return p, nil
}

// Follow makes actor follow targetID. The target must exist and must not
// be the actor. Following someone twice reports repository.Unchanged.
func (s *UserService) Follow(ctx context.Context, actor *model.User, targetID int64) (repository.Change, error) {
	if targetID == actor.ID {
		return 0, apperror.ValidationFailed("user", "You cannot follow yourself.")
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return 0, fmt.Errorf("service/user: follow: %w", err)
	}

	change, err := s.follows.Follow(ctx, model.Follow{FollowerID: actor.ID, FollowedID: targetID})
	if err != nil {
		return 0, fmt.Errorf("service/user: follow: %w", err)
	}
	if change == repository.Changed {
		s.events.Record(metrics.EventFollow)
		s.log.WithFields(logrus.Fields{"follower_id": actor.ID, "followed_id": targetID}).Info("user followed")
	}
	return change, nil
}

// Unfollow removes the edge. A missing edge or a missing target reports
// repository.Unchanged.
func (s *UserService) Unfollow(ctx context.Context, actor *model.User, targetID int64) (repository.Change, error) {
	change, err := s.follows.Unfollow(ctx, model.Follow{FollowerID: actor.ID, FollowedID: targetID})
	if err != nil {
		return 0, fmt.Errorf("service/user: unfollow: %w", err)
	}
	if change == repository.Changed {
		s.events.Record(metrics.EventUnfollow)
		s.log.WithFields(logrus.Fields{"follower_id": actor.ID, "followed_id": targetID}).Info("user unfollowed")
	}
	return change, nil
}

// Viewer is the current user's relation to what a page shows: whom they
// follow and what they liked. A nil *Viewer answers false to everything.
type Viewer struct {
	User      *model.User
	following map[int64]bool
	liked     map[int64]bool
}

// Viewer loads the actor's follow and like sets. actor may be nil for
// anonymous visitors.
func (s *UserService) Viewer(ctx context.Context, actor *model.User) (*Viewer, error) {
	if actor == nil {
		return nil, nil
	}

	followingIDs, err := s.follows.FollowingIDs(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: viewer %d: %w", actor.ID, err)
	}
	likedIDs, err := s.likes.LikedMessageIDs(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: viewer %d: %w", actor.ID, err)
	}

	return &Viewer{
		User:      actor,
		following: toSet(followingIDs),
		liked:     toSet(likedIDs),
	}, nil
}

func (v *Viewer) IsSelf(userID int64) bool {
	return v != nil && v.User != nil && v.User.ID == userID
}

func (v *Viewer) Follows(userID int64) bool {
	return v != nil && v.following[userID]
}

func (v *Viewer) Likes(messageID int64) bool {
	return v != nil && v.liked[messageID]
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
