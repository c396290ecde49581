// Package repository declares the persistence contracts the service layer
// depends on. Implementations live in sub-packages (sqlite, gormdb).
//
// Missing rows are reported as apperror.ErrNotFound and uniqueness
// violations on users as apperror.ErrConflict. Edge operations never fail
// because the edge is already in the requested state: they report
// Unchanged instead.
package repository

import (
	"context"

	"github.com/sakif/warbler/internal/model"
)

// TimelineLimit is the fixed size of the home timeline.
const TimelineLimit = 100

// Change is the result of an idempotent write.
type Change int

const (
	// Changed means the write took effect.
	Changed Change = iota + 1
	// Unchanged means the target state already held: a duplicate edge, an
	// edge that was already gone, or a row deleted concurrently.
	Unchanged
)

func (c Change) String() string {
	switch c {
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// SearchUsers lists users whose username contains query, ordered by
	// username. An empty query lists everyone.
	SearchUsers(ctx context.Context, query string, opts ListOptions) ([]model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	// DeleteUser removes the user's messages and then the user row in one
	// transaction.
	DeleteUser(ctx context.Context, id int64) (Change, error)
	UserStats(ctx context.Context, id int64) (model.UserStats, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	DeleteMessage(ctx context.Context, id int64) (Change, error)
	ListMessagesByUser(ctx context.Context, userID int64, opts ListOptions) ([]model.Message, error)
	// Timeline returns the newest messages written by userID or by anyone
	// userID follows.
	Timeline(ctx context.Context, userID int64, limit int) ([]model.Message, error)
}

type FollowRepository interface {
	Follow(ctx context.Context, edge model.Follow) (Change, error)
	Unfollow(ctx context.Context, edge model.Follow) (Change, error)
	ListFollowing(ctx context.Context, userID int64) ([]model.User, error)
	ListFollowers(ctx context.Context, userID int64) ([]model.User, error)
	FollowingIDs(ctx context.Context, userID int64) ([]int64, error)
}

type LikeRepository interface {
	Like(ctx context.Context, edge model.Like) (Change, error)
	Unlike(ctx context.Context, edge model.Like) (Change, error)
	ListLikedMessages(ctx context.Context, userID int64) ([]model.Message, error)
	LikedMessageIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Store is everything a backend provides.
type Store interface {
	UserRepository
	MessageRepository
	FollowRepository
	LikeRepository
	Close() error
}
