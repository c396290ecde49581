// Package gormdb implements the repository interfaces with GORM. It backs the
// PostgreSQL deployment (DB_DRIVER=postgres); tests run it against SQLite
// through the gorm sqlite dialector.
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn, e.g.
// "host=localhost user=warbler password=secret dbname=warbler sslmode=disable".
func OpenPostgres(dsn string, log logrus.FieldLogger) (*Store, error) {
	return Open(postgres.Open(dsn), log)
}

// Open connects through any gorm dialector and migrates the schema.
//
// TranslateError makes the dialector map unique and foreign-key violations
// to gorm.ErrDuplicatedKey and gorm.ErrForeignKeyViolated, so the checks
// below do not depend on which database is underneath.
func Open(dialector gorm.Dialector, log logrus.FieldLogger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("gormdb: opening database: %w", err)
	}

	if err := db.AutoMigrate(&userRow{}, &messageRow{}, &followRow{}, &likeRow{}); err != nil {
		return nil, fmt.Errorf("gormdb: migrating schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gormdb: getting sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func changeOf(rowsAffected int64) repository.Change {
	if rowsAffected == 0 {
		return repository.Unchanged
	}
	return repository.Changed
}

// =========================================================================
// USERS
// =========================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	user.ApplyImageDefaults()
	row := newUserRow(user)
	row.ID = 0

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("Username and/or email already taken")
		}
		return fmt.Errorf("gormdb: inserting user %q: %w", user.Username, err)
	}
	user.ID = row.ID
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("gormdb: getting user %d: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("gormdb: getting user %q: %w", username, err)
	}
	return row.toModel(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) SearchUsers(ctx context.Context, query string, opts repository.ListOptions) ([]model.User, error) {
	limit, offset := clampList(opts)
	pattern := "%" + strings.ToLower(likeEscaper.Replace(query)) + "%"

	var rows []userRow
	err := s.db.WithContext(ctx).
		Where(`LOWER(username) LIKE ? ESCAPE '\'`, pattern).
		Order("username").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: searching users %q: %w", query, err)
	}
	return usersToModel(rows), nil
}

// UpdateUser writes the editable profile columns. Select forces zero values
// (an emptied bio) to be written too.
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	user.ApplyImageDefaults()
	row := newUserRow(user)

	res := s.db.WithContext(ctx).
		Model(&userRow{ID: user.ID}).
		Select("username", "email", "image_url", "header_image_url", "bio", "location").
		Updates(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("Username and/or email already taken")
		}
		return fmt.Errorf("gormdb: updating user %d: %w", user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) (repository.Change, error) {
	var change repository.Change
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&messageRow{}).Error; err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		res := tx.Delete(&userRow{}, id)
		if res.Error != nil {
			return fmt.Errorf("deleting user row: %w", res.Error)
		}
		change = changeOf(res.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("gormdb: deleting user %d: %w", id, err)
	}
	return change, nil
}

func (s *Store) UserStats(ctx context.Context, id int64) (model.UserStats, error) {
	db := s.db.WithContext(ctx)

	var stats model.UserStats
	counts := []struct {
		model any
		where string
		dst   *int
	}{
		{&messageRow{}, "user_id = ?", &stats.Messages},
		{&followRow{}, "follower_id = ?", &stats.Following},
		{&followRow{}, "followed_id = ?", &stats.Followers},
		{&likeRow{}, "user_id = ?", &stats.Likes},
	}

	for _, c := range counts {
		var n int64
		if err := db.Model(c.model).Where(c.where, id).Count(&n).Error; err != nil {
			return model.UserStats{}, fmt.Errorf("gormdb: counting stats of user %d: %w", id, err)
		}
		*c.dst = int(n)
	}
	return stats, nil
}

// =========================================================================
// MESSAGES
// =========================================================================

var newestFirst = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Table: "messages", Name: "timestamp"}, Desc: true},
	{Column: clause.Column{Table: "messages", Name: "id"}, Desc: true},
}}

func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	row := messageRow{Text: msg.Text, Timestamp: msg.Timestamp, UserID: msg.UserID}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return apperror.NotFound("user", msg.UserID)
		}
		return fmt.Errorf("gormdb: inserting message for user %d: %w", msg.UserID, err)
	}
	msg.ID = row.ID
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var row messageRow
	if err := s.db.WithContext(ctx).Preload("Author").First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("message", id)
		}
		return nil, fmt.Errorf("gormdb: getting message %d: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) (repository.Change, error) {
	res := s.db.WithContext(ctx).Delete(&messageRow{}, id)
	if res.Error != nil {
		return 0, fmt.Errorf("gormdb: deleting message %d: %w", id, res.Error)
	}
	return changeOf(res.RowsAffected), nil
}

func (s *Store) ListMessagesByUser(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.Message, error) {
	limit, offset := clampList(opts)

	var rows []messageRow
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("user_id = ?", userID).
		Clauses(newestFirst).
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: listing messages of user %d: %w", userID, err)
	}
	return messagesToModel(rows), nil
}

func (s *Store) Timeline(ctx context.Context, userID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = repository.TimelineLimit
	}
	db := s.db.WithContext(ctx)
	followed := db.Model(&followRow{}).Select("followed_id").Where("follower_id = ?", userID)

	var rows []messageRow
	err := db.
		Preload("Author").
		Where("user_id = ? OR user_id IN (?)", userID, followed).
		Clauses(newestFirst).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: loading timeline of user %d: %w", userID, err)
	}
	return messagesToModel(rows), nil
}

// =========================================================================
// FOLLOWS AND LIKES
// =========================================================================

func (s *Store) Follow(ctx context.Context, edge model.Follow) (repository.Change, error) {
	res := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&followRow{FollowerID: edge.FollowerID, FollowedID: edge.FollowedID})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
			return 0, apperror.NotFound("user", edge.FollowedID)
		}
		return 0, fmt.Errorf("gormdb: following %d -> %d: %w", edge.FollowerID, edge.FollowedID, res.Error)
	}
	return changeOf(res.RowsAffected), nil
}

func (s *Store) Unfollow(ctx context.Context, edge model.Follow) (repository.Change, error) {
	res := s.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", edge.FollowerID, edge.FollowedID).
		Delete(&followRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("gormdb: unfollowing %d -> %d: %w", edge.FollowerID, edge.FollowedID, res.Error)
	}
	return changeOf(res.RowsAffected), nil
}

func (s *Store) ListFollowing(ctx context.Context, userID int64) ([]model.User, error) {
	var rows []userRow
	err := s.db.WithContext(ctx).
		Joins("JOIN follows ON follows.followed_id = users.id").
		Where("follows.follower_id = ?", userID).
		Order("users.username").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: listing following of user %d: %w", userID, err)
	}
	return usersToModel(rows), nil
}

func (s *Store) ListFollowers(ctx context.Context, userID int64) ([]model.User, error) {
	var rows []userRow
	err := s.db.WithContext(ctx).
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.followed_id = ?", userID).
		Order("users.username").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: listing followers of user %d: %w", userID, err)
	}
	return usersToModel(rows), nil
}

func (s *Store) FollowingIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&followRow{}).
		Where("follower_id = ?", userID).
		Pluck("followed_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: listing followed ids of user %d: %w", userID, err)
	}
	return ids, nil
}

func (s *Store) Like(ctx context.Context, edge model.Like) (repository.Change, error) {
	res := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&likeRow{UserID: edge.UserID, MessageID: edge.MessageID})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
			return 0, apperror.NotFound("message", edge.MessageID)
		}
		return 0, fmt.Errorf("gormdb: liking message %d by user %d: %w", edge.MessageID, edge.UserID, res.Error)
	}
	return changeOf(res.RowsAffected), nil
}

func (s *Store) Unlike(ctx context.Context, edge model.Like) (repository.Change, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", edge.UserID, edge.MessageID).
		Delete(&likeRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("gormdb: unliking message %d by user %d: %w", edge.MessageID, edge.UserID, res.Error)
	}
	return changeOf(res.RowsAffected), nil
}

func (s *Store) ListLikedMessages(ctx context.Context, userID int64) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Preload("Author").
		Joins("JOIN likes ON likes.message_id = messages.id").
		Where("likes.user_id = ?", userID).
		Clauses(newestFirst).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: listing likes of user %d: %w", userID, err)
	}
	return messagesToModel(rows), nil
}

func (s *Store) LikedMessageIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&likeRow{}).
		Where("user_id = ?", userID).
		Pluck("message_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gormdb: listing liked message ids of user %d: %w", userID, err)
	}
	return ids, nil
}

func clampList(opts repository.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset = opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
