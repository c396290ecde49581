package gormdb

import (
	"time"

	"github.com/sakif/warbler/internal/model"
)

// Row types carry the gorm mapping so the model package stays free of ORM
// tags. Table and column names match the sqlite package's schema, so either
// backend can open a database created by the other.

type userRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Email          string `gorm:"uniqueIndex;not null"`
	Username       string `gorm:"uniqueIndex;not null"`
	ImageURL       string `gorm:"not null"`
	HeaderImageURL string `gorm:"not null"`
	Bio            string
	Location       string
	Password       string `gorm:"column:password;not null"`
}

func (userRow) TableName() string { return "users" }

func newUserRow(u *model.User) userRow {
	return userRow{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		ImageURL:       u.ImageURL,
		HeaderImageURL: u.HeaderImageURL,
		Bio:            u.Bio,
		Location:       u.Location,
		Password:       u.PasswordHash,
	}
}

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:             r.ID,
		Username:       r.Username,
		Email:          r.Email,
		PasswordHash:   r.Password,
		ImageURL:       r.ImageURL,
		HeaderImageURL: r.HeaderImageURL,
		Bio:            r.Bio,
		Location:       r.Location,
	}
}

type messageRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Text      string    `gorm:"size:140;not null"`
	Timestamp time.Time `gorm:"not null;index:idx_messages_user_timestamp,priority:2"`
	UserID    int64     `gorm:"not null;index:idx_messages_user_timestamp,priority:1"`
	Author    userRow   `gorm:"foreignKey:UserID"`
}

func (messageRow) TableName() string { return "messages" }

// toModel strips the author's password hash; listings never need it.
func (r messageRow) toModel() *model.Message {
	m := &model.Message{
		ID:        r.ID,
		Text:      r.Text,
		Timestamp: r.Timestamp,
		UserID:    r.UserID,
	}
	if r.Author.ID != 0 {
		author := r.Author.toModel()
		author.PasswordHash = ""
		m.Author = author
	}
	return m
}

type followRow struct {
	FollowerID int64   `gorm:"primaryKey;autoIncrement:false"`
	FollowedID int64   `gorm:"primaryKey;autoIncrement:false;index"`
	Follower   userRow `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE"`
	Followed   userRow `gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE"`
}

func (followRow) TableName() string { return "follows" }

type likeRow struct {
	UserID    int64      `gorm:"primaryKey;autoIncrement:false"`
	MessageID int64      `gorm:"primaryKey;autoIncrement:false"`
	User      userRow    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Message   messageRow `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

func (likeRow) TableName() string { return "likes" }

func usersToModel(rows []userRow) []model.User {
	users := make([]model.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, *r.toModel())
	}
	return users
}

func messagesToModel(rows []messageRow) []model.Message {
	msgs := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, *r.toModel())
	}
	return msgs
}
